package finance

import (
	"sort"
	"strings"
)

// Concepts extracted from company facts, each with the filing tags that may
// carry it. The first tag present in the response wins; issuers report under
// different taxonomies depending on age and industry.
var conceptTags = map[string][]string{
	"assets":      {"Assets"},
	"liabilities": {"Liabilities"},
	"equity": {
		"StockholdersEquity",
		"StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest",
	},
	"revenue": {
		"Revenues",
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"SalesRevenueNet",
	},
	"net_income":   {"NetIncomeLoss"},
	"operating_cf": {"NetCashProvidedByUsedInOperatingActivities"},
	"capex":        {"PaymentsToAcquirePropertyPlantAndEquipment"},
}

// annualForms are the filing forms that carry full fiscal-year values.
// Matched by prefix so amended filings (10-K/A) count.
var annualForms = []string{"10-K", "20-F", "40-F"}

func isAnnualForm(form string) bool {
	for _, f := range annualForms {
		if strings.HasPrefix(form, f) {
			return true
		}
	}
	return false
}

// parseFundamentals extracts per-concept annual series from a company facts
// document shaped as facts.us-gaap.<Tag>.units.<unit>[]. For each concept
// it keeps one value per fiscal year: full-year filings only, the most
// recently filed when a year appears in several filings.
func parseFundamentals(symbol string, doc *Document) *Fundamentals {
	f := &Fundamentals{Symbol: symbol, Series: make(map[string][]AnnualFact)}

	gaap := doc.Path("facts", "us-gaap")
	for concept, tags := range conceptTags {
		for _, tag := range tags {
			series := annualSeries(gaap.Path(tag))
			if len(series) > 0 {
				f.Series[concept] = series
				break
			}
		}
	}

	if ocf, ok := f.Series["operating_cf"]; ok {
		if fcf := freeCashFlow(ocf, f.Series["capex"]); len(fcf) > 0 {
			f.Series["free_cf"] = fcf
		}
	}
	return f
}

func annualSeries(tag *Document) []AnnualFact {
	units := pickUnits(tag)
	if units == nil {
		return nil
	}

	type candidate struct {
		fact  AnnualFact
		filed string
	}
	byYear := make(map[int]candidate)
	for _, item := range units {
		form, _ := item.Str("form")
		if !isAnnualForm(form) {
			continue
		}
		// fp distinguishes full-year values from quarterly ones inside the
		// same annual filing; older facts omit it.
		if fp, ok := item.Str("fp"); ok && fp != "" && fp != "FY" {
			continue
		}
		end, ok := item.Date("end")
		if !ok {
			continue
		}
		val, ok := item.Float("val")
		if !ok {
			continue
		}
		filed, _ := item.Str("filed")

		year := end.Year()
		if prev, seen := byYear[year]; seen && prev.filed >= filed {
			continue
		}
		byYear[year] = candidate{
			fact:  AnnualFact{Year: year, End: end.Format("2006-01-02"), Value: val},
			filed: filed,
		}
	}

	series := make([]AnnualFact, 0, len(byYear))
	for _, c := range byYear {
		series = append(series, c.fact)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Year < series[j].Year })
	return series
}

// pickUnits prefers USD and falls back to the lexicographically first unit
// so foreign filers still yield a series deterministically.
func pickUnits(tag *Document) []*Document {
	if items, ok := tag.Array("units", "USD"); ok {
		return items
	}
	names, ok := tag.Keys("units")
	if !ok || len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	items, _ := tag.Array("units", names[0])
	return items
}

// freeCashFlow is operating cash flow minus capital expenditure, year by
// year. Capex is reported as a positive payment; a negatively signed value
// is added instead of subtracted. Years without a capex fact pass operating
// cash flow through unchanged.
func freeCashFlow(ocf, capex []AnnualFact) []AnnualFact {
	capexByYear := make(map[int]float64, len(capex))
	for _, c := range capex {
		capexByYear[c.Year] = c.Value
	}

	fcf := make([]AnnualFact, len(ocf))
	for i, o := range ocf {
		v := o.Value
		if c, ok := capexByYear[o.Year]; ok {
			if c < 0 {
				v += c
			} else {
				v -= c
			}
		}
		fcf[i] = AnnualFact{Year: o.Year, End: o.End, Value: v}
	}
	return fcf
}
