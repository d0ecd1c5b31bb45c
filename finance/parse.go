package finance

import (
	"sort"
	"time"
)

func parseQuote(symbol string, doc *Document) *Quote {
	q := &Quote{Symbol: symbol}

	if s, ok := doc.Str("symbol"); ok {
		q.Symbol = s
	}
	q.Name, _ = doc.Str("shortName")
	q.Exchange, _ = doc.Str("exchange")
	q.Currency, _ = doc.Str("currency")

	if v, ok := doc.Float("regularMarketPrice"); ok {
		q.Last = &v
	}
	if v, ok := doc.Float("regularMarketChange"); ok {
		q.NetChange = &v
	}
	if v, ok := doc.Float("regularMarketChangePercent"); ok {
		q.PctChange = &v
	}
	if v, ok := doc.Int("regularMarketVolume"); ok {
		q.Volume = &v
	}
	if ts, ok := doc.Int("regularMarketTime"); ok {
		t := time.Unix(ts, 0).UTC()
		q.AsOf = &t
	}
	return q
}

func parseProfile(symbol string, doc *Document) *Profile {
	p := &Profile{Symbol: symbol}

	p.Name, _ = doc.Str("name")
	p.Sector, _ = doc.Str("sector")
	p.Industry, _ = doc.Str("industry")
	p.Country, _ = doc.Str("country")
	p.Website, _ = doc.Str("website")
	p.Summary, _ = doc.Str("longBusinessSummary")

	if v, ok := doc.Int("fullTimeEmployees"); ok {
		p.Employees = &v
	}
	return p
}

// parseHistory reads the candles array, dropping entries without a date or
// close and returning the rest oldest first.
func parseHistory(doc *Document) []Candle {
	items, ok := doc.Array("candles")
	if !ok {
		return nil
	}

	candles := make([]Candle, 0, len(items))
	for _, item := range items {
		date, ok := item.Date("date")
		if !ok {
			continue
		}
		closePrice, ok := item.Float("close")
		if !ok {
			continue
		}
		candles = append(candles, Candle{Date: date, Close: closePrice})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles
}

func parseDividends(doc *Document) []Dividend {
	items, ok := doc.Array("events")
	if !ok {
		return nil
	}

	divs := make([]Dividend, 0, len(items))
	for _, item := range items {
		exDate, ok := item.Date("exDate")
		if !ok {
			continue
		}
		amount, ok := item.Float("amount")
		if !ok {
			continue
		}
		divs = append(divs, Dividend{ExDate: exDate, Amount: amount})
	}
	sort.Slice(divs, func(i, j int) bool { return divs[i].ExDate.Before(divs[j].ExDate) })
	return divs
}
