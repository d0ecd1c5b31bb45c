package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFundamentalsAnnualSelection(t *testing.T) {
	doc := mustParse(t, `{"facts": {"us-gaap": {"Assets": {"units": {"USD": [
		{"form": "10-K", "fp": "FY", "end": "2022-12-31", "filed": "2023-02-01", "val": 100},
		{"form": "10-Q", "fp": "Q2", "end": "2023-06-30", "filed": "2023-08-01", "val": 105},
		{"form": "10-K", "fp": "Q4", "end": "2023-12-31", "filed": "2024-02-01", "val": 110},
		{"form": "10-K", "fp": "FY", "end": "2023-12-31", "filed": "2024-02-01", "val": 120},
		{"form": "10-K/A", "fp": "FY", "end": "2023-12-31", "filed": "2024-05-01", "val": 125}
	]}}}}}`)

	f := parseFundamentals("ACME", doc)
	assert.Equal(t, "ACME", f.Symbol)

	series := f.Series["assets"]
	require.Len(t, series, 2, "quarterly facts are excluded")
	assert.Equal(t, AnnualFact{Year: 2022, End: "2022-12-31", Value: 100}, series[0])
	assert.Equal(t, AnnualFact{Year: 2023, End: "2023-12-31", Value: 125}, series[1],
		"the amendment filed later replaces the original annual value")

	latest, ok := f.Latest("assets")
	assert.True(t, ok)
	assert.Equal(t, 125.0, latest)
}

func TestParseFundamentalsTagFallback(t *testing.T) {
	// Revenues is absent; the next tag in the candidate list carries the data.
	doc := mustParse(t, `{"facts": {"us-gaap": {
		"RevenueFromContractWithCustomerExcludingAssessedTax": {"units": {"USD": [
			{"form": "10-K", "fp": "FY", "end": "2023-12-31", "filed": "2024-02-01", "val": 500}
		]}}
	}}}`)

	f := parseFundamentals("ACME", doc)
	require.Len(t, f.Series["revenue"], 1)
	assert.Equal(t, 500.0, f.Series["revenue"][0].Value)
}

func TestParseFundamentalsUnitPreference(t *testing.T) {
	doc := mustParse(t, `{"facts": {"us-gaap": {"NetIncomeLoss": {"units": {
		"EUR": [{"form": "20-F", "fp": "FY", "end": "2023-12-31", "filed": "2024-03-01", "val": 9}],
		"USD": [{"form": "20-F", "fp": "FY", "end": "2023-12-31", "filed": "2024-03-01", "val": 10}]
	}}}}}`)

	f := parseFundamentals("ACME", doc)
	require.Len(t, f.Series["net_income"], 1)
	assert.Equal(t, 10.0, f.Series["net_income"][0].Value, "USD units win when present")

	foreign := mustParse(t, `{"facts": {"us-gaap": {"NetIncomeLoss": {"units": {
		"JPY": [{"form": "20-F", "fp": "FY", "end": "2023-12-31", "filed": "2024-03-01", "val": 1500}]
	}}}}}`)

	f = parseFundamentals("ACME", foreign)
	require.Len(t, f.Series["net_income"], 1)
	assert.Equal(t, 1500.0, f.Series["net_income"][0].Value, "foreign filers fall back to their unit")
}

func TestParseFundamentalsMissingFP(t *testing.T) {
	// older facts omit fp entirely; they still count as annual
	doc := mustParse(t, `{"facts": {"us-gaap": {"Liabilities": {"units": {"USD": [
		{"form": "10-K", "end": "2015-12-31", "filed": "2016-02-01", "val": 42}
	]}}}}}`)

	f := parseFundamentals("ACME", doc)
	require.Len(t, f.Series["liabilities"], 1)
	assert.Equal(t, 42.0, f.Series["liabilities"][0].Value)
}

func TestParseFundamentalsFreeCashFlow(t *testing.T) {
	doc := mustParse(t, `{"facts": {"us-gaap": {
		"NetCashProvidedByUsedInOperatingActivities": {"units": {"USD": [
			{"form": "10-K", "fp": "FY", "end": "2022-12-31", "filed": "2023-02-01", "val": 100},
			{"form": "10-K", "fp": "FY", "end": "2023-12-31", "filed": "2024-02-01", "val": 120}
		]}},
		"PaymentsToAcquirePropertyPlantAndEquipment": {"units": {"USD": [
			{"form": "10-K", "fp": "FY", "end": "2022-12-31", "filed": "2023-02-01", "val": 30},
			{"form": "10-K", "fp": "FY", "end": "2023-12-31", "filed": "2024-02-01", "val": -25}
		]}}
	}}}`)

	f := parseFundamentals("ACME", doc)
	fcf := f.Series["free_cf"]
	require.Len(t, fcf, 2)
	assert.Equal(t, 70.0, fcf[0].Value, "positive capex is subtracted")
	assert.Equal(t, 95.0, fcf[1].Value, "negatively signed capex is added")
}

func TestParseFundamentalsEmptyDocument(t *testing.T) {
	f := parseFundamentals("ACME", mustParse(t, `{}`))
	assert.Empty(t, f.Series)

	_, ok := f.Latest("assets")
	assert.False(t, ok)
}
