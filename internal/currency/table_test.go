package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultTable(t *testing.T, opts ...Option) *Table {
	t.Helper()
	table, err := NewTable("SAR", "AED", DefaultRates(), opts...)
	require.NoError(t, err)
	return table
}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable("SAR", "XXX", DefaultRates())
	assert.Error(t, err, "fallback must be present")

	_, err = NewTable("SAR", "AED", map[string]decimal.Decimal{"AED": decimal.Zero})
	assert.Error(t, err, "non-positive rate")

	_, err = NewTable("SAR", "AED", map[string]decimal.Decimal{"SAR": decimal.NewFromInt(2), "AED": decimal.NewFromInt(1)})
	assert.Error(t, err, "pivot rate must be 1")
}

func TestToPivotAndConvert(t *testing.T) {
	table := newDefaultTable(t)

	assert.True(t, table.ToPivot(decimal.NewFromInt(100), "USD").Equal(decimal.NewFromInt(375)))
	assert.True(t, table.Convert(decimal.NewFromInt(375), "SAR", "USD").Equal(decimal.NewFromInt(100)))
	assert.True(t, table.Convert(decimal.NewFromInt(7), "aed", "AED").Equal(decimal.NewFromInt(7)))
}

func TestConvertRoundTrip(t *testing.T) {
	table := newDefaultTable(t)
	x := decimal.RequireFromString("12345.67")
	tolerance := decimal.RequireFromString("0.0001")

	codes := make([]string, 0)
	for code := range DefaultRates() {
		codes = append(codes, code)
	}

	for _, a := range codes {
		for _, b := range codes {
			back := table.Convert(table.Convert(x, a, b), b, a)
			assert.True(t, back.Sub(x).Abs().LessThan(tolerance), "%s->%s->%s: %s", a, b, a, back)
		}
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	var seen []string
	table := newDefaultTable(t, WithFallbackHook(func(code string) { seen = append(seen, code) }))

	rate, ok := table.Rate("ZZZ")
	assert.False(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.021")))

	total := table.SumAcrossCurrencies(map[string]decimal.Decimal{
		"SAR": decimal.NewFromInt(100),
		"ZZZ": decimal.NewFromInt(100),
	}, "SAR")
	assert.True(t, total.Equal(decimal.RequireFromString("202.1")))
	assert.Equal(t, []string{"ZZZ", "ZZZ"}, seen)
}

func TestSumAcrossCurrencies(t *testing.T) {
	table := newDefaultTable(t)

	total := table.SumAcrossCurrencies(map[string]decimal.Decimal{
		"SAR": decimal.NewFromInt(25),
		"USD": decimal.NewFromInt(10),
	}, "SAR")
	assert.True(t, total.Equal(decimal.RequireFromString("62.5")))
}

func TestParseRatesAndMerge(t *testing.T) {
	rates, err := ParseRates(" aed:1.05, USD:3.8 ,")
	require.NoError(t, err)
	assert.True(t, rates["AED"].Equal(decimal.RequireFromString("1.05")))

	merged := Merge(DefaultRates(), rates)
	assert.True(t, merged["USD"].Equal(decimal.RequireFromString("3.8")))
	assert.True(t, merged["OMR"].Equal(decimal.RequireFromString("9.74")))

	_, err = ParseRates("AED=1")
	assert.Error(t, err)
	_, err = ParseRates("AED:abc")
	assert.Error(t, err)
}

func TestProviderReplace(t *testing.T) {
	first := newDefaultTable(t)
	p := NewProvider(first)
	assert.Same(t, first, p.Current())

	second, err := NewTable("SAR", "AED", Merge(DefaultRates(), map[string]decimal.Decimal{"USD": decimal.NewFromInt(4)}))
	require.NoError(t, err)
	p.Replace(second)
	assert.Same(t, second, p.Current())
}
