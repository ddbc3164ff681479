package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(v float64) *float64 { return &v }

func TestCurrency(t *testing.T) {
	cases := []struct {
		name  string
		value *float64
		opts  CurrencyOptions
		want  string
	}{
		{"missing", nil, CurrencyOptions{}, "N/A"},
		{"billions short", num(2_345_000_000), CurrencyOptions{}, "$2.3 B"},
		{"billions long", num(2_345_000_000), CurrencyOptions{Long: true}, "$2.3 billion"},
		{"large billions", num(1_234_500_000_000), CurrencyOptions{}, "$1,234.5 B"},
		{"just under billion threshold", num(150_000_000), CurrencyOptions{}, "$0.1 B"},
		{"millions", num(4_560_000), CurrencyOptions{}, "$4.6 M"},
		{"millions long", num(4_560_000), CurrencyOptions{Long: true}, "$4.6 million"},
		{"dollars", num(12_345), CurrencyOptions{}, "$12,345"},
		{"per person tiny", num(0.0042), CurrencyOptions{PerPerson: true}, "$0.004"},
		{"per person small", num(0.042), CurrencyOptions{PerPerson: true}, "$0.04"},
		{"per person", num(1234.56), CurrencyOptions{PerPerson: true}, "$1,234.6"},
		{"negative millions", num(-4_560_000), CurrencyOptions{}, "$-4.6 M"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Currency(tc.value, tc.opts))
		})
	}
}

func TestPercentageTariff(t *testing.T) {
	assert.Equal(t, "N/A", Percentage(nil, TariffPercent))
	assert.Equal(t, "10%", Percentage(num(0.1), TariffPercent))
	assert.Equal(t, "15%", Percentage(num(0.149), TariffPercent))
	assert.Equal(t, "<1%", Percentage(num(0.004), TariffPercent))
	assert.Equal(t, "1%", Percentage(num(0.006), TariffPercent))
	assert.Equal(t, "0%", Percentage(num(0), TariffPercent))
}

func TestPercentageNonTariff(t *testing.T) {
	opts := PercentOptions{}
	assert.Equal(t, "0.02%", Percentage(num(0.0234), opts))
	assert.Equal(t, "100%", Percentage(num(123), opts))
	assert.Equal(t, "3%", Percentage(num(2.7), opts))
}

func TestPercentValue(t *testing.T) {
	v := PercentValue(num(0.25), TariffPercent)
	require.NotNil(t, v)
	assert.InDelta(t, 25, *v, 1e-9)
	assert.Nil(t, PercentValue(nil, TariffPercent))
}

func TestPossessive(t *testing.T) {
	assert.Equal(t, "Kenya's", Possessive("Kenya"))
}
