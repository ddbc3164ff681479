// Package format renders impact figures for display.
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const NotAvailable = "N/A"

type CurrencyOptions struct {
	// Long spells out "billion"/"million" instead of "B"/"M".
	Long bool
	// PerPerson switches to small-amount precision for per-capita figures.
	PerPerson bool
}

type PercentOptions struct {
	// Tariff marks v as a fraction in [0,1] that is shown as a whole percent.
	Tariff bool
}

var TariffPercent = PercentOptions{Tariff: true}

func Currency(v *float64, opts CurrencyOptions) string {
	if v == nil || math.IsNaN(*v) {
		return NotAvailable
	}
	value := *v

	if opts.PerPerson {
		switch {
		case value < 0.01:
			return "$" + fixed(value, 3)
		case value < 0.1:
			return "$" + fixed(value, 2)
		default:
			return "$" + fixed(value, 1)
		}
	}

	abs := math.Abs(value)
	switch {
	case abs >= 1e8:
		return "$" + fixed(value/1e9, 1) + " " + suffix(opts.Long, "B", "billion")
	case abs >= 1e5:
		return "$" + fixed(value/1e6, 1) + " " + suffix(opts.Long, "M", "million")
	default:
		return "$" + fixed(value, 0)
	}
}

// Percentage formats v as a percentage string. Tariff fractions are scaled by
// 100 and rounded to whole percent, with positive values below one half shown
// as "<1%". Other values keep one significant digit.
func Percentage(v *float64, opts PercentOptions) string {
	scaled := PercentValue(v, opts)
	if scaled == nil {
		return NotAvailable
	}
	if !opts.Tariff {
		return trimFloat(oneSignificant(*scaled)) + "%"
	}
	rounded := math.Round(*scaled)
	if *scaled > 0 && rounded == 0 {
		return "<1%"
	}
	if rounded == 0 {
		rounded = 0
	}
	return trimFloat(rounded) + "%"
}

// PercentValue returns the unrounded number Percentage would display.
func PercentValue(v *float64, opts PercentOptions) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	scaled := *v
	if opts.Tariff {
		scaled *= 100
	}
	return &scaled
}

func Possessive(name string) string {
	return name + "'s"
}

func suffix(long bool, short, full string) string {
	if long {
		return full
	}
	return short
}

func fixed(v float64, decimals int) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', decimals, 64)
	intPart, frac, hasFrac := strings.Cut(s, ".")
	if n, err := strconv.ParseInt(intPart, 10, 64); err == nil {
		intPart = humanize.Comma(n)
	}
	out := intPart
	if hasFrac {
		out += "." + frac
	}
	if v < 0 && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	return out
}

func oneSignificant(v float64) float64 {
	parsed, err := strconv.ParseFloat(strconv.FormatFloat(v, 'e', 0, 64), 64)
	if err != nil {
		return v
	}
	return parsed
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
