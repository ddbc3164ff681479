// Package impact computes the monetary cost of a tariff and its size relative
// to a base such as GDP or population. Missing inputs propagate as nil.
package impact

import (
	"math"

	"tariffsim/internal/model"
)

// USD returns exports * rate.
func USD(exports, rate *float64) *float64 {
	e, ok := finite(exports)
	if !ok {
		return nil
	}
	r, ok := finite(rate)
	if !ok {
		return nil
	}
	return model.Num(e * r)
}

// Ratio returns value / base, or nil when base is missing or zero.
func Ratio(value, base *float64) *float64 {
	v, ok := finite(value)
	if !ok {
		return nil
	}
	b, ok := finite(base)
	if !ok || b == 0 {
		return nil
	}
	return model.Num(v / b)
}

func PerCapita(exports, rate, population *float64) *float64 {
	return Ratio(USD(exports, rate), population)
}

// GDPShare is the tariff cost as a fraction of total GDP.
func GDPShare(exports, rate, gdp *float64) *float64 {
	return Ratio(USD(exports, rate), gdp)
}

func finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}
