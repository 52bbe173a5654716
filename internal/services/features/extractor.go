// Package features computes the series statistics shared by producers and the regime classifier.
package features

import (
	"math"
	"sort"
)

// LogReturns computes r_t = ln(C_t / C_{t-1}); non-positive prices yield 0 for that step.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// MeanStd returns the sample mean and standard deviation.
func MeanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// RealizedVolatility annualizes the sample deviation of returns.
func RealizedVolatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	_, std := MeanStd(returns)
	return std * math.Sqrt(periodsPerYear)
}

// MomentumZScore is the cumulative return over the series scaled by its expected
// deviation, i.e. sum(r) / (std(r)·sqrt(n)). Flat series score 0.
func MomentumZScore(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	_, std := MeanStd(returns)
	if std == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	return sum / (std * math.Sqrt(float64(len(returns))))
}

// Correlation is the Pearson correlation of the overlapping tail of a and b.
func Correlation(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 3 {
		return 0, false
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, sa := MeanStd(a)
	mb, sb := MeanStd(b)
	if sa == 0 || sb == 0 {
		return 0, false
	}
	var cov float64
	for i := 0; i < n; i++ {
		cov += (a[i] - ma) * (b[i] - mb)
	}
	cov /= float64(n - 1)
	return cov / (sa * sb), true
}

// MeanPairwiseCorrelation averages Correlation over every symbol pair with enough data.
// ok is false when fewer than one pair qualifies.
func MeanPairwiseCorrelation(series map[string][]float64) (float64, bool) {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	var pairs int
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if c, ok := Correlation(series[keys[i]], series[keys[j]]); ok {
				sum += c
				pairs++
			}
		}
	}
	if pairs == 0 {
		return 0, false
	}
	return sum / float64(pairs), true
}
