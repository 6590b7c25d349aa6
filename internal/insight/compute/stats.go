// Package compute holds the pure analytics the dispatcher memoizes: basic
// statistics over numeric sequences and the per-kind insight computations over
// plant, activity, weather, and preference snapshots. Functions here perform
// no I/O and keep no state.
package compute

import "math"

// Trend is an ordinary-least-squares fit of y = Slope*i + Intercept over the
// sample index i.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// LinearTrend fits a least-squares line through the values indexed 0..n-1.
// Degenerate inputs (fewer than two samples, or a zero denominator) yield a
// zero trend rather than an error or NaN.
func LinearTrend(values []float64) Trend {
	n := float64(len(values))
	if len(values) < 2 {
		return Trend{}
	}
	var sumI, sumY, sumIY, sumII float64
	for i, y := range values {
		x := float64(i)
		sumI += x
		sumY += y
		sumIY += x * y
		sumII += x * x
	}
	denom := n*sumII - sumI*sumI
	if denom == 0 {
		return Trend{}
	}
	slope := (n*sumIY - sumI*sumY) / denom
	intercept := sumY/n - slope*sumI/n
	return Trend{Slope: slope, Intercept: intercept}
}

// RSquared reports the coefficient of determination for the least-squares fit
// of values, clamped to be non-negative. A constant sequence (zero variance)
// or fewer than two samples yields 0.
func RSquared(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	trend := LinearTrend(values)
	var mean float64
	for _, y := range values {
		mean += y
	}
	mean /= float64(len(values))

	var ssRes, ssTot float64
	for i, y := range values {
		fit := trend.Slope*float64(i) + trend.Intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

// Pearson reports the correlation coefficient between two sequences. Sequences
// of different length, empty sequences, or a zero denominator yield 0.
func Pearson(xs, ys []float64) float64 {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0
	}
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
	}
	num := n*sumXY - sumX*sumY
	denomX := n*sumXX - sumX*sumX
	denomY := n*sumYY - sumY*sumY
	if denomX <= 0 || denomY <= 0 {
		return 0
	}
	return num / (math.Sqrt(denomX) * math.Sqrt(denomY))
}
