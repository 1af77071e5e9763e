// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

package linalg

import "math"

// RegressionLogLikelihood computes the Gaussian log-likelihood of a set of
// OLS residuals under their own maximum-likelihood variance estimate. The
// optimiser does not call it; its per-iteration log-likelihood change comes
// from types.IeQTLResult.LogLikelihood.
func RegressionLogLikelihood(residuals []float64) float64 {
	n := float64(len(residuals))
	s := stdDev(residuals)
	if s == 0 {
		return math.Inf(1)
	}
	sumSq := 0.0
	for _, r := range residuals {
		sumSq += r * r
	}
	return -(n/2)*math.Log(2*math.Pi) - n*math.Log(s) - (1/(2*s*s))*sumSq
}

func stdDev(xs []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= n
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / n)
}
