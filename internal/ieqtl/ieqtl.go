// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package ieqtl implements C6, the interaction-eQTL mapper: for a candidate
// context vector it fits the nested [1, g, c] / [1, g, c, g·c] models for
// every eQTL, converts the per-eQTL nested F-test into a Benjamini-Hochberg
// q-value, and for every fitted eQTL extracts the per-sample quadratic
// log-likelihood coefficients the optimiser needs for its closed-form joint
// update (§4.6). The F-test and vertex machinery is C2's; the per-sample
// coefficient derivation follows directly from writing the Gaussian
// log-likelihood of a single residual as a quadratic in that sample's
// context value, holding the fitted coefficients and error variance fixed.
package ieqtl

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/bitjungle/picalo/internal/linalg"
	"github.com/bitjungle/picalo/internal/workerpool"
	"github.com/bitjungle/picalo/pkg/types"
)

// Map computes the interaction p-value, BH q-value, significance, and the
// joint-optimisation coefficient arrays for every eQTL, against candidate
// context vector c (§4.6). The arrays are filled whether or not the row is
// significant; callers sum only the significant rows. g and y must have the
// same row count as eqtls; y is expected to already be residualised and NaN
// at missing-genotype positions.
func Map(eqtls []types.EQTL, g, y types.Matrix, c []float64, alpha float64, workers int) ([]types.IeQTLResult, error) {
	results := make([]types.IeQTLResult, len(eqtls))

	err := workerpool.Run(len(eqtls), workers, func(i int) error {
		res, err := fitOne(i, g[i], y[i], c)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	applyBH(results, alpha)
	return results, nil
}

func fitOne(index int, g, y, c []float64) (types.IeQTLResult, error) {
	s := len(g)
	mask := make([]int, 0, s)
	for k := 0; k < s; k++ {
		if !math.IsNaN(g[k]) && !math.IsNaN(y[k]) && !math.IsNaN(c[k]) {
			mask = append(mask, k)
		}
	}
	n := len(mask)
	result := types.IeQTLResult{
		Index:  index,
		PValue: 1,
		CoefA:  make([]float64, s),
		CoefB:  make([]float64, s),
	}
	if n < 5 {
		return result, nil
	}

	mainData := make([]float64, n*3)
	fullData := make([]float64, n*4)
	yData := make([]float64, n)
	for r, idx := range mask {
		gv, cv := g[idx], c[idx]
		mainData[r*3+0], mainData[r*3+1], mainData[r*3+2] = 1, gv, cv
		fullData[r*4+0], fullData[r*4+1], fullData[r*4+2], fullData[r*4+3] = 1, gv, cv, gv*cv
		yData[r] = y[idx]
	}

	Xmain := mat.NewDense(n, 3, mainData)
	Xfull := mat.NewDense(n, 4, fullData)

	mainFit, err := linalg.OLSFit(Xmain, yData)
	if err != nil {
		return result, err
	}
	fullFit, err := linalg.OLSFit(Xfull, yData)
	if err != nil {
		return result, err
	}

	result.PValue = linalg.NestedFTestPValue(mainFit.RSS, fullFit.RSS, 3, 4, n)

	sigma2 := fullFit.RSS / float64(n-4)
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return result, nil
	}
	beta0, beta1, beta2, beta3 := fullFit.Beta[0], fullFit.Beta[1], fullFit.Beta[2], fullFit.Beta[3]

	constLogNorm := -0.5 * math.Log(2*math.Pi*sigma2)
	var constSum float64
	for r, idx := range mask {
		gv := g[idx]
		a := beta0 + beta1*gv
		b := beta2 + beta3*gv
		residualConst := yData[r] - a
		result.CoefA[idx] = -(b * b) / (2 * sigma2)
		result.CoefB[idx] = (residualConst * b) / sigma2
		constSum += constLogNorm - (residualConst*residualConst)/(2*sigma2)
	}
	result.ConstSum = constSum
	return result, nil
}

// applyBH computes the Benjamini-Hochberg q-value across all p-values and
// marks results with q <= alpha as significant.
func applyBH(results []types.IeQTLResult, alpha float64) {
	m := len(results)
	if m == 0 {
		return
	}
	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return results[order[a]].PValue < results[order[b]].PValue
	})

	q := make([]float64, m)
	prevMin := 1.0
	for rank := m - 1; rank >= 0; rank-- {
		idx := order[rank]
		raw := results[idx].PValue * float64(m) / float64(rank+1)
		if raw > 1 {
			raw = 1
		}
		if raw < prevMin {
			prevMin = raw
		}
		q[idx] = prevMin
	}

	for i := range results {
		results[i].QValue = q[i]
		results[i].Significant = q[i] <= alpha
	}
}
