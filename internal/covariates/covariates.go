// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package covariates implements C5, the covariate conditioner: it builds
// the fixed correction matrices from dataset dummies and technical
// covariates, and residualises gene expression against them, row by row,
// optionally including a genotype-interaction term (§4.5). The full and
// element-wise reduced variants are grounded on the reference
// implementation's remove_covariates and remove_covariates_elementwise.
package covariates

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bitjungle/picalo/internal/linalg"
	"github.com/bitjungle/picalo/internal/workerpool"
	"github.com/bitjungle/picalo/pkg/types"
)

// BuildXCorr constructs X_corr = [1, D[:,1:], T, T_I] (column order fixed,
// §4.5). D, t, and ti may independently be nil/empty.
func BuildXCorr(d, t, ti types.Matrix) types.Matrix {
	s := rows(d)
	if s == 0 {
		s = rows(t)
	}
	if s == 0 {
		s = rows(ti)
	}

	out := make(types.Matrix, s)
	for i := 0; i < s; i++ {
		row := make([]float64, 0, 1+cols(d)+cols(t)+cols(ti))
		row = append(row, 1)
		for k := 1; k < cols(d); k++ {
			row = append(row, d[i][k])
		}
		if i < len(t) {
			row = append(row, t[i]...)
		}
		if i < len(ti) {
			row = append(row, ti[i]...)
		}
		out[i] = row
	}
	return out
}

// BuildXCorrInter constructs X_corr_inter = [D, T_I], the columns used only
// as interacting factors (§4.5).
func BuildXCorrInter(d, ti types.Matrix) types.Matrix {
	s := rows(d)
	if s == 0 {
		s = rows(ti)
	}
	out := make(types.Matrix, s)
	for i := 0; i < s; i++ {
		row := make([]float64, 0, cols(d)+cols(ti))
		if i < len(d) {
			row = append(row, d[i]...)
		}
		if i < len(ti) {
			row = append(row, ti[i]...)
		}
		out[i] = row
	}
	return out
}

func rows(m types.Matrix) int { return len(m) }
func cols(m types.Matrix) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Residualize residualises every row of y in place against
// [X_corr | X_corr_inter * g_i] (§4.5), dropping non-intercept columns whose
// standard deviation over the non-missing samples is zero. It is
// parallelised across rows using the workerpool primitive.
func Residualize(y, g types.Matrix, xCorr, xCorrInter types.Matrix, workers int) error {
	e := len(y)
	return workerpool.Run(e, workers, func(i int) error {
		return residualizeRow(y[i], g[i], xCorr, xCorrInter)
	})
}

// ResidualizeElementwise residualises every row of y in place against the
// element-wise reduced model [1, g_i, c] (§4.7 step 2, the C5 variant used
// inside the optimiser).
func ResidualizeElementwise(y, g types.Matrix, c []float64, workers int) error {
	e := len(y)
	return workerpool.Run(e, workers, func(i int) error {
		return residualizeRowElementwise(y[i], g[i], c)
	})
}

func residualizeRow(y, g []float64, xCorr, xCorrInter types.Matrix) error {
	mask := make([]int, 0, len(y))
	for k, v := range y {
		if !math.IsNaN(v) {
			mask = append(mask, k)
		}
	}
	if len(mask) == 0 {
		return nil
	}

	nBase := cols(xCorr)
	nInter := cols(xCorrInter)
	cand := make([][]float64, nBase+nInter)
	for j := 0; j < nBase; j++ {
		cand[j] = make([]float64, len(mask))
		for r, idx := range mask {
			cand[j][r] = xCorr[idx][j]
		}
	}
	for j := 0; j < nInter; j++ {
		col := make([]float64, len(mask))
		for r, idx := range mask {
			col[r] = xCorrInter[idx][j] * g[idx]
		}
		cand[nBase+j] = col
	}

	keep := []int{0} // intercept (column 0 of X_corr) always kept
	for j := 1; j < len(cand); j++ {
		if !isConstant(cand[j]) {
			keep = append(keep, j)
		}
	}

	return fitAndResidualize(y, mask, cand, keep)
}

func residualizeRowElementwise(y, g []float64, c []float64) error {
	mask := make([]int, 0, len(y))
	for k, v := range y {
		if !math.IsNaN(v) {
			mask = append(mask, k)
		}
	}
	if len(mask) == 0 {
		return nil
	}

	ones := make([]float64, len(mask))
	gs := make([]float64, len(mask))
	cs := make([]float64, len(mask))
	for r, idx := range mask {
		ones[r] = 1
		gs[r] = g[idx]
		cs[r] = c[idx]
	}
	cand := [][]float64{ones, gs, cs}
	keep := []int{0}
	for j := 1; j < len(cand); j++ {
		if !isConstant(cand[j]) {
			keep = append(keep, j)
		}
	}
	return fitAndResidualize(y, mask, cand, keep)
}

func fitAndResidualize(y []float64, mask []int, cand [][]float64, keep []int) error {
	n := len(mask)
	d := len(keep)
	xData := make([]float64, n*d)
	for r := 0; r < n; r++ {
		for j, k := range keep {
			xData[r*d+j] = cand[k][r]
		}
	}
	yData := make([]float64, n)
	for r, idx := range mask {
		yData[r] = y[idx]
	}

	X := mat.NewDense(n, d, xData)
	fit, err := linalg.OLSFit(X, yData)
	if err != nil {
		return err
	}
	for r, idx := range mask {
		y[idx] = fit.Residuals[r]
	}
	return nil
}

func isConstant(xs []float64) bool {
	if len(xs) == 0 {
		return true
	}
	first := xs[0]
	for _, v := range xs[1:] {
		if v != first {
			return false
		}
	}
	return true
}
