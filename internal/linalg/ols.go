// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Package linalg implements the linear-algebra kernel (C2): OLS fit,
// inverse/pseudo-inverse, residuals, RSS, standard errors, the nested
// F-test p-value, the vertex of a quadratic, and Pearson's r.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MinPValue is the smallest p-value returned by NestedFTestPValue; values
// that would underflow below this are clamped (§4.2, §8).
const MinPValue = 2.2250738585072014e-308

// Fit holds the result of an OLS fit: coefficients, fitted values and
// whether the normal matrix was singular (pseudo-inverse fallback used).
type Fit struct {
	Beta      []float64
	Fitted    []float64
	Residuals []float64
	RSS       float64
	XtXInv    *mat.Dense // (X^T X)^-1 or its pseudo-inverse
	Singular  bool
	N, D      int
}

// OLSFit fits y ~ X by ordinary least squares. X is n x d, y has length n.
// On a singular X^T X it falls back to the Moore-Penrose pseudo-inverse
// and continues (§7 "Singular design matrix").
func OLSFit(X *mat.Dense, y []float64) (*Fit, error) {
	n, d := X.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("linalg: OLSFit: y has length %d, want %d", len(y), n)
	}
	if n < d {
		return nil, fmt.Errorf("linalg: OLSFit: fewer samples (%d) than parameters (%d)", n, d)
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	xtxInv, singular := invertOrPseudoInverse(&xtx)

	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	beta.MulVec(xtxInv, &xty)

	betaSlice := make([]float64, d)
	for i := 0; i < d; i++ {
		betaSlice[i] = beta.AtVec(i)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	residuals := make([]float64, n)
	fittedSlice := make([]float64, n)
	rss := 0.0
	for i := 0; i < n; i++ {
		fittedSlice[i] = fitted.AtVec(i)
		r := y[i] - fittedSlice[i]
		residuals[i] = r
		rss += r * r
	}

	return &Fit{
		Beta:      betaSlice,
		Fitted:    fittedSlice,
		Residuals: residuals,
		RSS:       rss,
		XtXInv:    xtxInv,
		Singular:  singular,
		N:         n,
		D:         d,
	}, nil
}

// invertOrPseudoInverse inverts a square matrix, falling back to its
// Moore-Penrose pseudo-inverse (via SVD) if it is singular.
func invertOrPseudoInverse(m *mat.Dense) (inv *mat.Dense, singular bool) {
	n, _ := m.Dims()
	var result mat.Dense
	if err := result.Inverse(m); err == nil {
		return &result, false
	}

	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDFull)
	if !ok {
		// Degenerate input (NaN/Inf); return a zero matrix rather than panic.
		return mat.NewDense(n, n, nil), true
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := float64(n) * values[0] * 2.220446049250313e-16
	sigmaPlus := mat.NewDense(n, n, nil)
	for i, s := range values {
		if s > tol {
			sigmaPlus.Set(i, i, 1/s)
		}
	}

	var tmp mat.Dense
	tmp.Mul(&v, sigmaPlus)
	var pinv mat.Dense
	pinv.Mul(&tmp, u.T())
	return &pinv, true
}

// StandardErrors computes SE_j = sqrt(s^2 * [(X^T X)^-1]_jj), s^2 = RSS/(n-d).
func StandardErrors(f *Fit) []float64 {
	se := make([]float64, f.D)
	if f.N <= f.D {
		for i := range se {
			se[i] = math.NaN()
		}
		return se
	}
	s2 := f.RSS / float64(f.N-f.D)
	for j := 0; j < f.D; j++ {
		se[j] = math.Sqrt(s2 * f.XtXInv.At(j, j))
	}
	return se
}

// NestedFTestPValue computes the p-value of the nested F-test comparing a
// restricted model (RSS1, df1) against a larger nested model (RSS2, df2 >
// df1) fit on n observations (§4.2). Returns 1 if the larger model does not
// reduce RSS. Underflowed p-values are clamped to MinPValue.
func NestedFTestPValue(rss1, rss2 float64, df1, df2, n int) float64 {
	if rss2 >= rss1 {
		return 1
	}
	dfn := float64(df2 - df1)
	dfd := float64(n - df2)
	if dfn <= 0 || dfd <= 0 {
		return 1
	}
	fValue := ((rss1 - rss2) / dfn) / (rss2 / dfd)

	fDist := distuv.F{D1: dfn, D2: dfd}
	p := 1 - fDist.CDF(fValue)
	if p <= 0 || math.IsNaN(p) {
		p = MinPValue
	}
	return p
}

// VertexX computes the vertex x-coordinate -b/(2a) element-wise, with NaN
// wherever a == 0 (§4.2).
func VertexX(a, b []float64) []float64 {
	x := make([]float64, len(a))
	for i := range a {
		if a[i] == 0 {
			x[i] = math.NaN()
			continue
		}
		x[i] = -b[i] / (2 * a[i])
	}
	return x
}

// PearsonR computes the Pearson correlation coefficient between x and y
// with no small-sample correction (§4.2).
func PearsonR(x, y []float64) float64 {
	n := len(x)
	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var dev, xss, yss float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		dev += dx * dy
		xss += dx * dx
		yss += dy * dy
	}
	return dev / math.Sqrt(xss*yss)
}
