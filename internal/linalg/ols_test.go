// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

package linalg

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestOLSFitPerfectLine(t *testing.T) {
	// y = 2 + 3x
	X := mat.NewDense(5, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
		1, 3,
		1, 4,
	})
	y := []float64{2, 5, 8, 11, 14}

	fit, err := OLSFit(X, y)
	if err != nil {
		t.Fatalf("OLSFit: %v", err)
	}
	if math.Abs(fit.Beta[0]-2) > 1e-9 || math.Abs(fit.Beta[1]-3) > 1e-9 {
		t.Fatalf("got beta %v, want [2 3]", fit.Beta)
	}
	if fit.RSS > 1e-12 {
		t.Fatalf("expected near-zero RSS, got %v", fit.RSS)
	}
}

func TestNestedFTestPValueNoImprovement(t *testing.T) {
	p := NestedFTestPValue(10, 10, 2, 3, 20)
	if p != 1 {
		t.Fatalf("expected p=1 when RSS2 >= RSS1, got %v", p)
	}
	p = NestedFTestPValue(10, 12, 2, 3, 20)
	if p != 1 {
		t.Fatalf("expected p=1 when larger model is worse, got %v", p)
	}
}

func TestNestedFTestPValueRange(t *testing.T) {
	p := NestedFTestPValue(100, 10, 3, 4, 50)
	if p < MinPValue || p > 1 {
		t.Fatalf("p-value out of range: %v", p)
	}
	if p > 0.01 {
		t.Fatalf("expected a small p-value for a large RSS reduction, got %v", p)
	}
}

func TestVertexX(t *testing.T) {
	a := []float64{2, 0, -1}
	b := []float64{-4, 5, 2}
	v := VertexX(a, b)
	if math.Abs(v[0]-1) > 1e-12 {
		t.Fatalf("vertex[0] = %v, want 1", v[0])
	}
	if !math.IsNaN(v[1]) {
		t.Fatalf("vertex[1] should be NaN when a==0, got %v", v[1])
	}
	if math.Abs(v[2]-1) > 1e-12 {
		t.Fatalf("vertex[2] = %v, want 1", v[2])
	}
}

func TestPearsonRIdentical(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	r := PearsonR(x, x)
	if math.Abs(r-1) > 1e-9 {
		t.Fatalf("PearsonR(x,x) = %v, want 1", r)
	}
	y := []float64{5, 4, 3, 2, 1}
	r = PearsonR(x, y)
	if math.Abs(r+1) > 1e-9 {
		t.Fatalf("PearsonR(x,-x) = %v, want -1", r)
	}
}

func TestOLSFitSingularFallsBackToPseudoInverse(t *testing.T) {
	// Third column is a duplicate of the second => X^T X is singular.
	X := mat.NewDense(4, 3, []float64{
		1, 1, 1,
		1, 2, 2,
		1, 3, 3,
		1, 4, 4,
	})
	y := []float64{1, 2, 3, 4}
	fit, err := OLSFit(X, y)
	if err != nil {
		t.Fatalf("OLSFit: %v", err)
	}
	if !fit.Singular {
		t.Fatalf("expected singular fallback to be used")
	}
	if fit.RSS > 1e-6 {
		t.Fatalf("expected near-zero RSS even with the pseudo-inverse, got %v", fit.RSS)
	}
}
