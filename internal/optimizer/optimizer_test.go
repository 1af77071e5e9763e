// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package optimizer

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitjungle/picalo/pkg/types"
)

func syntheticPanel(t *testing.T, n, e int, seed int64, signal float64) ([]types.EQTL, types.Matrix, types.Matrix, []float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	trueContext := make([]float64, n)
	for i := range trueContext {
		trueContext[i] = rng.NormFloat64()
	}

	eqtls := make([]types.EQTL, e)
	geno := make(types.Matrix, e)
	expr := make(types.Matrix, e)
	for i := 0; i < e; i++ {
		eqtls[i] = types.EQTL{SNPName: "rs" + string(rune('A'+i)), ProbeName: "gene" + string(rune('A'+i))}
		g := make([]float64, n)
		y := make([]float64, n)
		for k := 0; k < n; k++ {
			g[k] = float64(k % 3)
			y[k] = signal*g[k]*trueContext[k] + 0.05*rng.NormFloat64()
		}
		geno[i] = g
		expr[i] = y
	}
	return eqtls, geno, expr, trueContext
}

func TestRunConvergesFromSingleSeed(t *testing.T) {
	n, e := 120, 20
	eqtls, geno, expr, trueContext := syntheticPanel(t, n, e, 42, 3.0)

	samples := make([]string, n)
	for i := range samples {
		samples[i] = "sample" + string(rune('A'+i%26))
	}
	datasets := []types.Dataset{{Name: "all", SampleIdxs: sequentialIdxs(n)}}

	seedValues := make([]float64, n)
	for i := range seedValues {
		seedValues[i] = trueContext[i] + 0.5*rand.New(rand.NewSource(7)).NormFloat64()
	}

	out := t.TempDir()
	in := Input{
		EQTLs:    eqtls,
		Geno:     geno,
		Expr:     expr,
		Seeds:    []Seed{{Name: "seed", Values: seedValues}},
		Datasets: datasets,
		Samples:  samples,
		OutDir:   out,
		Cfg:      Config{Alpha: 0.05, MinIter: 3, MaxIter: 30, Tol: 1e-2, Workers: 2},
	}

	result, err := Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NHits <= 1 {
		t.Fatalf("expected a converged component with hits, got NHits=%d", result.NHits)
	}
	if len(result.Context) != n {
		t.Fatalf("expected context of length %d, got %d", n, len(result.Context))
	}
	if _, err := os.Stat(filepath.Join(out, "iteration.txt.gz")); err != nil {
		t.Fatalf("expected iteration.txt.gz to be written: %v", err)
	}
}

func TestRunDegeneratesCleanlyOnNoSignal(t *testing.T) {
	n, e := 60, 10
	eqtls, geno, expr, _ := syntheticPanel(t, n, e, 1, 0.0) // no interaction signal at all

	samples := make([]string, n)
	for i := range samples {
		samples[i] = "sample" + string(rune('A'+i%26))
	}
	datasets := []types.Dataset{{Name: "all", SampleIdxs: sequentialIdxs(n)}}
	rng := rand.New(rand.NewSource(9))
	seedValues := make([]float64, n)
	for i := range seedValues {
		seedValues[i] = rng.NormFloat64()
	}

	out := t.TempDir()
	in := Input{
		EQTLs:    eqtls,
		Geno:     geno,
		Expr:     expr,
		Seeds:    []Seed{{Name: "seed", Values: seedValues}},
		Datasets: datasets,
		Samples:  samples,
		OutDir:   out,
		Cfg:      Config{Alpha: 0.05, MinIter: 3, MaxIter: 10, Tol: 1e-2, Workers: 1},
	}

	result, err := Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.NHits > 1 {
		t.Fatalf("expected degeneracy (NHits<=1) with no interaction signal, got %d", result.NHits)
	}
	if result.Stop {
		t.Fatalf("expected Stop=false after a clean abort")
	}
}

func sequentialIdxs(n int) []int {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	return idxs
}

func TestSumAbsNormDelta(t *testing.T) {
	pre := []float64{-10, -5}
	post := []float64{-8, -5}
	got := sumAbsNormDelta(pre, post)
	want := math.Abs(-8-(-10))/math.Abs(-10) + math.Abs(-5-(-5))/math.Abs(-5)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("sumAbsNormDelta = %v, want %v", got, want)
	}
}
