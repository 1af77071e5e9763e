// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package qc

import (
	"math"
	"testing"

	"github.com/bitjungle/picalo/pkg/types"
)

func defaultThresholds() Thresholds {
	c := types.DefaultConfig()
	return Thresholds{
		GenotypeNA:    c.GenotypeNA,
		CallRate:      c.CallRate,
		HardyWeinberg: c.HardyWeinberg,
		MAF:           c.MAF,
		MinGroupSize:  c.MinGroupSize,
		EQTLAlpha:     c.EQTLAlpha,
	}
}

func TestFilterByDiscoveryFDR(t *testing.T) {
	eqtls := []types.EQTL{
		{SNPName: "rs1", FDR: 0.001},
		{SNPName: "rs2", FDR: 0.2},
		{SNPName: "rs3", FDR: 0.049},
	}
	kept := FilterByDiscoveryFDR(eqtls, 0.05)
	if len(kept) != 2 || kept[0] != 0 || kept[1] != 2 {
		t.Fatalf("kept = %v, want [0 2]", kept)
	}
}

func TestApplyCallRateMasksLowCallRateDataset(t *testing.T) {
	na := -1.0
	g := types.Matrix{
		{0, 1, na, na, 0, 2, 1, 0}, // dataset a: 2/4 present; dataset b: all present
	}
	datasets := []types.Dataset{
		{Name: "a", SampleIdxs: []int{0, 1, 2, 3}},
		{Name: "b", SampleIdxs: []int{4, 5, 6, 7}},
	}
	th := defaultThresholds()
	th.GenotypeNA = na
	result := ApplyCallRate(g, datasets, th)

	if result.CallRate[0][0] != 0.5 {
		t.Fatalf("dataset a call rate = %v, want 0.5", result.CallRate[0][0])
	}
	for _, idx := range datasets[0].SampleIdxs {
		if g[0][idx] != na {
			t.Fatalf("expected dataset a genotypes masked, row=%v", g[0])
		}
	}
	for _, idx := range datasets[1].SampleIdxs {
		if g[0][idx] == na {
			t.Fatalf("dataset b should not have been masked, row=%v", g[0])
		}
	}
}

func TestComputeGenotypeStatsBasic(t *testing.T) {
	// A balanced row: 5 of genotype 0, 5 of genotype 1, 5 of genotype 2.
	row := make([]float64, 0, 15)
	for i := 0; i < 5; i++ {
		row = append(row, 0)
	}
	for i := 0; i < 5; i++ {
		row = append(row, 1)
	}
	for i := 0; i < 5; i++ {
		row = append(row, 2)
	}
	g := types.Matrix{row}
	th := defaultThresholds()

	stats := ComputeGenotypeStats(g, th)
	if stats.N[0] != 15 {
		t.Fatalf("N = %d, want 15", stats.N[0])
	}
	if stats.Zero[0] != 5 || stats.One[0] != 5 || stats.Two[0] != 5 {
		t.Fatalf("counts = %d/%d/%d, want 5/5/5", stats.Zero[0], stats.One[0], stats.Two[0])
	}
	if stats.MinGroupSize[0] != 5 {
		t.Fatalf("min group size = %d, want 5", stats.MinGroupSize[0])
	}
	if stats.HWEPValue[0] < 0 || stats.HWEPValue[0] > 1 {
		t.Fatalf("HWE p-value out of range: %v", stats.HWEPValue[0])
	}
	if stats.MAF[0] <= 0 || stats.MAF[0] > 0.5 {
		t.Fatalf("MAF out of range: %v", stats.MAF[0])
	}
}

func TestComputeGenotypeStatsDropsMonomorphicRow(t *testing.T) {
	row := make([]float64, 20)
	for i := range row {
		row[i] = 0 // every sample homozygous reference: MAF = 0
	}
	g := types.Matrix{row}
	th := defaultThresholds()
	stats := ComputeGenotypeStats(g, th)
	if stats.Keep[0] {
		t.Fatalf("expected a monomorphic row to be dropped")
	}
	if stats.MAF[0] != 0 {
		t.Fatalf("expected MAF 0, got %v", stats.MAF[0])
	}
}

func TestComputeGenotypeStatsRespectsGenotypeNA(t *testing.T) {
	na := -1.0
	row := []float64{0, 0, 0, 1, 1, 2, na, na}
	g := types.Matrix{row}
	th := defaultThresholds()
	th.GenotypeNA = na
	stats := ComputeGenotypeStats(g, th)
	if stats.NaN[0] != 2 {
		t.Fatalf("NaN count = %d, want 2", stats.NaN[0])
	}
	if stats.N[0] != 6 {
		t.Fatalf("N = %d, want 6", stats.N[0])
	}
}

func TestHWEExactPValueExtremeExcessHetsIsSignificant(t *testing.T) {
	// All heterozygous, no homozygotes: a strong departure from HWE.
	p := hweExactPValue(30, 0, 0)
	if math.IsNaN(p) || p < 0 || p > 1 {
		t.Fatalf("p-value out of range: %v", p)
	}
	if p > 0.05 {
		t.Fatalf("expected a significant HWE departure, got p=%v", p)
	}
}

func TestHWEExactPValueBalancedIsNotSignificant(t *testing.T) {
	// Hardy-Weinberg expected proportions for allele frequency 0.5 over
	// n=100: roughly 25/50/25.
	p := hweExactPValue(50, 25, 25)
	if p < 0.5 {
		t.Fatalf("expected a high HWE p-value near equilibrium, got %v", p)
	}
}
