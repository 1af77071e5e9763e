// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package qc implements C4, the QC filter applied to the eQTL panel before
// the optimiser ever sees it: bulk eQTL FDR filtering, per-dataset call
// rate, and per-row Hardy-Weinberg/MAF/minor-group-size gating (§4.4). The
// exact Hardy-Weinberg test is the Wigginton-Cutler-Abecasis test, carried
// over step for step from the reference implementation's matrix form but
// evaluated per row, which is arithmetically identical.
package qc

import (
	"math"

	"github.com/bitjungle/picalo/pkg/types"
)

// Thresholds collects the QC cutoffs read from the run configuration.
type Thresholds struct {
	GenotypeNA     float64
	MinDatasetSize int
	CallRate       float64
	HardyWeinberg  float64
	MAF            float64
	MinGroupSize   int
	EQTLAlpha      float64
}

// FilterByDiscoveryFDR returns the indices of eQTLs whose discovery FDR is
// below alpha (§4.4 step 1): the bulk pre-filter applied before any
// per-dataset or per-row computation.
func FilterByDiscoveryFDR(eqtls []types.EQTL, alpha float64) []int {
	kept := make([]int, 0, len(eqtls))
	for i, e := range eqtls {
		if e.FDR < alpha {
			kept = append(kept, i)
		}
	}
	return kept
}

// CallRateResult holds the per-(row, dataset) call rate. The genotype
// matrix itself is updated in place by ApplyCallRate.
type CallRateResult struct {
	CallRate types.Matrix // E x K_D
}

// ApplyCallRate computes, for every (row, dataset) pair, the fraction of
// non-missing genotypes, and for any pair below thresholds.CallRate replaces
// that dataset's genotypes on that row with the missing sentinel (§4.4 step
// 2). G is modified in place; the returned matrix holds the call rates
// themselves, one column per dataset.
func ApplyCallRate(g types.Matrix, datasets []types.Dataset, t Thresholds) CallRateResult {
	rates := make(types.Matrix, len(g))
	for i, row := range g {
		rates[i] = make([]float64, len(datasets))
		for k, ds := range datasets {
			n := len(ds.SampleIdxs)
			if n == 0 {
				rates[i][k] = math.NaN()
				continue
			}
			present := 0
			for _, idx := range ds.SampleIdxs {
				if row[idx] != t.GenotypeNA {
					present++
				}
			}
			rate := float64(present) / float64(n)
			rates[i][k] = rate
			if rate < t.CallRate {
				for _, idx := range ds.SampleIdxs {
					row[idx] = t.GenotypeNA
				}
			}
		}
	}
	return CallRateResult{CallRate: rates}
}

// GenotypeStats holds the per-row summary statistics computed from the
// post-call-rate genotype matrix (§4.4 step 3).
type GenotypeStats struct {
	N            []int
	NaN          []int
	Zero         []int
	One          []int
	Two          []int
	MinGroupSize []int
	HWEPValue    []float64
	Allele1      []int
	Allele2      []int
	MAF          []float64
	Keep         []bool
}

// ComputeGenotypeStats computes N, 0/1/2 counts, minimum genotype-group
// size, the Hardy-Weinberg p-value, allele counts, MAF, and the combined
// keep mask (§4.4 steps 3-4) for every row of g.
func ComputeGenotypeStats(g types.Matrix, t Thresholds) GenotypeStats {
	e := len(g)
	stats := GenotypeStats{
		N: make([]int, e), NaN: make([]int, e),
		Zero: make([]int, e), One: make([]int, e), Two: make([]int, e),
		MinGroupSize: make([]int, e), HWEPValue: make([]float64, e),
		Allele1: make([]int, e), Allele2: make([]int, e),
		MAF: make([]float64, e), Keep: make([]bool, e),
	}

	for i, row := range g {
		var zero, one, two, missing int
		for _, v := range row {
			if v == t.GenotypeNA {
				missing++
				continue
			}
			switch math.Round(v) {
			case 0:
				zero++
			case 1:
				one++
			case 2:
				two++
			}
		}
		n := len(row) - missing
		minGroup := zero
		if one < minGroup {
			minGroup = one
		}
		if two < minGroup {
			minGroup = two
		}

		stats.N[i] = n
		stats.NaN[i] = missing
		stats.Zero[i] = zero
		stats.One[i] = one
		stats.Two[i] = two
		stats.MinGroupSize[i] = minGroup
		stats.HWEPValue[i] = hweExactPValue(one, zero, two)

		allele1 := 2*zero + one
		allele2 := 2*two + one
		stats.Allele1[i] = allele1
		stats.Allele2[i] = allele2
		total := allele1 + allele2
		maf := 0.0
		if total > 0 {
			minAllele := allele1
			if allele2 < minAllele {
				minAllele = allele2
			}
			maf = float64(minAllele) / float64(total)
		}
		stats.MAF[i] = maf

		stats.Keep[i] = n >= 6 && minGroup >= t.MinGroupSize &&
			stats.HWEPValue[i] >= t.HardyWeinberg && maf > t.MAF
	}
	return stats
}

// hweExactPValue computes the exact Wigginton-Cutler-Abecasis test for
// Hardy-Weinberg equilibrium from observed heterozygote and homozygote
// genotype counts.
func hweExactPValue(obsHets, obsHom1, obsHom2 int) float64 {
	obsHomc := obsHom1
	obsHomr := obsHom2
	if obsHom2 > obsHom1 {
		obsHomc = obsHom2
		obsHomr = obsHom1
	}

	rareCopies := 2*obsHomr + obsHets
	genotypes := obsHets + obsHomc + obsHomr
	if genotypes == 0 {
		return 1
	}

	mid := int(math.Round(float64(rareCopies) * float64(2*genotypes-rareCopies) / float64(2*genotypes)))
	if mid%2 != rareCopies%2 {
		mid++
	}

	currHomr := (rareCopies - mid) / 2
	currHomc := genotypes - mid - currHomr

	leftSteps := mid / 2
	hetProbs := make([]float64, leftSteps+1+((rareCopies-mid)/2))
	midIdx := leftSteps
	hetProbs[midIdx] = 1

	sum := hetProbs[midIdx]
	currR, currC := currHomr, currHomc
	h := mid
	for i := midIdx; i > 0; i-- {
		hetProbs[i-1] = hetProbs[i] * float64(h) * float64(h-1) /
			(4 * float64(currR+1) * float64(currC+1))
		currR++
		currC++
		h -= 2
		sum += hetProbs[i-1]
	}

	currR, currC = currHomr, currHomc
	h = mid
	for i := midIdx; i < len(hetProbs)-1; i++ {
		hetProbs[i+1] = hetProbs[i] * 4 * float64(currR) * float64(currC) /
			(float64(h+2) * float64(h+1))
		currR--
		currC--
		h += 2
		sum += hetProbs[i+1]
	}

	for i := range hetProbs {
		hetProbs[i] /= sum
	}

	threshold := hetProbs[obsHets/2]

	p := 0.0
	for _, hp := range hetProbs {
		if hp <= threshold {
			p += hp
		}
	}
	if p > 1 {
		p = 1
	}
	return p
}
