// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package optimizer implements C7, the interaction optimiser: the iterative
// loop that turns a seed context vector (or a handful of candidate seeds on
// the first component) into a single converged Principal Interaction
// Component. It is ported step for step from the reference
// implementation's InteractionOptimizer.process, substituting this
// module's C2/C3/C5/C6 equivalents for the corresponding Python routines.
package optimizer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bitjungle/picalo/internal/covariates"
	"github.com/bitjungle/picalo/internal/ieqtl"
	"github.com/bitjungle/picalo/internal/linalg"
	"github.com/bitjungle/picalo/internal/normalize"
	"github.com/bitjungle/picalo/pkg/matrixio"
	"github.com/bitjungle/picalo/pkg/types"
)

// Seed is a candidate context vector considered at iteration 0. When more
// than one Seed is supplied, the optimiser tries each in turn and keeps the
// one that jointly maximises (N significant ieQTLs, min-per-sample) (§4.7
// step 1).
type Seed struct {
	Name   string
	Values []float64
}

// Config collects the optimiser's tunables (§4.7, §6).
type Config struct {
	Alpha   float64
	MinIter int
	MaxIter int
	Tol     float64
	Workers int
}

// Input is everything one call to Run needs to produce a single PIC.
type Input struct {
	EQTLs    []types.EQTL
	Geno     types.Matrix // E x S, QC-filtered
	Expr     types.Matrix // E x S, residualised against fixed covariates + prior PICs
	Seeds    []Seed
	Datasets []types.Dataset
	Samples  []string
	OutDir   string
	Cfg      Config
}

// Result is the optimiser's output: the converged (or last) context vector,
// how many significant ieQTLs it produced, and whether the driver should
// stop after this component (§4.7, §4.8).
type Result struct {
	Context             []float64
	NHits               int
	Stop                bool
	IterationsPerformed int
	Covariate           string
}

type iterationOutcome struct {
	hits          int
	hitsPerSample []float64
	results       []types.IeQTLResult
}

// Run executes the iterative loop described in §4.7 and persists the
// per-component artefacts (iteration.txt.gz, n_hits_per_sample.txt.gz,
// info.txt.gz, covariate_selection.txt.gz, results_iterationNNN.txt.gz)
// under in.OutDir.
func Run(in Input) (*Result, error) {
	if err := os.MkdirAll(in.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("optimizer: create outdir: %w", err)
	}

	s := len(in.Samples)
	var context []float64
	cov := ""
	nHits := 0
	stop := true
	prevHits := 0
	var prevIncluded map[string]bool

	var iterations [][]float64
	var nHitsPerSampleRows [][]float64
	var infoRows [][]float64
	performed := 0

	if len(in.Seeds) == 1 {
		context = append([]float64(nil), in.Seeds[0].Values...)
		cov = in.Seeds[0].Name
	}

	for iteration := 0; iteration < in.Cfg.MaxIter; iteration++ {
		var outcome iterationOutcome
		var currentContext []float64

		if context == nil {
			best, err := selectSeed(in, iteration)
			if err != nil {
				return nil, err
			}
			if best == nil {
				stop = false
				context = nil
				break
			}
			cov = best.name
			context = best.values
			currentContext = best.values
			outcome = best.outcome
			if err := writeCovariateSelection(in.OutDir, best.allHits); err != nil {
				return nil, err
			}
		} else {
			currentContext = context
			var err error
			outcome, err = evaluateSeed(in, context)
			if err != nil {
				return nil, err
			}
		}

		if err := writeIterationResults(in.OutDir, iteration, in.Cfg.MaxIter, in.EQTLs, outcome); err != nil {
			return nil, err
		}

		nHits = outcome.hits
		minPerSample := minFloat(outcome.hitsPerSample)

		if nHits <= 1 {
			if iteration == 0 {
				context = nil
				stop = false
			}
			break
		}
		if minPerSample <= 1 {
			if iteration == 0 {
				context = nil
				stop = false
			}
			break
		}

		optimizedContext := jointOptimize(outcome.results, s)

		if iteration == 0 {
			iterations = append(iterations, currentContext)
		}
		iterations = append(iterations, optimizedContext)
		nHitsPerSampleRows = append(nHitsPerSampleRows, outcome.hitsPerSample)

		preLL := totalLogLikelihood(outcome.results, currentContext)
		postLL := totalLogLikelihood(outcome.results, optimizedContext)
		sumAbsNormDeltaLL := sumAbsNormDelta(preLL, postLL)

		pearsonR := linalg.PearsonR(currentContext, optimizedContext)

		includedIDs := includedIeqtlIDs(in.EQTLs, outcome.results)
		nOverlap := math.NaN()
		pctOverlap := math.NaN()
		if prevIncluded != nil {
			overlap := 0
			for id := range includedIDs {
				if prevIncluded[id] {
					overlap++
				}
			}
			nOverlap = float64(overlap)
			pctOverlap = (100.0 / float64(prevHits)) * nOverlap
		}
		infoRows = append(infoRows, []float64{
			float64(nHits), minPerSample, nOverlap, pctOverlap, sumAbsNormDeltaLL, pearsonR,
		})

		if iteration >= 3 && iteration >= in.Cfg.MinIter {
			r1 := linalg.PearsonR(iterations[iteration-1], iterations[iteration+1])
			r2 := linalg.PearsonR(iterations[iteration-2], iterations[iteration])

			currentPassed := (1 - r1) < in.Cfg.Tol
			previousPassed := (1 - r2) < in.Cfg.Tol
			if currentPassed || previousPassed {
				if (!currentPassed && previousPassed) ||
					(currentPassed && previousPassed && prevHits > nHits) {
					context = iterations[iteration]
					nHits = prevHits
				} else {
					performed++
				}
				stop = false
				break
			}
		}

		context = optimizedContext
		prevHits = nHits
		prevIncluded = includedIDs
		performed++

		if performed >= in.Cfg.MinIter && (1-pearsonR) < in.Cfg.Tol {
			stop = false
			break
		}
	}

	if err := writeIterationHistory(in.OutDir, in.Samples, iterations, performed); err != nil {
		return nil, err
	}
	if performed > 0 {
		if err := writeNHitsPerSample(in.OutDir, in.Samples, nHitsPerSampleRows, performed); err != nil {
			return nil, err
		}
		if err := writeInfo(in.OutDir, cov, infoRows, performed); err != nil {
			return nil, err
		}
	}

	return &Result{
		Context:             context,
		NHits:               nHits,
		Stop:                stop,
		IterationsPerformed: performed,
		Covariate:           cov,
	}, nil
}

type seedChoice struct {
	name    string
	values  []float64
	outcome iterationOutcome
	allHits []struct {
		Name string
		Hits int
	}
}

// selectSeed implements §4.7 step 1: try every candidate seed and keep the
// one jointly maximising (N significant ieQTLs, min-per-sample), requiring
// min-per-sample >= 2.
func selectSeed(in Input, iteration int) (*seedChoice, error) {
	best := &seedChoice{}
	bestHits := -1
	bestMin := 0.0
	found := false

	type hitRow struct {
		Name string
		Hits int
	}
	var allHits []hitRow

	for _, seed := range in.Seeds {
		outcome, err := evaluateSeed(in, seed.Values)
		if err != nil {
			return nil, err
		}
		allHits = append(allHits, hitRow{seed.Name, outcome.hits})
		minPerSample := minFloat(outcome.hitsPerSample)
		if minPerSample < 2 {
			continue
		}
		if outcome.hits > bestHits || (outcome.hits == bestHits && minPerSample > bestMin) {
			best.name = seed.Name
			best.values = append([]float64(nil), seed.Values...)
			best.outcome = outcome
			bestHits = outcome.hits
			bestMin = minPerSample
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	for _, h := range allHits {
		best.allHits = append(best.allHits, struct {
			Name string
			Hits int
		}{h.Name, h.Hits})
	}
	return best, nil
}

// evaluateSeed residualises expression against the element-wise reduced
// model, force-normalises it and the candidate context, then runs the ieQTL
// mapper (§4.7 step 2-3).
func evaluateSeed(in Input, c []float64) (iterationOutcome, error) {
	expr := copyMatrix(in.Expr)
	if err := covariates.ResidualizeElementwise(expr, in.Geno, c, in.Cfg.Workers); err != nil {
		return iterationOutcome{}, err
	}
	normalize.Matrix(expr, in.Datasets)

	fnContext := append([]float64(nil), c...)
	normalize.Row(fnContext, in.Datasets)

	results, err := ieqtl.Map(in.EQTLs, in.Geno, expr, fnContext, in.Cfg.Alpha, in.Cfg.Workers)
	if err != nil {
		return iterationOutcome{}, err
	}

	s := len(in.Samples)
	hitsPerSample := make([]float64, s)
	hits := 0
	for _, r := range results {
		if !r.Significant {
			continue
		}
		hits++
		for k := 0; k < s; k++ {
			if r.CoefA[k] != 0 {
				hitsPerSample[k]++
			}
		}
	}

	return iterationOutcome{hits: hits, hitsPerSample: hitsPerSample, results: results}, nil
}

// jointOptimize implements §4.7 step 6: sum the (a, b) coefficients across
// significant ieQTLs and take the vertex of the resulting quadratic.
func jointOptimize(results []types.IeQTLResult, s int) []float64 {
	aSum := make([]float64, s)
	bSum := make([]float64, s)
	for _, r := range results {
		if !r.Significant {
			continue
		}
		for k := 0; k < s; k++ {
			aSum[k] += r.CoefA[k]
			bSum[k] += r.CoefB[k]
		}
	}
	return linalg.VertexX(aSum, bSum)
}

func totalLogLikelihood(results []types.IeQTLResult, c []float64) []float64 {
	ll := make([]float64, 0, len(results))
	for _, r := range results {
		if !r.Significant {
			continue
		}
		rr := r
		ll = append(ll, rr.LogLikelihood(c))
	}
	return ll
}

func sumAbsNormDelta(pre, post []float64) float64 {
	sum := 0.0
	for i := range pre {
		sum += math.Abs(post[i]-pre[i]) / math.Abs(pre[i])
	}
	return sum
}

func includedIeqtlIDs(eqtls []types.EQTL, results []types.IeQTLResult) map[string]bool {
	ids := make(map[string]bool)
	for _, r := range results {
		if r.Significant {
			ids[eqtls[r.Index].SNPName+"_"+eqtls[r.Index].ProbeName] = true
		}
	}
	return ids
}

func minFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func copyMatrix(m types.Matrix) types.Matrix {
	out := make(types.Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func writeCovariateSelection(outDir string, hits []struct {
	Name string
	Hits int
}) error {
	rows := make([][]string, len(hits))
	for i, h := range hits {
		rows[i] = []string{h.Name, strconv.Itoa(h.Hits)}
	}
	return matrixio.WriteTable(filepath.Join(outDir, "covariate_selection.txt.gz"),
		[]string{"Covariate", "N-ieQTLs"}, rows)
}

func writeIterationResults(outDir string, iteration, maxIter int, eqtls []types.EQTL, outcome iterationOutcome) error {
	width := len(strconv.Itoa(maxIter))
	name := fmt.Sprintf("results_iteration%0*d.txt.gz", width, iteration)

	rows := make([][]string, len(outcome.results))
	for i, r := range outcome.results {
		rows[i] = []string{
			eqtls[r.Index].SNPName,
			eqtls[r.Index].ProbeName,
			strconv.FormatFloat(r.PValue, 'g', -1, 64),
			strconv.FormatFloat(r.QValue, 'g', -1, 64),
			strconv.FormatBool(r.Significant),
		}
	}
	return matrixio.WriteTable(filepath.Join(outDir, name),
		[]string{"SNP", "Gene", "p-value", "FDR", "Significant"}, rows)
}

func writeIterationHistory(outDir string, samples []string, iterations [][]float64, performed int) error {
	labels := make([]string, len(iterations))
	if len(iterations) > 0 {
		labels[0] = "start"
	}
	for i := 1; i < len(iterations); i++ {
		labels[i] = fmt.Sprintf("iteration%d", i-1)
	}
	m := &types.LabeledMatrix{Data: types.Matrix(iterations), RowLabels: labels, ColLabels: samples}
	return matrixio.Save(filepath.Join(outDir, "iteration.txt.gz"), m, matrixio.DefaultOptions())
}

func writeNHitsPerSample(outDir string, samples []string, rows [][]float64, performed int) error {
	labels := make([]string, len(rows))
	for i := range rows {
		labels[i] = fmt.Sprintf("iteration%d", i)
	}
	m := &types.LabeledMatrix{Data: types.Matrix(rows), RowLabels: labels, ColLabels: samples}
	return matrixio.Save(filepath.Join(outDir, "n_hits_per_sample.txt.gz"), m, matrixio.DefaultOptions())
}

func writeInfo(outDir, covariate string, rows [][]float64, performed int) error {
	header := []string{"covariate", "N", "min N per sample", "N Overlap", "Overlap %",
		"Sum Abs Normalized Delta Log Likelihood", "Pearson r"}
	strRows := make([][]string, len(rows))
	for i, row := range rows {
		strRow := make([]string, 0, len(row)+2)
		strRow = append(strRow, fmt.Sprintf("iteration%d", i), covariate)
		for _, v := range row {
			strRow = append(strRow, strconv.FormatFloat(v, 'g', -1, 64))
		}
		strRows[i] = strRow
	}
	return matrixio.WriteTable(filepath.Join(outDir, "info.txt.gz"),
		append([]string{"-"}, header...), strRows)
}
