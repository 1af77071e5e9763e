// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package driver

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bitjungle/picalo/pkg/types"
)

func buildSampleSet(n int) types.SampleSet {
	samples := make([]string, n)
	dataset := make([]string, n)
	idxs := make([]int, n)
	for i := range samples {
		samples[i] = "sample" + string(rune('A'+i%26))
		dataset[i] = "cohort1"
		idxs[i] = i
	}
	return types.SampleSet{
		Samples:  samples,
		Dataset:  dataset,
		Datasets: []types.Dataset{{Name: "cohort1", SampleIdxs: idxs}},
	}
}

func TestRunEndToEndProducesPICsAndSummaryStats(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n, e := 80, 15

	ss := buildSampleSet(n)
	trueContext := make([]float64, n)
	for i := range trueContext {
		trueContext[i] = rng.NormFloat64()
	}

	eqtls := make([]types.EQTL, e)
	geno := make(types.Matrix, e)
	expr := make(types.Matrix, e)
	for i := 0; i < e; i++ {
		eqtls[i] = types.EQTL{SNPName: "rs" + string(rune('A'+i)), ProbeName: "gene" + string(rune('A'+i)), FDR: 0.001}
		g := make([]float64, n)
		y := make([]float64, n)
		for k := 0; k < n; k++ {
			// Balance genotype groups across the sample set so call
			// rate/HWE/MAF/min-group-size QC all pass.
			g[k] = float64(k % 3)
			y[k] = 2*g[k] + 3*g[k]*trueContext[k] + 0.05*rng.NormFloat64()
		}
		geno[i] = g
		expr[i] = y
	}

	covariates := types.Matrix{make([]float64, n)}
	for i := range covariates[0] {
		covariates[0][i] = trueContext[i] + 0.3*rng.NormFloat64()
	}

	out := t.TempDir()
	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg := types.DefaultConfig()
	cfg.OutDir = out
	cfg.NComponents = 1
	cfg.MinIter = 3
	cfg.MaxIter = 15
	cfg.Tol = 1e-2
	cfg.Workers = 2
	cfg.CallRate = 0 // synthetic data has no missingness to rate-limit

	in := Input{
		EQTLs:          eqtls,
		Geno:           geno,
		Expr:           expr,
		Covariates:     covariates,
		CovariateNames: []string{"seed"},
		Samples:        ss,
		Config:         cfg,
		Log:            log,
	}

	summary, err := Run(in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ComponentsPerformed == 0 {
		t.Fatalf("expected at least one PIC to be identified")
	}
	for _, name := range []string{"call_rate.txt.gz", "genotype_stats.txt.gz", "components.txt.gz", "PICs.txt.gz", "SummaryStats.txt.gz"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}
}

// TestRunForceContinueAttemptsLaterComponentAfterDegenerateFirst mirrors
// optimizer.TestRunDegeneratesCleanlyOnNoSignal's zero-signal panel: the
// first component has no interaction signal at all, so the optimiser
// discards it at iteration 0 (Context == nil). With -force_continue the
// driver must still attempt PIC2 rather than halting after PIC1 (§7, §8
// scenario 6).
func TestRunForceContinueAttemptsLaterComponentAfterDegenerateFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n, e := 80, 15

	ss := buildSampleSet(n)
	trueContext := make([]float64, n)
	for i := range trueContext {
		trueContext[i] = rng.NormFloat64()
	}

	eqtls := make([]types.EQTL, e)
	geno := make(types.Matrix, e)
	expr := make(types.Matrix, e)
	for i := 0; i < e; i++ {
		eqtls[i] = types.EQTL{SNPName: "rs" + string(rune('A'+i)), ProbeName: "gene" + string(rune('A'+i)), FDR: 0.001}
		g := make([]float64, n)
		y := make([]float64, n)
		for k := 0; k < n; k++ {
			g[k] = float64(k % 3)
			// No interaction term: the context has no bearing on the
			// eQTL effect, so there is nothing for the optimiser to find.
			y[k] = 2*g[k] + 0.05*rng.NormFloat64()
		}
		geno[i] = g
		expr[i] = y
	}

	covariates := types.Matrix{make([]float64, n)}
	for i := range covariates[0] {
		covariates[0][i] = rng.NormFloat64()
	}

	out := t.TempDir()
	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg := types.DefaultConfig()
	cfg.OutDir = out
	cfg.NComponents = 2
	cfg.ForceContinue = true
	cfg.MinIter = 3
	cfg.MaxIter = 15
	cfg.Tol = 1e-2
	cfg.Workers = 2
	cfg.CallRate = 0

	in := Input{
		EQTLs:          eqtls,
		Geno:           geno,
		Expr:           expr,
		Covariates:     covariates,
		CovariateNames: []string{"seed"},
		Samples:        ss,
		Config:         cfg,
		Log:            log,
	}

	if _, err := Run(in); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "PIC1")); err != nil {
		t.Fatalf("expected PIC1 directory to be created even though it was discarded: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "PIC1", "component.npy")); err == nil {
		t.Fatalf("expected PIC1/component.npy to NOT exist for a discarded first component")
	}
	if _, err := os.Stat(filepath.Join(out, "PIC2", "component.npy")); err != nil {
		t.Fatalf("expected PIC2/component.npy to be attempted under -force_continue: %v", err)
	}
}
