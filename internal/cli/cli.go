// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Package cli assembles PICALO's command-line surface: a single command
// whose verbs are flags, not subcommands (§6), plus a retained shell
// completion subcommand. It loads and validates every input matrix, builds
// the run configuration, and hands off to the driver.
package cli

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitjungle/picalo/internal/driver"
	"github.com/bitjungle/picalo/internal/logging"
	"github.com/bitjungle/picalo/internal/version"
	"github.com/bitjungle/picalo/pkg/matrixio"
	"github.com/bitjungle/picalo/pkg/types"
)

// NewRootCommand builds the picalo command.
func NewRootCommand() *cobra.Command {
	cfg := types.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "picalo",
		Short: "PICALO - Principal Interaction Component Analysis through Likelihood Optimization",
		Long: `PICALO discovers latent sample-level context variables (Principal
Interaction Components) that modulate the strength of cis-eQTL effects
across a panel of genotype and expression measurements drawn from
several datasets.`,
		Version:       version.Get().Short(),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.EQTLPath, "eq", "", "eQTL table path (required)")
	flags.StringVar(&cfg.GenotypePath, "ge", "", "genotype matrix path (required)")
	flags.StringVar(&cfg.ExpressionPath, "ex", "", "expression matrix path (required)")
	flags.StringVar(&cfg.CovariatePath, "co", "", "covariate matrix path (required)")
	flags.StringVar(&cfg.SampleToDatasetPath, "std", "", "sample-to-dataset table path (required)")
	flags.StringVar(&cfg.TechCovariatePath, "tc", "", "technical covariates, non-interacting (optional)")
	flags.StringVar(&cfg.TechCovariateInterPath, "tci", "", "technical covariates, interacting (optional)")
	flags.Float64Var(&cfg.GenotypeNA, "na", cfg.GenotypeNA, "missing-genotype sentinel value")
	flags.IntVar(&cfg.MinDatasetSize, "mds", cfg.MinDatasetSize, "minimum recommended dataset size")
	flags.Float64Var(&cfg.CallRate, "cr", cfg.CallRate, "minimum per-dataset genotype call rate")
	flags.Float64Var(&cfg.HardyWeinberg, "hw", cfg.HardyWeinberg, "minimum Hardy-Weinberg equilibrium p-value")
	flags.Float64Var(&cfg.MAF, "maf", cfg.MAF, "minimum minor allele frequency")
	flags.IntVar(&cfg.MinGroupSize, "mgs", cfg.MinGroupSize, "minimum genotype group size")
	flags.Float64Var(&cfg.EQTLAlpha, "iea", cfg.EQTLAlpha, "interaction eQTL / discovery FDR threshold")
	flags.IntVar(&cfg.NComponents, "n_components", cfg.NComponents, "number of PICs to identify")
	flags.IntVar(&cfg.MinIter, "min_iter", cfg.MinIter, "minimum optimiser iterations per component")
	flags.IntVar(&cfg.MaxIter, "max_iter", cfg.MaxIter, "maximum optimiser iterations per component")
	flags.Float64Var(&cfg.Tol, "tol", cfg.Tol, "convergence tolerance")
	flags.BoolVar(&cfg.ForceContinue, "force_continue", false, "keep identifying components after a non-converged one")
	flags.StringVarP(&cfg.OutDir, "o", "o", "", "output directory (required)")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "enable debug-level logging")
	flags.IntVar(&cfg.Workers, "workers", 0, "worker pool size (0 = GOMAXPROCS)")

	cmd.AddCommand(newCompletionCommand(cmd))
	return cmd
}

// Execute runs the CLI, returning a process exit code: 0 on success, 1 on
// any failure (validation, abnormal termination, or no PICs identified;
// §6).
func Execute() int {
	cmd := NewRootCommand()
	// Flags are given with a single leading dash (-eq, -n_components); turn
	// any that name a defined long flag into pflag's double-dash form.
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			name := strings.SplitN(a[1:], "=", 2)[0]
			if cmd.Flags().Lookup(name) != nil {
				a = "-" + a
			}
		}
		args = append(args, a)
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(cfg types.Config) error {
	if err := validateRequiredFlags(cfg); err != nil {
		return err
	}

	log, err := logging.New(cfg.OutDir, cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()

	log.Info("loading eQTL, genotype, expression, covariate and sample-to-dataset inputs")
	eqtls, err := loadEQTLTable(cfg.EQTLPath)
	if err != nil {
		return err
	}
	if len(eqtls) == 0 {
		return types.NewInsufficientDataError("no eQTLs in input table")
	}

	genoLM, err := matrixio.Load(cfg.GenotypePath, matrixio.DefaultOptions())
	if err != nil {
		return err
	}
	exprLM, err := matrixio.Load(cfg.ExpressionPath, matrixio.DefaultOptions())
	if err != nil {
		return err
	}
	covLM, err := matrixio.Load(cfg.CovariatePath, matrixio.DefaultOptions())
	if err != nil {
		return err
	}
	samples, datasetTags, err := loadSampleToDataset(cfg.SampleToDatasetPath)
	if err != nil {
		return err
	}

	if len(eqtls) != len(genoLM.Data) {
		return types.NewShapeMismatchError("eQTL table", "genotype matrix", len(eqtls), len(genoLM.Data))
	}
	if len(genoLM.Data) != len(exprLM.Data) {
		return types.NewShapeMismatchError("genotype matrix", "expression matrix", len(genoLM.Data), len(exprLM.Data))
	}
	if err := requireColumnsMatch("genotype matrix", genoLM.ColLabels, samples); err != nil {
		return err
	}
	if err := requireColumnsMatch("expression matrix", exprLM.ColLabels, samples); err != nil {
		return err
	}

	covMatrix, covNames := orientCovariates(covLM, len(samples))
	if len(covMatrix) != len(covLM.Data) {
		log.Warn("covariate matrix: transposing matrix to put candidates on rows")
	}
	if err := requireFinite("covariate matrix", covMatrix); err != nil {
		return err
	}

	var techCov, techCovInter types.Matrix
	if cfg.TechCovariatePath != "" {
		lm, err := matrixio.Load(cfg.TechCovariatePath, matrixio.DefaultOptions())
		if err != nil {
			return err
		}
		techCov, err = orientSamplesOnRows(lm, len(samples), log, "tech. cov. without interaction")
		if err != nil {
			return err
		}
	}
	if cfg.TechCovariateInterPath != "" {
		lm, err := matrixio.Load(cfg.TechCovariateInterPath, matrixio.DefaultOptions())
		if err != nil {
			return err
		}
		techCovInter, err = orientSamplesOnRows(lm, len(samples), log, "tech. cov. with interaction")
		if err != nil {
			return err
		}
	}

	ss := buildSampleSet(samples, datasetTags)

	geno := genoLM.Data
	expr := exprLM.Data

	summary, err := driver.Run(driver.Input{
		EQTLs:          eqtls,
		Geno:           geno,
		Expr:           expr,
		Covariates:     covMatrix,
		CovariateNames: covNames,
		TechCov:        techCov,
		TechCovInter:   techCovInter,
		Samples:        ss,
		Config:         cfg,
		Log:            log.Logger,
	})
	if err != nil {
		return err
	}
	if summary.ComponentsPerformed == 0 {
		return fmt.Errorf("no PICs identified")
	}

	log.Infof("finished: %d PIC(s) identified", summary.ComponentsPerformed)
	return nil
}

func validateRequiredFlags(cfg types.Config) error {
	required := []struct{ flag, value string }{
		{"-eq", cfg.EQTLPath}, {"-ge", cfg.GenotypePath}, {"-ex", cfg.ExpressionPath},
		{"-co", cfg.CovariatePath}, {"-std", cfg.SampleToDatasetPath}, {"-o", cfg.OutDir},
	}
	for _, r := range required {
		if r.value == "" {
			return types.NewConfigurationError(fmt.Sprintf("missing required flag %s", r.flag), nil)
		}
	}
	return nil
}

func requireColumnsMatch(name string, got, want []string) error {
	if len(got) != len(want) {
		return types.NewShapeMismatchError(name+" columns", "sample list", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return types.NewValidationError(fmt.Sprintf(
				"%s column %d (%q) does not match sample list entry (%q)", name, i, got[i], want[i]), nil)
		}
	}
	return nil
}

func requireFinite(name string, m types.Matrix) error {
	for i, row := range m {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return types.NewForbiddenNaNError(name, i, j)
			}
		}
	}
	return nil
}

// orientCovariates puts candidates on the rows (K_C x S), auto-transposing
// if the file instead stored samples as rows, and returns the candidate
// names taken from whichever axis held the non-sample labels.
func orientCovariates(lm *types.LabeledMatrix, nSamples int) (types.Matrix, []string) {
	if len(lm.Data) == nSamples && len(lm.ColLabels) != nSamples {
		return transpose(lm.Data), lm.ColLabels
	}
	return lm.Data, lm.RowLabels
}

// orientSamplesOnRows puts samples on the rows (S x K), auto-transposing if
// the file instead stored samples as columns.
func orientSamplesOnRows(lm *types.LabeledMatrix, nSamples int, log *logging.Logger, name string) (types.Matrix, error) {
	if err := requireFinite(name, lm.Data); err != nil {
		return nil, err
	}
	if len(lm.Data) != nSamples && len(lm.ColLabels) == nSamples {
		log.Warnf("%s: transposing matrix to put samples on rows", name)
		return transpose(lm.Data), nil
	}
	return lm.Data, nil
}

func transpose(m types.Matrix) types.Matrix {
	rows, cols := m.Dims()
	t := make(types.Matrix, cols)
	for j := 0; j < cols; j++ {
		t[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			t[j][i] = m[i][j]
		}
	}
	return t
}

