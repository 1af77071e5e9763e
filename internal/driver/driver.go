// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package driver implements C8, the PIC driver: it orchestrates C4-C7
// across K components, persists the top-level artefacts (call rate,
// genotype stats, components, PICs, summary stats), and applies the
// resume/roll-back/stop-or-continue policy across components. It is ported
// from the reference implementation's PICALO.start, generalised to this
// module's own matrix and QC types.
package driver

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/bitjungle/picalo/internal/covariates"
	"github.com/bitjungle/picalo/internal/ieqtl"
	"github.com/bitjungle/picalo/internal/normalize"
	"github.com/bitjungle/picalo/internal/optimizer"
	"github.com/bitjungle/picalo/internal/qc"
	"github.com/bitjungle/picalo/pkg/matrixio"
	"github.com/bitjungle/picalo/pkg/types"
)

// Input bundles every loaded, validated matrix and setting the driver needs.
type Input struct {
	EQTLs          []types.EQTL
	Geno           types.Matrix // E x S, raw (before QC)
	Expr           types.Matrix // E x S, raw (Run sets missing-genotype cells to NaN after QC)
	Covariates     types.Matrix // K_C x S, candidate seeds
	CovariateNames []string
	TechCov        types.Matrix // S x K_T, may be nil
	TechCovInter   types.Matrix // S x K_TI, may be nil
	Samples        types.SampleSet
	Config         types.Config
	Log            *logrus.Logger
}

// Summary is the driver's final report.
type Summary struct {
	ComponentsPerformed int
	PICs                types.Matrix
	SummaryStats        types.Matrix // N_components x 2: iterative #ieQTLs, raw #ieQTLs
}

// Run executes the full PICALO pipeline and writes every top-level output
// file under in.Config.OutDir (§6).
func Run(in Input) (*Summary, error) {
	log := in.Log
	outDir := in.Config.OutDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	datasets := in.Samples.Datasets
	for _, ds := range datasets {
		if len(ds.SampleIdxs) < in.Config.MinDatasetSize {
			log.Warnf("dataset %q has only %d samples, fewer than the recommended minimum of %d",
				ds.Name, len(ds.SampleIdxs), in.Config.MinDatasetSize)
		}
	}

	th := qc.Thresholds{
		GenotypeNA:    in.Config.GenotypeNA,
		CallRate:      in.Config.CallRate,
		HardyWeinberg: in.Config.HardyWeinberg,
		MAF:           in.Config.MAF,
		MinGroupSize:  in.Config.MinGroupSize,
		EQTLAlpha:     in.Config.EQTLAlpha,
	}

	fdrKept := qc.FilterByDiscoveryFDR(in.EQTLs, th.EQTLAlpha)
	eqtls := subsetEQTLs(in.EQTLs, fdrKept)
	geno := subsetRows(in.Geno, fdrKept)
	expr := subsetRows(in.Expr, fdrKept)

	log.Infof("calculating genotype call rate per dataset for %d eQTLs", len(eqtls))
	callRate := qc.ApplyCallRate(geno, datasets, th)
	if err := writeCallRate(outDir, eqtls, datasets, callRate.CallRate); err != nil {
		return nil, err
	}

	stats := qc.ComputeGenotypeStats(geno, th)
	if err := writeGenotypeStats(outDir, eqtls, stats); err != nil {
		return nil, err
	}

	var keptIdxs []int
	for i, keep := range stats.Keep {
		if keep {
			keptIdxs = append(keptIdxs, i)
		}
	}
	log.Infof("%d of %d eQTLs passed QC", len(keptIdxs), len(eqtls))

	eqtls = subsetEQTLs(eqtls, keptIdxs)
	geno = subsetRows(geno, keptIdxs)
	expr = subsetRows(expr, keptIdxs)

	// Only after QC has run its call-rate/HWE/MAF comparisons against the raw
	// sentinel value do missing genotypes become NaN (§3; the reference
	// implementation's main.start only fills NaN after validate_data, well
	// after calculate_call_rate/calculate_genotype_stats have consumed the
	// sentinel-valued matrix).
	applyMissingSentinel(geno, expr, th.GenotypeNA)

	d := dummyMatrix(in.Samples)
	xCorr := covariates.BuildXCorr(d, in.TechCov, in.TechCovInter)
	xCorrInter := covariates.BuildXCorrInter(d, in.TechCovInter)

	n := in.Config.NComponents
	s := in.Samples.N()
	picM := make(types.Matrix, n)
	summaryStats := make(types.Matrix, n)
	for i := range summaryStats {
		summaryStats[i] = []float64{math.NaN(), math.NaN()}
	}

	var picCorr, picCorrInter types.Matrix
	performed := 0
	stop := false
	var components types.Matrix

	for comp := 0; comp < n; comp++ {
		if stop {
			log.Warn("last component did not converge")
			if !in.Config.ForceContinue {
				log.Warn("stopping further identification of components")
				break
			}
		}

		compOutDir := filepath.Join(outDir, fmt.Sprintf("PIC%d", comp+1))
		if err := os.MkdirAll(compOutDir, 0o755); err != nil {
			return nil, err
		}

		if performed > 0 {
			prevPIC := picM[performed-1]
			picCorr = appendColumn(picCorr, prevPIC)
			picCorrInter = appendColumn(picCorrInter, prevPIC)
		}

		componentPath := filepath.Join(compOutDir, "component.npy")
		var pic []float64
		var nHits int

		if matrixio.ComponentExists(componentPath) {
			log.Infof("PIC%d has already been identified; resuming", comp+1)
			var err error
			pic, err = matrixio.LoadComponentNpy(componentPath)
			if err != nil {
				return nil, types.NewComputationError(fmt.Sprintf("resuming PIC%d: failed to load persisted component", comp+1), err)
			}
			nHits = readPreviousHitCount(compOutDir)
		} else {
			compExpr := copyMatrix(expr)
			if err := covariates.Residualize(compExpr, geno, xCorr, xCorrInter, in.Config.Workers); err != nil {
				return nil, err
			}
			if picCorr != nil {
				if err := residualizeAgainstPICs(compExpr, geno, picCorr, picCorrInter, in.Config.Workers); err != nil {
					return nil, err
				}
			}

			seeds := buildSeeds(in.Covariates, in.CovariateNames)
			result, err := optimizer.Run(optimizer.Input{
				EQTLs:    eqtls,
				Geno:     geno,
				Expr:     compExpr,
				Seeds:    seeds,
				Datasets: datasets,
				Samples:  in.Samples.Samples,
				OutDir:   compOutDir,
				Cfg: optimizer.Config{
					Alpha:   in.Config.EQTLAlpha,
					MinIter: in.Config.MinIter,
					MaxIter: in.Config.MaxIter,
					Tol:     in.Config.Tol,
					Workers: in.Config.Workers,
				},
			})
			if err != nil {
				return nil, err
			}

			stop = result.Stop
			nHits = result.NHits
			summaryStats[comp][0] = float64(nHits)
			if result.Context == nil {
				log.Warnf("PIC%d could not be identified (discarded at iteration 0)", comp+1)
				if !in.Config.ForceContinue {
					break
				}
				continue
			}
			pic = result.Context
			if err := matrixio.SaveComponentNpy(componentPath, pic); err != nil {
				return nil, err
			}
		}

		picM[performed] = pic
		summaryStats[comp][0] = float64(nHits)
		performed++

		components = make(types.Matrix, performed)
		copy(components, picM[:performed])
		if err := writeComponents(outDir, in.Samples.Samples, components, performed); err != nil {
			return nil, err
		}
	}

	if performed == 0 {
		log.Error("no PICs identified")
		if err := writeSummaryStats(outDir, summaryStats, n); err != nil {
			return nil, err
		}
		return &Summary{ComponentsPerformed: 0, SummaryStats: summaryStats}, nil
	}

	pics := components
	if stop && !in.Config.ForceContinue {
		pics = components[:len(components)-1]
	}
	if err := writePICs(outDir, in.Samples.Samples, pics); err != nil {
		return nil, err
	}

	if len(pics) > 0 {
		if err := mapRawIeqtls(in, outDir, eqtls, geno, expr, xCorr, xCorrInter, pics, datasets, summaryStats); err != nil {
			return nil, err
		}
	}

	if err := writeSummaryStats(outDir, summaryStats, n); err != nil {
		return nil, err
	}

	return &Summary{ComponentsPerformed: performed, PICs: pics, SummaryStats: summaryStats}, nil
}

// mapRawIeqtls maps interactions with each discovered PIC, without
// correcting for any other PIC, and reports the raw significant count
// (§6, "Raw #ieQTLs").
func mapRawIeqtls(in Input, outDir string, eqtls []types.EQTL, geno, expr, xCorr, xCorrInter, pics types.Matrix,
	datasets []types.Dataset, summaryStats types.Matrix) error {

	pieqtlDir := filepath.Join(outDir, "PIC_interactions")
	if err := os.MkdirAll(pieqtlDir, 0o755); err != nil {
		return err
	}

	corrected := copyMatrix(expr)
	if err := covariates.Residualize(corrected, geno, xCorr, xCorrInter, in.Config.Workers); err != nil {
		return err
	}

	for i, pic := range pics {
		name := fmt.Sprintf("PIC%d", i+1)
		picExpr := copyMatrix(corrected)
		if err := covariates.ResidualizeElementwise(picExpr, geno, pic, in.Config.Workers); err != nil {
			return err
		}
		normalize.Matrix(picExpr, datasets)
		fnPic := append([]float64(nil), pic...)
		normalize.Row(fnPic, datasets)

		results, err := ieqtl.Map(eqtls, geno, picExpr, fnPic, in.Config.EQTLAlpha, in.Config.Workers)
		if err != nil {
			return err
		}
		hits := 0
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			if r.Significant {
				hits++
			}
			rows = append(rows, []string{
				eqtls[r.Index].SNPName, eqtls[r.Index].ProbeName,
				formatFloat(r.PValue), formatFloat(r.QValue), boolStr(r.Significant),
			})
		}
		if err := matrixio.WriteTable(filepath.Join(pieqtlDir, name+".txt.gz"),
			[]string{"SNP", "Gene", "p-value", "FDR", "Significant"}, rows); err != nil {
			return err
		}
		if i < len(summaryStats) {
			summaryStats[i][1] = float64(hits)
		}
	}
	return nil
}

func residualizeAgainstPICs(compExpr, geno, picCorr, picCorrInter types.Matrix, workers int) error {
	return covariates.Residualize(compExpr, geno, picCorr, picCorrInter, workers)
}

func buildSeeds(candidates types.Matrix, names []string) []optimizer.Seed {
	seeds := make([]optimizer.Seed, len(candidates))
	for i, row := range candidates {
		name := fmt.Sprintf("covariate%d", i)
		if i < len(names) {
			name = names[i]
		}
		seeds[i] = optimizer.Seed{Name: name, Values: append([]float64(nil), row...)}
	}
	return seeds
}

func dummyMatrix(ss types.SampleSet) types.Matrix {
	return ss.DatasetIndicator()
}

func subsetEQTLs(eqtls []types.EQTL, idxs []int) []types.EQTL {
	out := make([]types.EQTL, len(idxs))
	for i, idx := range idxs {
		out[i] = eqtls[idx]
	}
	return out
}

func subsetRows(m types.Matrix, idxs []int) types.Matrix {
	out := make(types.Matrix, len(idxs))
	for i, idx := range idxs {
		out[i] = m[idx]
	}
	return out
}

// applyMissingSentinel converts every genotype cell equal to the missing
// sentinel (and its paired expression cell) to NaN, in place, now that QC's
// sentinel-valued comparisons are done (§3, §4.4).
func applyMissingSentinel(geno, expr types.Matrix, na float64) {
	for i, row := range geno {
		for j, v := range row {
			if v == na {
				expr[i][j] = math.NaN()
				geno[i][j] = math.NaN()
			}
		}
	}
}

func copyMatrix(m types.Matrix) types.Matrix {
	out := make(types.Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func appendColumn(m types.Matrix, col []float64) types.Matrix {
	if m == nil {
		out := make(types.Matrix, len(col))
		for i, v := range col {
			out[i] = []float64{v}
		}
		return out
	}
	out := make(types.Matrix, len(m))
	for i, row := range m {
		out[i] = append(append([]float64(nil), row...), col[i])
	}
	return out
}

func readPreviousHitCount(compOutDir string) int {
	header, rows, err := matrixio.ReadTable(filepath.Join(compOutDir, "info.txt.gz"))
	if err != nil || len(rows) == 0 {
		return 0
	}
	last := rows[len(rows)-1]
	for j, h := range header {
		if h == "N" && j < len(last) {
			v, err := strconv.ParseFloat(last[j], 64)
			if err != nil {
				return 0
			}
			return int(v)
		}
	}
	return 0
}

func writeCallRate(outDir string, eqtls []types.EQTL, datasets []types.Dataset, callRate types.Matrix) error {
	labels := make([]string, len(eqtls))
	for i, e := range eqtls {
		labels[i] = e.SNPName + "_" + e.ProbeName
	}
	cols := make([]string, len(datasets))
	for i, ds := range datasets {
		cols[i] = ds.Name + " CR"
	}
	m := &types.LabeledMatrix{Data: callRate, RowLabels: labels, ColLabels: cols}
	return matrixio.Save(filepath.Join(outDir, "call_rate.txt.gz"), m, matrixio.DefaultOptions())
}

func writeGenotypeStats(outDir string, eqtls []types.EQTL, stats qc.GenotypeStats) error {
	labels := make([]string, len(eqtls))
	for i, e := range eqtls {
		labels[i] = e.SNPName + "_" + e.ProbeName
	}
	cols := []string{"N", "NaN", "0", "1", "2", "min GS", "HW pval", "allele1", "allele2", "MAF", "mask"}
	data := make(types.Matrix, len(eqtls))
	for i := range eqtls {
		mask := 0.0
		if stats.Keep[i] {
			mask = 1
		}
		data[i] = []float64{
			float64(stats.N[i]), float64(stats.NaN[i]), float64(stats.Zero[i]), float64(stats.One[i]), float64(stats.Two[i]),
			float64(stats.MinGroupSize[i]), stats.HWEPValue[i], float64(stats.Allele1[i]), float64(stats.Allele2[i]),
			stats.MAF[i], mask,
		}
	}
	m := &types.LabeledMatrix{Data: data, RowLabels: labels, ColLabels: cols}
	return matrixio.Save(filepath.Join(outDir, "genotype_stats.txt.gz"), m, matrixio.DefaultOptions())
}

func writeComponents(outDir string, samples []string, components types.Matrix, performed int) error {
	if performed == 0 {
		return nil
	}
	labels := make([]string, performed)
	for i := range labels {
		labels[i] = fmt.Sprintf("PIC%d", i+1)
	}
	m := &types.LabeledMatrix{Data: components, RowLabels: labels, ColLabels: samples}
	return matrixio.Save(filepath.Join(outDir, "components.txt.gz"), m, matrixio.DefaultOptions())
}

func writePICs(outDir string, samples []string, pics types.Matrix) error {
	labels := make([]string, len(pics))
	for i := range labels {
		labels[i] = fmt.Sprintf("PIC%d", i+1)
	}
	m := &types.LabeledMatrix{Data: pics, RowLabels: labels, ColLabels: samples}
	return matrixio.Save(filepath.Join(outDir, "PICs.txt.gz"), m, matrixio.DefaultOptions())
}

func writeSummaryStats(outDir string, summaryStats types.Matrix, n int) error {
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = fmt.Sprintf("PIC%d", i+1)
	}
	m := &types.LabeledMatrix{Data: summaryStats, RowLabels: labels, ColLabels: []string{"Iterative #ieQTLs", "Raw #ieQTLs"}}
	return matrixio.Save(filepath.Join(outDir, "SummaryStats.txt.gz"), m, matrixio.DefaultOptions())
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
func boolStr(b bool) string        { return strconv.FormatBool(b) }
