// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package cli

import (
	"fmt"
	"strconv"

	"github.com/bitjungle/picalo/pkg/matrixio"
	"github.com/bitjungle/picalo/pkg/types"
)

// loadEQTLTable reads the eQTL table (§6: requires SNPName, ProbeName, FDR
// columns, in any column order).
func loadEQTLTable(path string) ([]types.EQTL, error) {
	header, rows, err := matrixio.ReadTable(path)
	if err != nil {
		return nil, err
	}
	snpCol, probeCol, fdrCol := -1, -1, -1
	for i, h := range header {
		switch h {
		case "SNPName":
			snpCol = i
		case "ProbeName":
			probeCol = i
		case "FDR":
			fdrCol = i
		}
	}
	if snpCol < 0 || probeCol < 0 || fdrCol < 0 {
		return nil, types.NewValidationError(fmt.Sprintf(
			"eQTL table %s must have SNPName, ProbeName and FDR columns", path), nil)
	}

	eqtls := make([]types.EQTL, len(rows))
	for i, row := range rows {
		fdr, err := strconv.ParseFloat(row[fdrCol], 64)
		if err != nil {
			return nil, fmt.Errorf("eqtl table row %d: FDR: %w", i, err)
		}
		eqtls[i] = types.EQTL{SNPName: row[snpCol], ProbeName: row[probeCol], FDR: fdr}
	}
	return eqtls, nil
}

// loadSampleToDataset reads the two-column (sample, dataset) mapping table
// (§6) in file order, which establishes sample identity once and for all.
func loadSampleToDataset(path string) (samples, datasetTags []string, err error) {
	_, rows, err := matrixio.ReadTable(path)
	if err != nil {
		return nil, nil, err
	}
	samples = make([]string, len(rows))
	datasetTags = make([]string, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, nil, types.NewValidationError(fmt.Sprintf(
				"sample-to-dataset table %s: row %d has fewer than 2 columns", path, i), nil)
		}
		samples[i] = row[0]
		datasetTags[i] = row[1]
	}
	return samples, datasetTags, nil
}

// buildSampleSet orders datasets by descending sample count (§3 "columns
// ordered by descending dataset size; this order is authoritative
// throughout") and builds the per-dataset column index lists.
func buildSampleSet(samples, datasetTags []string) types.SampleSet {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, tag := range datasetTags {
		if _, ok := counts[tag]; !ok {
			order = append(order, tag)
		}
		counts[tag]++
	}
	// Stable sort by descending count, ties broken by first appearance.
	sorted := append([]string(nil), order...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && counts[sorted[j]] > counts[sorted[j-1]]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	datasets := make([]types.Dataset, len(sorted))
	for i, name := range sorted {
		datasets[i] = types.Dataset{Name: name}
	}
	indexByName := make(map[string]int, len(sorted))
	for i, name := range sorted {
		indexByName[name] = i
	}
	for idx, tag := range datasetTags {
		di := indexByName[tag]
		datasets[di].SampleIdxs = append(datasets[di].SampleIdxs, idx)
	}

	return types.SampleSet{Samples: samples, Dataset: datasetTags, Datasets: datasets}
}
