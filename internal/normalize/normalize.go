// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package normalize implements C3, the per-dataset force-normaliser: within
// each dataset group, every row is rank-transformed across that dataset's
// samples and mapped through the inverse standard-normal CDF, so each
// (dataset, row) pair ends up with empirical mean 0 and unit variance up to
// discrete-rank granularity (§4.3). The rank-then-quantile idiom mirrors the
// teacher toolkit's missing_handler.go, which walks a row, buckets samples,
// and writes the transformed value back into the same slot.
package normalize

import (
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bitjungle/picalo/pkg/types"
)

var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Row force-normalises a single row in place, independently within each
// dataset's column indices. NaN entries are left untouched and excluded from
// the rank computation of their dataset group.
func Row(row []float64, datasets []types.Dataset) {
	for _, ds := range datasets {
		rankTransformGroup(row, ds.SampleIdxs)
	}
}

// Matrix force-normalises every row of m in place.
func Matrix(m types.Matrix, datasets []types.Dataset) {
	for _, row := range m {
		Row(row, datasets)
	}
}

// rankTransformGroup replaces row[idxs] with its per-dataset rank-to-inverse-
// normal transform: rank across non-missing idxs (ties broken ascending,
// 1-based), subtract 0.5, divide by the non-missing group size, then apply
// the standard normal quantile function.
func rankTransformGroup(row []float64, idxs []int) {
	present := make([]int, 0, len(idxs))
	for _, idx := range idxs {
		if !isNaN(row[idx]) {
			present = append(present, idx)
		}
	}
	if len(present) == 0 {
		return
	}

	order := make([]int, len(present))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return row[present[order[a]]] < row[present[order[b]]]
	})

	ranks := make([]float64, len(present))
	for rank, o := range order {
		ranks[o] = float64(rank + 1)
	}

	n := float64(len(present))
	for i, idx := range present {
		p := (ranks[i] - 0.5) / n
		row[idx] = standardNormal.Quantile(p)
	}
}

func isNaN(v float64) bool { return v != v }
