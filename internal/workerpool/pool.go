// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Package workerpool runs a fixed-size pool of goroutines over a range of
// row indices. It is the parallelism primitive behind the two hot inner
// loops (§5): per-row residualisation (C5) and per-eQTL interaction mapping
// (C6). Each worker writes only to the output slot matching the row index
// it was handed, so there is no cross-worker ordering dependency and the
// only genuine cross-row reduction (the (a,b) coefficient sum in C7) is
// done afterwards, in a single deterministic pass.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Run executes fn(i) for every i in [0, n), using up to workers goroutines.
// workers <= 0 means runtime.GOMAXPROCS(0). If any fn(i) returns an error,
// Run stops dispatching new work and returns the first error encountered;
// in-flight calls are allowed to finish.
func Run(n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	rows := make(chan int, n)
	for i := 0; i < n; i++ {
		rows <- i
	}
	close(rows)

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range rows {
				if ctx.Err() != nil {
					return nil
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
