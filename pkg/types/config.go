// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

package types

// Config is the immutable configuration record for one PICALO run (§6, §9
// "All tunables are passed as an immutable configuration record; no
// process-wide mutable state"). It is built once from parsed CLI flags and
// passed down by value/pointer through the driver.
type Config struct {
	// Required input paths.
	EQTLPath       string
	GenotypePath   string
	ExpressionPath string
	CovariatePath  string
	SampleToDatasetPath string

	// Optional input paths.
	TechCovariatePath      string // -tc, non-interacting
	TechCovariateInterPath string // -tci, interacting

	// QC thresholds.
	GenotypeNA       float64 // -na, default -1
	MinDatasetSize   int     // -mds, default 30
	CallRate         float64 // -cr, default 0.95
	HardyWeinberg    float64 // -hw, default 1e-4
	MAF              float64 // -maf, default 0.01
	MinGroupSize     int     // -mgs, default 2
	EQTLAlpha        float64 // -iea (eQTL discovery and ieQTL FDR threshold), default 0.05

	// Optimiser parameters.
	NComponents    int     // -n_components, default 10
	MinIter        int     // -min_iter, default 5
	MaxIter        int     // -max_iter, default 100
	Tol            float64 // -tol, default 1e-3
	ForceContinue  bool    // -force_continue

	// Output & logging.
	OutDir  string // -o
	Verbose bool   // -verbose

	// Worker pool size for the parallel row loops (§5). Zero means
	// "use runtime.GOMAXPROCS(0)".
	Workers int
}

// DefaultConfig returns a Config populated with the defaults from §6.
func DefaultConfig() Config {
	return Config{
		GenotypeNA:     -1,
		MinDatasetSize: 30,
		CallRate:       0.95,
		HardyWeinberg:  1e-4,
		MAF:            0.01,
		MinGroupSize:   2,
		EQTLAlpha:      0.05,
		NComponents:    10,
		MinIter:        5,
		MaxIter:        100,
		Tol:            1e-3,
	}
}
