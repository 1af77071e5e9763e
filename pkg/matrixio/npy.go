// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package matrixio

import (
	"fmt"
	"os"

	"github.com/kshedden/gonpy"
)

// LoadComponentNpy reads a previously persisted component vector (one value
// per sample) from a NumPy ".npy" file, the format PIC components are
// checkpointed in (§6, resume support).
func LoadComponentNpy(filename string) ([]float64, error) {
	r, err := gonpy.NewFileReader(filename)
	if err != nil {
		return nil, fmt.Errorf("matrixio: open npy %s: %w", filename, err)
	}
	values, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("matrixio: read npy %s: %w", filename, err)
	}
	return values, nil
}

// SaveComponentNpy writes a component vector to a ".npy" file so a later run
// can resume from it without recomputing converged components.
func SaveComponentNpy(filename string, values []float64) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("matrixio: create npy %s: %w", filename, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := gonpy.NewWriter(f)
	if err != nil {
		return fmt.Errorf("matrixio: npy writer %s: %w", filename, err)
	}
	w.Shape = []int{len(values)}
	if err := w.WriteFloat64(values); err != nil {
		return fmt.Errorf("matrixio: write npy %s: %w", filename, err)
	}
	return nil
}

// ComponentExists reports whether a checkpointed component file is already
// present, the resume condition the driver (C8) checks before recomputing a
// PIC.
func ComponentExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
