// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

// Package types defines the core data structures shared across PICALO:
// the genotype/expression/covariate matrices, the eQTL table, the
// immutable run configuration, and the structured error type used to
// report validation and computation failures.
package types
