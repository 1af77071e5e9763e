// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunVisitsEveryIndex(t *testing.T) {
	const n = 1000
	seen := make([]int32, n)
	err := Run(n, 8, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, v)
		}
	}
}

func TestRunPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	err := Run(100, 4, func(i int) error {
		if i == 50 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want %v", err, wantErr)
	}
}

func TestRunZero(t *testing.T) {
	if err := Run(0, 4, func(i int) error {
		t.Fatal("should not be called")
		return nil
	}); err != nil {
		t.Fatalf("Run(0, ...) = %v, want nil", err)
	}
}
