// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Package logging provides PICALO's single I/O-bearing shared object (§9):
// a file-backed structured logger. It owns the run's log file and must be
// closed once, on scope exit, to guarantee the file is flushed.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger that writes to both stderr and a log file
// under the run's output directory.
type Logger struct {
	*logrus.Logger
	file *os.File
}

// New creates a Logger writing to <outDir>/picalo.log and to stderr. Both
// outputs share one level: when verbose is false it is Info, and debug-level
// messages are written to neither stderr nor the log file.
func New(outDir string, verbose bool) (*Logger, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(outDir, "picalo.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(io.MultiWriter(os.Stderr, f))
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: l, file: f}, nil
}

// Close flushes and closes the underlying log file. Safe to call once.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
