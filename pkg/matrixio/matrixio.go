// Copyright 2025 bitjungle - Rune Mathisen. All rights reserved.
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.
// The author respectfully requests that it not be used for
// military, warfare, or surveillance applications.

// Package matrixio implements C1: loading and saving tab-separated,
// optionally gzip-compressed, numeric matrices with row and column labels
// (§6). It is adapted from the teacher toolkit's pkg/csv reader/writer,
// generalised from a comma-delimited CSV package to the fixed
// tab-delimited, gzip-transparent format PICALO's file formats require.
package matrixio

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bitjungle/picalo/pkg/types"
)

// Options configures how a tab-separated matrix is parsed or written.
type Options struct {
	NullValues  []string // strings treated as missing (NaN)
	Precision   int      // -1 for shortest round-trippable representation
}

// DefaultOptions returns the default null-value set used throughout PICALO.
func DefaultOptions() Options {
	return Options{
		NullValues: []string{"", "NA", "N/A", "nan", "NaN", "null", "NULL"},
		Precision:  -1,
	}
}

// openForRead opens filename, transparently decompressing it if it ends in
// ".gz" (§6 "detected by .gz suffix").
func openForRead(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("matrixio: open %s: %w", filename, err)
	}
	if !strings.HasSuffix(filename, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("matrixio: gzip %s: %w", filename, err)
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

// createForWrite creates filename, transparently gzip-compressing the
// content if it ends in ".gz".
func createForWrite(filename string) (io.WriteCloser, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("matrixio: create %s: %w", filename, err)
	}
	if !strings.HasSuffix(filename, ".gz") {
		return f, nil
	}
	gz := gzip.NewWriter(f)
	return &gzipWriteCloser{gz: gz, f: f}, nil
}

type gzipWriteCloser struct {
	gz *gzip.Writer
	f  *os.File
}

func (g *gzipWriteCloser) Write(p []byte) (int, error) { return g.gz.Write(p) }
func (g *gzipWriteCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// Load reads a tab-separated numeric matrix with a header row of column
// labels and a first column of row labels (§6).
func Load(filename string, opts Options) (*types.LabeledMatrix, error) {
	r, err := openForRead(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Read(r, opts)
}

// Read parses a tab-separated labeled matrix from an io.Reader.
func Read(input io.Reader, opts Options) (*types.LabeledMatrix, error) {
	reader := csv.NewReader(bufio.NewReaderSize(input, 1<<20))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("matrixio: parse: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("matrixio: empty file")
	}

	nullSet := make(map[string]bool, len(opts.NullValues))
	for _, nv := range opts.NullValues {
		nullSet[nv] = true
	}

	colLabels := records[0][1:]
	rowLabels := make([]string, 0, len(records)-1)
	data := make(types.Matrix, 0, len(records)-1)

	for i := 1; i < len(records); i++ {
		row := records[i]
		if len(row) == 0 {
			continue
		}
		rowLabels = append(rowLabels, row[0])
		values := make([]float64, len(row)-1)
		for j := 1; j < len(row); j++ {
			cell := strings.TrimSpace(row[j])
			if nullSet[cell] {
				values[j-1] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("matrixio: row %d, col %d: %w", i, j, err)
			}
			values[j-1] = v
		}
		data = append(data, values)
	}

	return &types.LabeledMatrix{Data: data, RowLabels: rowLabels, ColLabels: colLabels}, nil
}

// Save writes a labeled matrix as a tab-separated file, gzip-compressed if
// filename ends in ".gz".
func Save(filename string, m *types.LabeledMatrix, opts Options) error {
	w, err := createForWrite(filename)
	if err != nil {
		return err
	}
	defer w.Close()
	return Write(w, m, opts)
}

// Write serialises a labeled matrix as tab-separated text.
func Write(output io.Writer, m *types.LabeledMatrix, opts Options) error {
	bw := bufio.NewWriterSize(output, 1<<20)
	defer bw.Flush()

	if _, err := bw.WriteString("-"); err != nil {
		return err
	}
	for _, c := range m.ColLabels {
		if _, err := bw.WriteString("\t" + c); err != nil {
			return err
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	for i, row := range m.Data {
		label := "row"
		if i < len(m.RowLabels) {
			label = m.RowLabels[i]
		}
		if _, err := bw.WriteString(label); err != nil {
			return err
		}
		for _, v := range row {
			if _, err := bw.WriteString("\t" + formatFloat(v, opts.Precision)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// ReadTable reads an arbitrary tab-separated table with a header row, for
// inputs (the eQTL table, the sample-to-dataset mapping) that mix
// identifiers with numeric columns and so don't fit the purely-numeric
// LabeledMatrix shape.
func ReadTable(filename string) (header []string, rows [][]string, err error) {
	r, err := openForRead(filename)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	reader := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("matrixio: parse %s: %w", filename, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("matrixio: empty file: %s", filename)
	}
	return records[0], records[1:], nil
}

// WriteTable writes an arbitrary (mixed string/numeric) tab-separated table
// with a header row, gzip-compressed if filename ends in ".gz". It backs the
// per-iteration and per-PIC report files (§6) that mix identifiers with
// numeric columns and so don't fit the purely-numeric LabeledMatrix shape.
func WriteTable(filename string, header []string, rows [][]string) error {
	w, err := createForWrite(filename)
	if err != nil {
		return err
	}
	defer w.Close()

	bw := bufio.NewWriterSize(w, 1<<20)
	defer bw.Flush()

	if _, err := bw.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := bw.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64, precision int) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if precision >= 0 {
		return strconv.FormatFloat(v, 'g', precision, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
