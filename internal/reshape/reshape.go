// Package reshape turns a raw spreadsheet CSV export into a normalized table
// according to a per-sheet declarative config: header handling, wide-to-long
// transposition, repeated-column-group merging and header sanitization.
package reshape

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Config is the declarative reshape configuration attached to a sheet.
type Config struct {
	// HeaderRows is the number of leading rows treated as header (1 or 2).
	// Row 0 always carries the column names; with two header rows, row 1 is a
	// secondary header read only by the transpose transform.
	HeaderRows int `json:"headerRows"`

	// HeaderColumns, when set, overrides the output header names.
	HeaderColumns []string `json:"headerColumns,omitempty"`

	Transpose *Transpose `json:"transpose,omitempty"`
	Merge     *Merge     `json:"merge,omitempty"`

	// Sanitize toggles header sanitization. nil means enabled.
	Sanitize *bool `json:"sanitize,omitempty"`

	// Table is the fully qualified destination table id (stage.bucket.table).
	Table string `json:"table"`
}

// Transpose converts wide key/value columns into long format: columns before
// From stay fixed, every later column becomes one output row of
// (fixed..., key, value) where key is the column's name from header row 0.
type Transpose struct {
	From int `json:"from"`

	// ExtraHeader names a third synthetic column filled from the secondary
	// header row (e.g. a date or category per transposed column).
	ExtraHeader string `json:"extraHeader,omitempty"`
}

// Merge collapses repeated groups of Length columns starting at From into a
// single group.
type Merge struct {
	From   int `json:"from"`
	Length int `json:"length"`
}

// SanitizeHeader reports whether header names should be sanitized.
func (c *Config) SanitizeHeader() bool {
	return c.Sanitize == nil || *c.Sanitize
}

// Process reads CSV rows from r, applies cfg and writes the result to w,
// one row at a time. The input is never materialized as a whole.
func Process(r io.Reader, w io.Writer, cfg *Config) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cw := csv.NewWriter(w)

	headerRows := cfg.HeaderRows
	if headerRows < 1 {
		headerRows = 1
	}

	var rawHeader, secondary []string
	for i := 0; ; i++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input row %d: %w", i, err)
		}

		switch {
		case i == 0:
			rawHeader = row
			if err := cw.Write(outputHeader(row, cfg)); err != nil {
				return err
			}
		case i < headerRows:
			secondary = row
		case cfg.Transpose != nil:
			transposeRow(cw, row, rawHeader, secondary, cfg.Transpose)
		case cfg.Merge != nil:
			cw.Write(mergeRow(row, cfg.Merge))
		default:
			cw.Write(row)
		}
	}

	cw.Flush()
	return cw.Error()
}

// outputHeader computes the single output header row.
func outputHeader(raw []string, cfg *Config) []string {
	base := raw
	if len(cfg.HeaderColumns) > 0 {
		base = cfg.HeaderColumns
	}

	var out []string
	switch {
	case cfg.Transpose != nil:
		out = append(out, base[:clamp(cfg.Transpose.From, len(base))]...)
		out = append(out, "key", "value")
		if cfg.Transpose.ExtraHeader != "" {
			out = append(out, cfg.Transpose.ExtraHeader)
		}
	case cfg.Merge != nil:
		out = append(out, base[:clamp(cfg.Merge.From+cfg.Merge.Length, len(base))]...)
	default:
		out = append(out, base...)
	}

	if cfg.SanitizeHeader() {
		for i, col := range out {
			out[i] = SanitizeName(col)
		}
	}
	return out
}

// transposeRow emits one output row per transposed column. The extra cell is
// appended only when the secondary header has a non-empty value for that
// column, so rows may differ in width.
func transposeRow(cw *csv.Writer, row, rawHeader, secondary []string, t *Transpose) {
	fixed := row[:clamp(t.From, len(row))]
	for k := t.From; k < len(row); k++ {
		out := make([]string, 0, len(fixed)+3)
		out = append(out, fixed...)

		key := ""
		if k < len(rawHeader) {
			key = rawHeader[k]
		}
		out = append(out, key, row[k])

		if t.ExtraHeader != "" && k < len(secondary) && secondary[k] != "" {
			out = append(out, secondary[k])
		}
		cw.Write(out)
	}
}

// mergeRow keeps the fixed leading columns and appends the first column
// group verbatim. Later groups are never inspected, even when the first one
// is entirely empty; that matches the behavior destination tables were built
// against (see DESIGN.md).
func mergeRow(row []string, m *Merge) []string {
	out := make([]string, 0, m.From+m.Length)
	out = append(out, row[:clamp(m.From, len(row))]...)
	out = append(out, row[clamp(m.From, len(row)):clamp(m.From+m.Length, len(row))]...)
	return out
}

func clamp(n, max int) int {
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}
