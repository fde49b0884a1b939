package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Frame is the canonical tabular representation of a loan tape.
// Cells are kept as strings as parsed from the source; the empty string
// marks a null. Column lookup is case-insensitive so vendor exports with
// inconsistent header casing resolve to the same column.
type Frame struct {
	cols  []string
	index map[string]int
	cells [][]string // column-major: cells[col][row]
	rows  int
}

// NewFrame creates an empty frame with the given column set.
func NewFrame(columns []string) *Frame {
	f := &Frame{
		cols:  make([]string, 0, len(columns)),
		index: make(map[string]int, len(columns)),
		cells: make([][]string, 0, len(columns)),
	}
	for _, c := range columns {
		f.addColumn(c)
	}
	return f
}

func (f *Frame) addColumn(name string) int {
	key := strings.ToLower(strings.TrimSpace(name))
	if pos, ok := f.index[key]; ok {
		return pos
	}
	pos := len(f.cols)
	f.cols = append(f.cols, strings.TrimSpace(name))
	f.index[key] = pos
	f.cells = append(f.cells, make([]string, f.rows))
	return pos
}

// Columns returns the column names in source order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	copy(out, f.cols)
	return out
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return f.rows }

// IsEmpty reports whether the frame holds no rows.
func (f *Frame) IsEmpty() bool { return f == nil || f.rows == 0 }

// HasColumn reports whether a column exists (case-insensitive).
func (f *Frame) HasColumn(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.index[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// AppendRow appends one row; the value count must match the column count.
func (f *Frame) AppendRow(values []string) error {
	if len(values) != len(f.cols) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.cols))
	}
	for i, v := range values {
		f.cells[i] = append(f.cells[i], strings.TrimSpace(v))
	}
	f.rows++
	return nil
}

// Value returns the cell at (column, row). The bool is false when the
// column does not exist or the cell is null.
func (f *Frame) Value(name string, row int) (string, bool) {
	pos, ok := f.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok || row < 0 || row >= f.rows {
		return "", false
	}
	v := f.cells[pos][row]
	return v, v != ""
}

// SetColumn replaces a column's cells, adding the column when absent.
// The cell count must match the row count unless the frame is empty.
func (f *Frame) SetColumn(name string, values []string) error {
	if f.rows > 0 && len(values) != f.rows {
		return fmt.Errorf("column %s has %d values, frame has %d rows", name, len(values), f.rows)
	}
	pos := f.addColumn(name)
	if f.rows == 0 {
		f.rows = len(values)
		for i := range f.cells {
			if len(f.cells[i]) < f.rows {
				f.cells[i] = make([]string, f.rows)
			}
		}
	}
	cp := make([]string, len(values))
	copy(cp, values)
	f.cells[pos] = cp
	return nil
}

// Rename changes a column's name in place, keeping its position. It
// reports false when the source column is absent or the target exists.
func (f *Frame) Rename(oldName, newName string) bool {
	oldKey := strings.ToLower(strings.TrimSpace(oldName))
	newKey := strings.ToLower(strings.TrimSpace(newName))
	pos, ok := f.index[oldKey]
	if !ok {
		return false
	}
	if _, exists := f.index[newKey]; exists && newKey != oldKey {
		return false
	}
	delete(f.index, oldKey)
	f.index[newKey] = pos
	f.cols[pos] = strings.TrimSpace(newName)
	return true
}

// Strings returns a copy of a column's raw cells, or nil when absent.
func (f *Frame) Strings(name string) []string {
	pos, ok := f.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	out := make([]string, f.rows)
	copy(out, f.cells[pos])
	return out
}

// Floats parses a column as float64. Null or non-numeric cells become NaN
// so callers can distinguish missing data from zero values. Thousands
// separators and currency prefixes are tolerated.
func (f *Frame) Floats(name string) []float64 {
	pos, ok := f.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	out := make([]float64, f.rows)
	for i, raw := range f.cells[pos] {
		v, ok := ParseAmount(raw)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// NullCount returns the number of null cells in a column.
func (f *Frame) NullCount(name string) int {
	pos, ok := f.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return f.rows
	}
	n := 0
	for _, v := range f.cells[pos] {
		if v == "" {
			n++
		}
	}
	return n
}

// Filter returns a new frame holding only the rows for which keep is true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	out := NewFrame(f.cols)
	row := make([]string, len(f.cols))
	for r := 0; r < f.rows; r++ {
		if !keep(r) {
			continue
		}
		for c := range f.cols {
			row[c] = f.cells[c][r]
		}
		_ = out.AppendRow(row)
	}
	return out
}

// Copy returns a deep copy of the frame.
func (f *Frame) Copy() *Frame {
	out := NewFrame(f.cols)
	out.rows = f.rows
	for i := range f.cells {
		cp := make([]string, f.rows)
		copy(cp, f.cells[i])
		out.cells[i] = cp
	}
	return out
}

// Hash returns a deterministic SHA-256 digest over the frame's columns and
// cells, used as the inputs hash stamped on every KPI result.
func (f *Frame) Hash() string {
	h := sha256.New()
	if f == nil {
		return hex.EncodeToString(h.Sum(nil))
	}
	for _, c := range f.cols {
		h.Write([]byte(strings.ToLower(c)))
		h.Write([]byte{0})
	}
	for r := 0; r < f.rows; r++ {
		for c := range f.cols {
			h.Write([]byte(f.cells[c][r]))
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ParseAmount parses a numeric cell, tolerating thousands separators,
// currency symbols and surrounding whitespace.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// dateLayouts are the accepted measurement-date formats, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate parses a date cell against the accepted layouts.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
