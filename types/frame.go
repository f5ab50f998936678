package types

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Frame is a date-indexed wide matrix: one column per symbol, one row per
// trading date. A zero or negative cell means the value is missing for that
// date (halted, not yet listed, bad row upstream).
type Frame struct {
	Dates   []time.Time
	Columns map[string][]decimal.Decimal
}

func NewFrame(dates []time.Time, columns map[string][]decimal.Decimal) (*Frame, error) {
	for sym, col := range columns {
		if len(col) != len(dates) {
			return nil, fmt.Errorf("frame column %s: %d rows, index has %d", sym, len(col), len(dates))
		}
	}
	return &Frame{Dates: dates, Columns: columns}, nil
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Dates)
}

// Value returns the cell for symbol at row i. The boolean is false when the
// symbol is unknown, the row is out of range, or the cell is missing.
func (f *Frame) Value(symbol string, i int) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Zero, false
	}
	col, ok := f.Columns[symbol]
	if !ok || i < 0 || i >= len(col) {
		return decimal.Zero, false
	}
	v := col[i]
	if !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}

// Raw returns the cell without the missing-data filter. Signal frames use
// it: zero and negative scores are meaningful there.
func (f *Frame) Raw(symbol string, i int) (decimal.Decimal, bool) {
	if f == nil {
		return decimal.Zero, false
	}
	col, ok := f.Columns[symbol]
	if !ok || i < 0 || i >= len(col) {
		return decimal.Zero, false
	}
	return col[i], true
}

// Symbols returns the column names in deterministic order.
func (f *Frame) Symbols() []string {
	if f == nil {
		return nil
	}
	syms := make([]string, 0, len(f.Columns))
	for sym := range f.Columns {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}
