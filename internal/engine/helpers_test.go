package engine

import (
	"testing"
	"time"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

// tradingDays builds n consecutive weekday dates starting at start.
func tradingDays(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	d := start
	for len(dates) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// constFrame pins every symbol to one value for the whole index.
func constFrame(t *testing.T, dates []time.Time, values map[string]float64) *types.Frame {
	t.Helper()
	cols := make(map[string][]decimal.Decimal, len(values))
	for sym, v := range values {
		col := make([]decimal.Decimal, len(dates))
		for i := range col {
			col[i] = dec(v)
		}
		cols[sym] = col
	}
	f, err := types.NewFrame(dates, cols)
	if err != nil {
		t.Fatalf("constFrame: %v", err)
	}
	return f
}

// frameOf builds a frame from per-symbol generator functions of the row.
func frameOf(t *testing.T, dates []time.Time, gens map[string]func(i int) float64) *types.Frame {
	t.Helper()
	cols := make(map[string][]decimal.Decimal, len(gens))
	for sym, gen := range gens {
		col := make([]decimal.Decimal, len(dates))
		for i := range col {
			col[i] = dec(gen(i))
		}
		cols[sym] = col
	}
	f, err := types.NewFrame(dates, cols)
	if err != nil {
		t.Fatalf("frameOf: %v", err)
	}
	return f
}

// tenSymbols is S0..S9.
func tenSymbols() []string {
	return []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9"}
}

// rotatingSignals ranks S0..S4 on top before flipRow and S5..S9 on top from
// flipRow on.
func rotatingSignals(t *testing.T, dates []time.Time, flipRow int) *types.Frame {
	t.Helper()
	gens := make(map[string]func(i int) float64, 10)
	for idx, sym := range tenSymbols() {
		idx := idx
		gens[sym] = func(i int) float64 {
			if i < flipRow {
				return float64(10 - idx)
			}
			return float64(idx)
		}
	}
	return frameOf(t, dates, gens)
}

func countActions(trades []types.Trade, action types.Action) int {
	n := 0
	for _, tr := range trades {
		if tr.Action == action {
			n++
		}
	}
	return n
}

// checkConservation asserts the snapshot identity
// total == cash + long - shortLiability + shortPnL within 1e-6 relative.
func checkConservation(t *testing.T, snaps []types.PortfolioSnapshot) {
	t.Helper()
	tol := decimal.New(1, -6)
	for _, s := range snaps {
		want := s.Cash.Add(s.LongValue).Sub(s.ShortLiability).Add(s.ShortPnL)
		diff := s.TotalValue.Sub(want).Abs()
		limit := want.Abs().Mul(tol)
		if limit.LessThan(tol) {
			limit = tol
		}
		if diff.GreaterThan(limit) {
			t.Fatalf("%s: total %s != cash %s + long %s - liability %s + shortPnL %s",
				s.Date.Format("2006-01-02"), s.TotalValue, s.Cash, s.LongValue, s.ShortLiability, s.ShortPnL)
		}
	}
}
