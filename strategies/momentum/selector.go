package momentum

import (
	"sort"
	"time"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

// TopReturnSelector proposes the N symbols with the highest trailing return
// over Lookback trading days. Symbols missing a price at either end of the
// window are skipped; before the window has filled it proposes nothing.
type TopReturnSelector struct {
	Lookback int
	N        int
}

func NewTopReturnSelector(lookback, n int) TopReturnSelector {
	return TopReturnSelector{Lookback: lookback, N: n}
}

func (s TopReturnSelector) Select(_ time.Time, prices *types.Frame, row int) []string {
	if row < s.Lookback {
		return nil
	}

	type scored struct {
		symbol string
		ret    decimal.Decimal
	}
	var xs []scored
	for _, sym := range prices.Symbols() {
		now, ok := prices.Value(sym, row)
		if !ok {
			continue
		}
		then, ok := prices.Value(sym, row-s.Lookback)
		if !ok {
			continue
		}
		xs = append(xs, scored{sym, now.Div(then).Sub(decimal.NewFromInt(1))})
	}
	sort.Slice(xs, func(a, b int) bool {
		if !xs[a].ret.Equal(xs[b].ret) {
			return xs[a].ret.GreaterThan(xs[b].ret)
		}
		return xs[a].symbol < xs[b].symbol
	})

	n := s.N
	if n > len(xs) {
		n = len(xs)
	}
	out := make([]string, 0, n)
	for _, x := range xs[:n] {
		out = append(out, x.symbol)
	}
	return out
}
