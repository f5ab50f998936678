package momentum

import (
	"quantbt/internal/engine"

	"github.com/shopspring/decimal"
)

// EqualWeightEntry splits the book evenly across the candidates.
type EqualWeightEntry struct{}

func (EqualWeightEntry) EntryWeights(candidates []string, _ engine.MarketData, _ int) map[string]decimal.Decimal {
	if len(candidates) == 0 {
		return nil
	}
	w := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(candidates))))
	out := make(map[string]decimal.Decimal, len(candidates))
	for _, sym := range candidates {
		out[sym] = w
	}
	return out
}

// ScoreWeightEntry sizes candidates in proportion to their trailing return
// over Lookback days. Non-positive scores get nothing; when no candidate
// scores positive it is a no-trade date.
type ScoreWeightEntry struct {
	Lookback int
}

func (e ScoreWeightEntry) EntryWeights(candidates []string, data engine.MarketData, row int) map[string]decimal.Decimal {
	if row < e.Lookback {
		return nil
	}

	scores := make(map[string]decimal.Decimal, len(candidates))
	total := decimal.Zero
	for _, sym := range candidates {
		now, ok := data.Prices.Value(sym, row)
		if !ok {
			continue
		}
		then, ok := data.Prices.Value(sym, row-e.Lookback)
		if !ok {
			continue
		}
		ret := now.Div(then).Sub(decimal.NewFromInt(1))
		if !ret.IsPositive() {
			continue
		}
		scores[sym] = ret
		total = total.Add(ret)
	}
	if total.IsZero() {
		return nil
	}

	out := make(map[string]decimal.Decimal, len(scores))
	sum := decimal.Zero
	largest := ""
	for sym, score := range scores {
		w := score.Div(total)
		out[sym] = w
		sum = sum.Add(w)
		if largest == "" || w.GreaterThan(out[largest]) {
			largest = sym
		}
	}
	// Division rounding can push the sum a hair above 1; trim the excess
	// off the largest weight.
	one := decimal.NewFromInt(1)
	if sum.GreaterThan(one) {
		out[largest] = out[largest].Sub(sum.Sub(one))
	}
	return out
}
