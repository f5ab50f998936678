package momentum

import (
	"sort"
	"time"

	"quantbt/internal/engine"

	"github.com/shopspring/decimal"
)

// StopLossExit closes a position when its mark falls Pct below the average
// cost. Pct is a fraction: 0.08 stops out at an 8% loss.
type StopLossExit struct {
	Pct decimal.Decimal
}

func (x StopLossExit) ShouldExit(pos engine.Position, _ time.Time, data engine.MarketData, row int) bool {
	price, ok := data.Prices.Value(pos.Symbol, row)
	if !ok {
		return false
	}
	floor := pos.AvgCost.Mul(decimal.NewFromInt(1).Sub(x.Pct))
	return price.LessThan(floor)
}

// TakeProfitExit closes a position when its mark rises Pct above the average
// cost.
type TakeProfitExit struct {
	Pct decimal.Decimal
}

func (x TakeProfitExit) ShouldExit(pos engine.Position, _ time.Time, data engine.MarketData, row int) bool {
	price, ok := data.Prices.Value(pos.Symbol, row)
	if !ok {
		return false
	}
	ceiling := pos.AvgCost.Mul(decimal.NewFromInt(1).Add(x.Pct))
	return price.GreaterThan(ceiling)
}

// TimeExit closes a position once it has been open MaxDays trading days,
// counted on the price index.
type TimeExit struct {
	MaxDays int
}

func (x TimeExit) ShouldExit(pos engine.Position, _ time.Time, data engine.MarketData, row int) bool {
	dates := data.Prices.Dates
	entryRow := sort.Search(len(dates), func(i int) bool {
		return !dates[i].Before(pos.EntryDate)
	})
	return row-entryRow >= x.MaxDays
}
