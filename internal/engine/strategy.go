package engine

import (
	"time"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

// The three strategy roles of the layered engine. Each is one method, and a
// strategy is composed from a (Selector, Entry, Exit) triple by value; new
// behavior is added by implementing a role, never by extending the engine.

// Selector proposes candidate symbols for a rebalance date, in preference
// order. It is evaluated on rebalance dates only and must not depend on
// open positions.
type Selector interface {
	Select(date time.Time, prices *types.Frame, row int) []string
}

// Entry decides which candidates receive capital and in what proportion.
// Weights must sum to at most 1. An empty map is a valid no-trade outcome.
type Entry interface {
	EntryWeights(candidates []string, data MarketData, row int) map[string]decimal.Decimal
}

// Exit is evaluated for every open position on every simulated date, not
// only rebalance dates, so stop-loss and take-profit rules fire on the day
// they trigger.
type Exit interface {
	ShouldExit(pos Position, date time.Time, data MarketData, row int) bool
}

// CombinedExit fires when any of its members fires.
type CombinedExit []Exit

func (c CombinedExit) ShouldExit(pos Position, date time.Time, data MarketData, row int) bool {
	for _, e := range c {
		if e.ShouldExit(pos, date, data, row) {
			return true
		}
	}
	return false
}
