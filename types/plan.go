package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RebalancePlan holds the target weights a strategy wants on a rebalance
// date. Each side's weights sum to at most 1; a symbol may appear on one
// side only.
type RebalancePlan struct {
	Date  time.Time
	Long  map[string]decimal.Decimal
	Short map[string]decimal.Decimal
}
