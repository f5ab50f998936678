package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the end-of-day state of a simulation. One snapshot is
// appended per simulated date and never mutated afterwards; the snapshot
// sequence is the engine's primary output.
//
// TotalValue = Cash + LongValue - ShortLiability + ShortPnL, where
// ShortLiability is the entry value owed on open shorts and ShortPnL the
// unrealized open-short result net of outstanding interest. Realized short
// P&L and interest paid on cover already sit in Cash.
type PortfolioSnapshot struct {
	Date            time.Time
	Cash            decimal.Decimal
	LongValue       decimal.Decimal
	ShortValue      decimal.Decimal
	ShortLiability  decimal.Decimal
	ShortPnL        decimal.Decimal
	InterestAccrued decimal.Decimal // cumulative over the whole run, paid + outstanding
	TotalValue      decimal.Decimal
}
