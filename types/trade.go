package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionShort Action = "SHORT"
	ActionCover Action = "COVER"
)

// Trade is one executed order leg. Records are append-only: once created a
// Trade is never mutated.
type Trade struct {
	Date     time.Time
	Symbol   string
	Action   Action
	Quantity decimal.Decimal
	// Price is the reference (close) price, EffectivePrice the price actually
	// settled after slippage.
	Price          decimal.Decimal
	EffectivePrice decimal.Decimal
	Commission     decimal.Decimal
	StampTax       decimal.Decimal
	SlippageCost   decimal.Decimal
}

// TotalCost is the fee triple summed: commission + stamp tax + slippage.
func (t Trade) TotalCost() decimal.Decimal {
	return t.Commission.Add(t.StampTax).Add(t.SlippageCost)
}
