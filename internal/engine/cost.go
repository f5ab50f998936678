package engine

import (
	"errors"
	"fmt"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

var InvalidPriceErr = errors.New("non-positive price reached the cost model")

// TradeCosts is the priced fee triple for one order leg plus the price the
// leg actually settles at after slippage.
type TradeCosts struct {
	Commission     decimal.Decimal
	StampTax       decimal.Decimal
	SlippageCost   decimal.Decimal
	EffectivePrice decimal.Decimal
}

// CostModel prices order legs: commission (rate with a per-order minimum) on
// every leg, stamp tax on disposals only (sell and cover), slippage always
// against the trader. Execution loops filter non-positive prices before
// calling Price; a non-positive price here is an upstream bug and fatal.
type CostModel struct {
	commissionRate decimal.Decimal
	minCommission  decimal.Decimal
	stampTaxRate   decimal.Decimal
	slippage       SlippageModel
}

func NewCostModel(commissionRate, minCommission, stampTaxRate decimal.Decimal, slippage SlippageModel) *CostModel {
	if slippage == nil {
		slippage = FixedSlippage{}
	}
	return &CostModel{
		commissionRate: commissionRate,
		minCommission:  minCommission,
		stampTaxRate:   stampTaxRate,
		slippage:       slippage,
	}
}

func (m *CostModel) Price(action types.Action, symbol string, price, quantity decimal.Decimal, bar MarketBar) (TradeCosts, error) {
	if !price.IsPositive() {
		return TradeCosts{}, fmt.Errorf("%s at %s: %w", symbol, price, InvalidPriceErr)
	}

	value := price.Mul(quantity)
	commission := value.Mul(m.commissionRate)
	if commission.LessThan(m.minCommission) {
		commission = m.minCommission
	}

	stampTax := decimal.Zero
	if action == types.ActionSell || action == types.ActionCover {
		stampTax = value.Mul(m.stampTaxRate)
	}

	slip := m.slippage.Slip(price, quantity, bar)
	effective := price
	switch action {
	case types.ActionBuy, types.ActionCover:
		effective = price.Add(slip)
	case types.ActionSell, types.ActionShort:
		effective = price.Sub(slip)
	}

	return TradeCosts{
		Commission:     commission,
		StampTax:       stampTax,
		SlippageCost:   slip.Mul(quantity),
		EffectivePrice: effective,
	}, nil
}
