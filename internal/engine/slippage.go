package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// MarketBar carries the per-date liquidity figures a slippage model may use.
// Zero fields mean the figure is unavailable for that symbol and date.
type MarketBar struct {
	AvgDailyVolume decimal.Decimal
	Volatility     decimal.Decimal
}

// SlippageModel converts an order into an adverse per-share price move.
// Implementations never fail: when market data is missing they degrade to
// their constant term instead.
type SlippageModel interface {
	Slip(price, quantity decimal.Decimal, bar MarketBar) decimal.Decimal
}

// FixedSlippage charges a flat percentage of the reference price.
type FixedSlippage struct {
	Pct decimal.Decimal
}

func (s FixedSlippage) Slip(price, _ decimal.Decimal, _ MarketBar) decimal.Decimal {
	return price.Mul(s.Pct)
}

// VolumeSlippage scales with order size relative to average daily volume:
// price * (base + impact * qty/adv). Without a volume figure only the base
// term applies.
type VolumeSlippage struct {
	Base   decimal.Decimal
	Impact decimal.Decimal
}

func (s VolumeSlippage) Slip(price, quantity decimal.Decimal, bar MarketBar) decimal.Decimal {
	pct := s.Base
	if bar.AvgDailyVolume.IsPositive() {
		pct = pct.Add(s.Impact.Mul(quantity.Div(bar.AvgDailyVolume)))
	}
	return price.Mul(pct)
}

// ImpactSlippage is the nonlinear market-impact model:
// price * weight * volatility * (qty/adv)^alpha. Without volume or
// volatility it degrades to price * weight.
type ImpactSlippage struct {
	VolatilityWeight decimal.Decimal
	Alpha            float64
}

func (s ImpactSlippage) Slip(price, quantity decimal.Decimal, bar MarketBar) decimal.Decimal {
	if !bar.AvgDailyVolume.IsPositive() || !bar.Volatility.IsPositive() {
		return price.Mul(s.VolatilityWeight)
	}
	participation := quantity.Div(bar.AvgDailyVolume).InexactFloat64()
	impact := decimal.NewFromFloat(math.Pow(participation, s.Alpha))
	return price.Mul(s.VolatilityWeight).Mul(bar.Volatility).Mul(impact)
}
