package engine

import (
	"errors"
	"fmt"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

var InvalidConfigErr = errors.New("invalid engine configuration")

// Config is the full configuration surface of a simulation run. Zero values
// are not defaults; start from DefaultConfig and override.
type Config struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	MinCommission  decimal.Decimal
	StampTaxRate   decimal.Decimal
	Slippage       SlippageModel

	TopN    int
	BottomN int
	// HoldingPeriod is the minimum dwell in trading days before a
	// rebalance-driven exit may close a position. Exit rules ignore it.
	HoldingPeriod int
	RebalanceFreq types.Frequency
	MarginRate    decimal.Decimal
	// LotSize is the minimum order lot; order quantities are floored to a
	// multiple of it.
	LotSize int64

	ChunkSize    int
	ShowProgress bool
}

func DefaultConfig() Config {
	return Config{
		InitialCapital: decimal.NewFromInt(1_000_000),
		CommissionRate: decimal.NewFromFloat(0.0003),
		MinCommission:  decimal.NewFromInt(5),
		StampTaxRate:   decimal.NewFromFloat(0.001),
		Slippage:       FixedSlippage{Pct: decimal.NewFromFloat(0.0005)},
		TopN:           5,
		BottomN:        5,
		HoldingPeriod:  1,
		RebalanceFreq:  types.Weekly,
		MarginRate:     decimal.NewFromFloat(0.10),
		LotSize:        100,
		ChunkSize:      60,
	}
}

// Validate fails fast on construction-time errors. Nothing is coerced.
func (c Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("initial capital %s: %w", c.InitialCapital, InvalidConfigErr)
	}
	if c.CommissionRate.IsNegative() || c.StampTaxRate.IsNegative() ||
		c.MinCommission.IsNegative() || c.MarginRate.IsNegative() {
		return fmt.Errorf("negative rate: %w", InvalidConfigErr)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top-n %d: %w", c.TopN, InvalidConfigErr)
	}
	if c.BottomN < 0 {
		return fmt.Errorf("bottom-n %d: %w", c.BottomN, InvalidConfigErr)
	}
	if c.HoldingPeriod < 0 {
		return fmt.Errorf("holding period %d: %w", c.HoldingPeriod, InvalidConfigErr)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("lot size %d: %w", c.LotSize, InvalidConfigErr)
	}
	if _, ok := types.ConvertFrequency[string(c.RebalanceFreq)]; !ok {
		return fmt.Errorf("frequency %q: %w", c.RebalanceFreq, InvalidConfigErr)
	}
	return nil
}
