package engine

import (
	"errors"
	"testing"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

func TestCostModel_CommissionAndStampTax(t *testing.T) {
	m := NewCostModel(dec(0.0003), dec(5), dec(0.001), FixedSlippage{})

	tests := []struct {
		name           string
		action         types.Action
		price, qty     float64
		wantCommission float64
		wantStampTax   float64
	}{
		{"buy pays rate commission, no stamp", types.ActionBuy, 100, 1000, 30, 0},
		{"sell pays commission and stamp", types.ActionSell, 100, 1000, 30, 100},
		{"short pays commission, no stamp", types.ActionShort, 100, 1000, 30, 0},
		{"cover pays commission and stamp", types.ActionCover, 100, 1000, 30, 100},
		{"tiny order hits minimum commission", types.ActionBuy, 10, 100, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			costs, err := m.Price(tt.action, "AAPL", dec(tt.price), dec(tt.qty), MarketBar{})
			if err != nil {
				t.Fatalf("Price() error = %v", err)
			}
			if !costs.Commission.Equal(dec(tt.wantCommission)) {
				t.Errorf("commission = %s, want %v", costs.Commission, tt.wantCommission)
			}
			if !costs.StampTax.Equal(dec(tt.wantStampTax)) {
				t.Errorf("stamp tax = %s, want %v", costs.StampTax, tt.wantStampTax)
			}
		})
	}
}

func TestCostModel_RejectsNonPositivePrice(t *testing.T) {
	m := NewCostModel(dec(0.0003), dec(5), dec(0.001), FixedSlippage{})
	for _, price := range []decimal.Decimal{decimal.Zero, dec(-1)} {
		_, err := m.Price(types.ActionBuy, "AAPL", price, dec(100), MarketBar{})
		if !errors.Is(err, InvalidPriceErr) {
			t.Errorf("price %s: error = %v, want InvalidPriceErr", price, err)
		}
	}
}

func TestCostModel_ZeroSlippageIdempotence(t *testing.T) {
	// With Fixed(0) the fee total is commission + stamp tax exactly: no
	// implicit slippage floor, and the effective price is the raw price.
	m := NewCostModel(dec(0.0003), dec(5), dec(0.001), FixedSlippage{Pct: decimal.Zero})
	for _, action := range []types.Action{types.ActionBuy, types.ActionSell, types.ActionShort, types.ActionCover} {
		costs, err := m.Price(action, "AAPL", dec(50), dec(2000), MarketBar{})
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if !costs.SlippageCost.IsZero() {
			t.Errorf("%s: slippage cost = %s, want 0", action, costs.SlippageCost)
		}
		if !costs.EffectivePrice.Equal(dec(50)) {
			t.Errorf("%s: effective price = %s, want 50", action, costs.EffectivePrice)
		}
	}
}

func TestCostModel_SlippageDirection(t *testing.T) {
	m := NewCostModel(decimal.Zero, decimal.Zero, decimal.Zero, FixedSlippage{Pct: dec(0.01)})

	tests := []struct {
		action        types.Action
		wantEffective float64
	}{
		{types.ActionBuy, 101},   // buyer pays up
		{types.ActionCover, 101}, // covering buys back, pays up
		{types.ActionSell, 99},   // seller receives less
		{types.ActionShort, 99},  // short sale proceeds shrink
	}
	for _, tt := range tests {
		costs, err := m.Price(tt.action, "AAPL", dec(100), dec(10), MarketBar{})
		if err != nil {
			t.Fatalf("%s: %v", tt.action, err)
		}
		if !costs.EffectivePrice.Equal(dec(tt.wantEffective)) {
			t.Errorf("%s: effective = %s, want %v", tt.action, costs.EffectivePrice, tt.wantEffective)
		}
		if !costs.SlippageCost.Equal(dec(10)) {
			t.Errorf("%s: slippage cost = %s, want 10", tt.action, costs.SlippageCost)
		}
	}
}

func TestVolumeSlippage(t *testing.T) {
	s := VolumeSlippage{Base: dec(0.001), Impact: dec(0.1)}

	// qty/adv = 10000/1000000 = 0.01, pct = 0.001 + 0.1*0.01 = 0.002
	got := s.Slip(dec(100), dec(10000), MarketBar{AvgDailyVolume: dec(1_000_000)})
	if !got.Equal(dec(0.2)) {
		t.Errorf("with volume: slip = %s, want 0.2", got)
	}

	// No volume figure: degrade to the base term alone.
	got = s.Slip(dec(100), dec(10000), MarketBar{})
	if !got.Equal(dec(0.1)) {
		t.Errorf("without volume: slip = %s, want 0.1", got)
	}
}

func TestImpactSlippage(t *testing.T) {
	s := ImpactSlippage{VolatilityWeight: dec(0.5), Alpha: 0.5}

	// (10000/1000000)^0.5 = 0.1; slip = 100 * 0.5 * 0.02 * 0.1 = 0.1
	got := s.Slip(dec(100), dec(10000), MarketBar{AvgDailyVolume: dec(1_000_000), Volatility: dec(0.02)})
	if got.Sub(dec(0.1)).Abs().GreaterThan(dec(1e-9)) {
		t.Errorf("full data: slip = %s, want 0.1", got)
	}

	// Missing volatility or volume degrades to the constant term, it never
	// raises.
	for _, bar := range []MarketBar{
		{},
		{AvgDailyVolume: dec(1_000_000)},
		{Volatility: dec(0.02)},
	} {
		got := s.Slip(dec(100), dec(10000), bar)
		if !got.Equal(dec(50)) {
			t.Errorf("degraded %+v: slip = %s, want 50", bar, got)
		}
	}
}
