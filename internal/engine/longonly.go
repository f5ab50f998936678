package engine

import (
	"fmt"
	"log/slog"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

// LongOnly rotates a long-only book into the top-N symbols by signal score
// on every rebalance date. Per symbol the lifecycle is FLAT -> HELD -> FLAT:
// entering the target set buys, leaving it sells once the minimum dwell has
// elapsed.
type LongOnly struct {
	core
	signals *types.Frame
}

func NewLongOnly(cfg Config, data MarketData, signals *types.Frame) (*LongOnly, error) {
	c, err := newCore(cfg, data)
	if err != nil {
		return nil, err
	}
	if signals.Len() != data.Prices.Len() {
		return nil, fmt.Errorf("signal frame has %d rows, prices %d: %w", signals.Len(), data.Prices.Len(), InvalidConfigErr)
	}
	return &LongOnly{core: c, signals: signals}, nil
}

// Run simulates the whole index in one pass.
func (e *LongOnly) Run() ([]types.PortfolioSnapshot, error) {
	return e.RunRange(0, e.data.Prices.Len())
}

func (e *LongOnly) RunRange(lo, hi int) ([]types.PortfolioSnapshot, error) {
	return e.runRange(lo, hi, e.step)
}

func (e *LongOnly) step(i int) error {
	if !e.isRebalance(i) || !e.canTrade(i) {
		return nil
	}

	ranked := e.rankBySignal(e.signals, i, true)
	targets, _ := takeTop(ranked, e.cfg.TopN)

	weight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(e.cfg.TopN)))
	plan := types.RebalancePlan{
		Date: e.data.Prices.Dates[i],
		Long: make(map[string]decimal.Decimal, len(targets)),
	}
	for _, sym := range targets {
		plan.Long[sym] = weight
	}
	e.plans = append(e.plans, plan)

	// Sells first so freed cash funds the buys.
	for _, sym := range e.ledger.LongSymbols() {
		if _, wanted := plan.Long[sym]; wanted {
			continue
		}
		pos, _ := e.ledger.Long(sym)
		if e.dwell(pos.EntryDate, i) < e.cfg.HoldingPeriod {
			continue
		}
		price, ok := e.data.Prices.Value(sym, i)
		if !ok {
			// Data gap: never force-liquidate, carry the holding.
			slog.Warn("sell skipped, missing price",
				"date", e.data.Prices.Dates[i].Format("2006-01-02"), "symbol", sym)
			continue
		}
		if err := e.execute(i, types.ActionSell, sym, price, pos.Quantity); err != nil {
			return err
		}
	}

	if len(targets) == 0 {
		return nil
	}
	// Buys walk the ranked order so the strongest signal gets cash first.
	total := e.ledger.TotalValue(e.priceAt(i))
	for _, sym := range targets {
		if _, held := e.ledger.Long(sym); held {
			continue
		}
		price, _ := e.data.Prices.Value(sym, i)
		qty := sizeLot(plan.Long[sym].Mul(total), price, e.cfg.LotSize)
		if qty.IsZero() {
			continue
		}
		if _, err := e.tryBuy(i, sym, price, qty); err != nil {
			return err
		}
	}
	return nil
}
