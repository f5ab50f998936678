package engine

import (
	"fmt"
	"log/slog"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

// MarketNeutral holds the top-N symbols long and the bottom-N short, scored
// by the same signal frame. Shorts add the FLAT -> SHORT -> FLAT lifecycle:
// opening credits the sale proceeds and starts daily interest accrual,
// covering debits the buyback plus the outstanding interest and realizes
// the short P&L.
type MarketNeutral struct {
	core
	signals *types.Frame
}

func NewMarketNeutral(cfg Config, data MarketData, signals *types.Frame) (*MarketNeutral, error) {
	c, err := newCore(cfg, data)
	if err != nil {
		return nil, err
	}
	if cfg.BottomN <= 0 {
		return nil, fmt.Errorf("market-neutral needs bottom-n > 0: %w", InvalidConfigErr)
	}
	if signals.Len() != data.Prices.Len() {
		return nil, fmt.Errorf("signal frame has %d rows, prices %d: %w", signals.Len(), data.Prices.Len(), InvalidConfigErr)
	}
	return &MarketNeutral{core: c, signals: signals}, nil
}

func (e *MarketNeutral) Run() ([]types.PortfolioSnapshot, error) {
	return e.RunRange(0, e.data.Prices.Len())
}

func (e *MarketNeutral) RunRange(lo, hi int) ([]types.PortfolioSnapshot, error) {
	return e.runRange(lo, hi, e.step)
}

func (e *MarketNeutral) step(i int) error {
	// Financing accrues every trading day, before any same-day trades.
	e.ledger.AccrueInterest(e.priceAt(i))

	if !e.isRebalance(i) || !e.canTrade(i) {
		return nil
	}

	ranked := e.rankBySignal(e.signals, i, true)
	longs, longSet := takeTop(ranked, e.cfg.TopN)

	reversed := make([]string, len(ranked))
	for j, sym := range ranked {
		reversed[len(ranked)-1-j] = sym
	}
	var shorts []string
	for _, sym := range reversed {
		if len(shorts) == e.cfg.BottomN {
			break
		}
		// The long side wins when a small universe puts a symbol in both.
		if longSet[sym] {
			continue
		}
		shorts = append(shorts, sym)
	}

	plan := types.RebalancePlan{
		Date:  e.data.Prices.Dates[i],
		Long:  make(map[string]decimal.Decimal, len(longs)),
		Short: make(map[string]decimal.Decimal, len(shorts)),
	}
	longWeight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(e.cfg.TopN)))
	for _, sym := range longs {
		plan.Long[sym] = longWeight
	}
	shortWeight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(e.cfg.BottomN)))
	for _, sym := range shorts {
		plan.Short[sym] = shortWeight
	}
	e.plans = append(e.plans, plan)

	// Close legs first. Sells go before covers: sells only add cash while
	// covers consume it, and at full gross exposure the buybacks need the
	// sale proceeds to settle.
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
			slog.Warn("sell skipped, missing price",
				"date", e.data.Prices.Dates[i].Format("2006-01-02"), "symbol", sym)
			continue
		}
		if err := e.execute(i, types.ActionSell, sym, price, pos.Quantity); err != nil {
			return err
		}
	}
	for _, sym := range e.ledger.ShortSymbols() {
		if _, wanted := plan.Short[sym]; wanted {
			continue
		}
		sp, _ := e.ledger.Short(sym)
		if e.dwell(sp.EntryDate, i) < e.cfg.HoldingPeriod {
			continue
		}
		price, ok := e.data.Prices.Value(sym, i)
		if !ok {
			slog.Warn("cover skipped, missing price",
				"date", e.data.Prices.Dates[i].Format("2006-01-02"), "symbol", sym)
			continue
		}
		if _, err := e.tryCover(i, sym, price, sp.Quantity); err != nil {
			return err
		}
	}

	total := e.ledger.TotalValue(e.priceAt(i))

	// Open the short side before the long side: proceeds fund the buys.
	for _, sym := range shorts {
		if _, held := e.ledger.Short(sym); held {
			continue
		}
		if _, held := e.ledger.Long(sym); held {
			continue
		}
		price, _ := e.data.Prices.Value(sym, i)
		qty := sizeLot(plan.Short[sym].Mul(total), price, e.cfg.LotSize)
		if qty.IsZero() {
			continue
		}
		if err := e.execute(i, types.ActionShort, sym, price, qty); err != nil {
			return err
		}
	}

	for _, sym := range longs {
		if _, held := e.ledger.Long(sym); held {
			continue
		}
		if _, held := e.ledger.Short(sym); held {
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
