package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

var InvalidWeightsErr = errors.New("entry weights sum above 1")

// Layered composes a Selector, an Entry and an Exit into a long-only
// strategy. Order per date: exit checks sweep every open position first,
// then, on rebalance dates only, Selector -> Entry produce the new targets.
type Layered struct {
	core
	selector Selector
	entry    Entry
	exit     Exit
}

func NewLayered(cfg Config, data MarketData, selector Selector, entry Entry, exit Exit) (*Layered, error) {
	c, err := newCore(cfg, data)
	if err != nil {
		return nil, err
	}
	if selector == nil || entry == nil {
		return nil, fmt.Errorf("selector and entry are required: %w", InvalidConfigErr)
	}
	return &Layered{core: c, selector: selector, entry: entry, exit: exit}, nil
}

func (e *Layered) Run() ([]types.PortfolioSnapshot, error) {
	return e.RunRange(0, e.data.Prices.Len())
}

func (e *Layered) RunRange(lo, hi int) ([]types.PortfolioSnapshot, error) {
	return e.runRange(lo, hi, e.step)
}

func (e *Layered) step(i int) error {
	date := e.data.Prices.Dates[i]

	// Forced exits run on every date and ignore the minimum dwell; they
	// exist precisely to fire independent of the rebalance cadence. Unlike
	// entries they act on same-day information, so the last date of the
	// index is not excluded.
	exited := make(map[string]bool)
	if e.exit != nil {
		for _, sym := range e.ledger.LongSymbols() {
			pos, _ := e.ledger.Long(sym)
			if !e.exit.ShouldExit(pos, date, e.data, i) {
				continue
			}
			price, ok := e.data.Prices.Value(sym, i)
			if !ok {
				slog.Warn("exit skipped, missing price",
					"date", date.Format("2006-01-02"), "symbol", sym)
				continue
			}
			if err := e.execute(i, types.ActionSell, sym, price, pos.Quantity); err != nil {
				return err
			}
			exited[sym] = true
		}
	}

	if !e.isRebalance(i) || !e.canTrade(i) {
		return nil
	}

	candidates := e.selector.Select(date, e.data.Prices, i)
	weights := e.entry.EntryWeights(candidates, e.data, i)
	// Empty candidates or weights is a valid no-trade date.
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s: sum %s: %w", date.Format("2006-01-02"), sum, InvalidWeightsErr)
	}
	e.plans = append(e.plans, types.RebalancePlan{Date: date, Long: weights})

	// Rotate out holdings the strategy no longer wants, dwell permitting.
	for _, sym := range e.ledger.LongSymbols() {
		if _, wanted := weights[sym]; wanted {
			continue
		}
		pos, _ := e.ledger.Long(sym)
		if e.dwell(pos.EntryDate, i) < e.cfg.HoldingPeriod {
			continue
		}
		price, ok := e.data.Prices.Value(sym, i)
		if !ok {
			slog.Warn("sell skipped, missing price",
				"date", date.Format("2006-01-02"), "symbol", sym)
			continue
		}
		if err := e.execute(i, types.ActionSell, sym, price, pos.Quantity); err != nil {
			return err
		}
	}

	total := e.ledger.TotalValue(e.priceAt(i))
	for _, sym := range sortedKeys(weights) {
		if exited[sym] {
			// Exited this very date; do not buy it straight back.
			continue
		}
		if _, held := e.ledger.Long(sym); held {
			continue
		}
		price, ok := e.data.Prices.Value(sym, i)
		if !ok {
			continue
		}
		qty := sizeLot(weights[sym].Mul(total), price, e.cfg.LotSize)
		if qty.IsZero() {
			continue
		}
		if _, err := e.tryBuy(i, sym, price, qty); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
