package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quantbt/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

// MarketData bundles the pre-materialized inputs of a run. Prices is
// required; Volumes and Volatility only feed the slippage models.
type MarketData struct {
	Prices     *types.Frame
	Volumes    *types.Frame
	Volatility *types.Frame
}

func (d MarketData) bar(symbol string, i int) MarketBar {
	var bar MarketBar
	if v, ok := d.Volumes.Value(symbol, i); ok {
		bar.AvgDailyVolume = v
	}
	if v, ok := d.Volatility.Value(symbol, i); ok {
		bar.Volatility = v
	}
	return bar
}

// core is the state shared by the three execution loops: configuration,
// market data, the ledger, and the rebalance calendar. The loops differ only
// in their per-date step.
type core struct {
	cfg       Config
	data      MarketData
	cost      *CostModel
	ledger    *Ledger
	rebalance map[time.Time]bool
	dateRow   map[time.Time]int
	snapshots []types.PortfolioSnapshot
	plans     []types.RebalancePlan
}

func newCore(cfg Config, data MarketData) (core, error) {
	if err := cfg.Validate(); err != nil {
		return core{}, err
	}
	if data.Prices.Len() == 0 {
		return core{}, fmt.Errorf("empty price frame: %w", InvalidConfigErr)
	}
	rebal, err := RebalanceDates(data.Prices.Dates, cfg.RebalanceFreq)
	if err != nil {
		return core{}, err
	}
	rebalSet := make(map[time.Time]bool, len(rebal))
	for _, d := range rebal {
		rebalSet[d] = true
	}
	dateRow := make(map[time.Time]int, data.Prices.Len())
	for i, d := range data.Prices.Dates {
		dateRow[d] = i
	}
	return core{
		cfg:       cfg,
		data:      data,
		cost:      NewCostModel(cfg.CommissionRate, cfg.MinCommission, cfg.StampTaxRate, cfg.Slippage),
		ledger:    NewLedger(cfg.InitialCapital, cfg.MarginRate),
		rebalance: rebalSet,
		dateRow:   dateRow,
	}, nil
}

// runRange drives the per-date step over rows [lo, hi) in strict index
// order and appends one snapshot per date. Ledger state carries across
// calls; the chunked wrapper relies on that.
func (c *core) runRange(lo, hi int, step func(i int) error) ([]types.PortfolioSnapshot, error) {
	if lo < 0 || hi > c.data.Prices.Len() || lo > hi {
		return nil, fmt.Errorf("window [%d,%d) outside index of %d rows: %w", lo, hi, c.data.Prices.Len(), InvalidConfigErr)
	}
	var bar *progressbar.ProgressBar
	if c.cfg.ShowProgress {
		bar = initProgressBar(hi - lo)
	}
	out := make([]types.PortfolioSnapshot, 0, hi-lo)
	for i := lo; i < hi; i++ {
		if err := step(i); err != nil {
			return nil, err
		}
		snap := c.ledger.MarkToMarket(c.data.Prices.Dates[i], c.priceAt(i))
		c.snapshots = append(c.snapshots, snap)
		out = append(out, snap)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return out, nil
}

func (c *core) priceAt(i int) PriceFunc {
	return func(symbol string) (decimal.Decimal, bool) {
		return c.data.Prices.Value(symbol, i)
	}
}

func (c *core) isRebalance(i int) bool {
	return c.rebalance[c.data.Prices.Dates[i]]
}

// canTrade reports whether orders may be placed on row i. Acting on a signal
// needs a following session, so the last date of the index never trades.
func (c *core) canTrade(i int) bool {
	return i+1 < c.data.Prices.Len()
}

// dwell counts the trading days a position entered on entryDate has been
// open as of row i.
func (c *core) dwell(entryDate time.Time, i int) int {
	row, ok := c.dateRow[entryDate]
	if !ok {
		// Entry predates this index (seeded state); treat as fully dwelt.
		return i + 1
	}
	return i - row
}

// execute prices one order leg and settles it. Failures out of the ledger
// here are invariant violations and abort the run with date and symbol
// attached.
func (c *core) execute(i int, action types.Action, symbol string, price, qty decimal.Decimal) error {
	date := c.data.Prices.Dates[i]
	costs, err := c.cost.Price(action, symbol, price, qty, c.data.bar(symbol, i))
	if err != nil {
		return fmt.Errorf("%s %s: %w", date.Format("2006-01-02"), action, err)
	}
	t := types.Trade{
		Date:           date,
		Symbol:         symbol,
		Action:         action,
		Quantity:       qty,
		Price:          price,
		EffectivePrice: costs.EffectivePrice,
		Commission:     costs.Commission,
		StampTax:       costs.StampTax,
		SlippageCost:   costs.SlippageCost,
	}
	if err := c.ledger.ApplyTrade(t); err != nil {
		return fmt.Errorf("%s: %w", date.Format("2006-01-02"), err)
	}
	return nil
}

// tryBuy sizes the cash check before settling. An unaffordable order is
// skipped whole, never partially filled; that is a recoverable condition.
func (c *core) tryBuy(i int, symbol string, price, qty decimal.Decimal) (bool, error) {
	date := c.data.Prices.Dates[i]
	costs, err := c.cost.Price(types.ActionBuy, symbol, price, qty, c.data.bar(symbol, i))
	if err != nil {
		return false, fmt.Errorf("%s buy: %w", date.Format("2006-01-02"), err)
	}
	needed := costs.EffectivePrice.Mul(qty).Add(costs.Commission)
	if needed.GreaterThan(c.ledger.Cash()) {
		slog.Warn("buy skipped, insufficient cash",
			"date", date.Format("2006-01-02"),
			"symbol", symbol,
			"needed", needed.StringFixed(2),
			"cash", c.ledger.Cash().StringFixed(2))
		return false, nil
	}
	if err := c.execute(i, types.ActionBuy, symbol, price, qty); err != nil {
		return false, err
	}
	return true, nil
}

// tryCover is the cover-side cash check. A short that rallied between
// rebalances can cost more to buy back than the book holds in cash; the
// cover is then skipped whole and the short carried to the next rebalance.
func (c *core) tryCover(i int, symbol string, price, qty decimal.Decimal) (bool, error) {
	date := c.data.Prices.Dates[i]
	costs, err := c.cost.Price(types.ActionCover, symbol, price, qty, c.data.bar(symbol, i))
	if err != nil {
		return false, fmt.Errorf("%s cover: %w", date.Format("2006-01-02"), err)
	}
	needed := costs.EffectivePrice.Mul(qty).Add(costs.Commission).Add(costs.StampTax)
	// Covering also settles the proportional share of accrued interest.
	if sp, ok := c.ledger.Short(symbol); ok && sp.Quantity.IsPositive() {
		needed = needed.Add(sp.AccruedInterest.Mul(qty.Div(sp.Quantity)))
	}
	if needed.GreaterThan(c.ledger.Cash()) {
		slog.Warn("cover skipped, insufficient cash",
			"date", date.Format("2006-01-02"),
			"symbol", symbol,
			"needed", needed.StringFixed(2),
			"cash", c.ledger.Cash().StringFixed(2))
		return false, nil
	}
	if err := c.execute(i, types.ActionCover, symbol, price, qty); err != nil {
		return false, err
	}
	return true, nil
}

func (c *core) State() LedgerState { return c.ledger.State() }

func (c *core) Restore(st LedgerState) { c.ledger.Restore(st) }

func (c *core) Trades() []types.Trade { return c.ledger.Trades() }

func (c *core) Snapshots() []types.PortfolioSnapshot { return c.snapshots }

// Plans returns the target books produced so far, one per rebalance date
// that could trade.
func (c *core) Plans() []types.RebalancePlan { return c.plans }

type scored struct {
	symbol string
	score  decimal.Decimal
}

// rankBySignal orders the symbols tradeable at row i by signal score, ties
// broken by symbol so runs are deterministic. Symbols without a score or
// without a usable price are left out: signal present but untradeable means
// skipped, not forced.
func (c *core) rankBySignal(signals *types.Frame, i int, desc bool) []string {
	var xs []scored
	for _, sym := range signals.Symbols() {
		score, ok := signals.Raw(sym, i)
		if !ok {
			continue
		}
		if _, ok := c.data.Prices.Value(sym, i); !ok {
			continue
		}
		xs = append(xs, scored{sym, score})
	}
	sort.Slice(xs, func(a, b int) bool {
		if !xs[a].score.Equal(xs[b].score) {
			if desc {
				return xs[a].score.GreaterThan(xs[b].score)
			}
			return xs[a].score.LessThan(xs[b].score)
		}
		return xs[a].symbol < xs[b].symbol
	})
	out := make([]string, len(xs))
	for j, x := range xs {
		out[j] = x.symbol
	}
	return out
}

func takeTop(ranked []string, n int) ([]string, map[string]bool) {
	if n > len(ranked) {
		n = len(ranked)
	}
	top := ranked[:n]
	set := make(map[string]bool, n)
	for _, sym := range top {
		set[sym] = true
	}
	return top, set
}

// sizeLot converts a cash allocation into a lot-aligned share count.
func sizeLot(alloc, price decimal.Decimal, lot int64) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	lotD := decimal.NewFromInt(lot)
	return alloc.Div(price).Div(lotD).Floor().Mul(lotD)
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
