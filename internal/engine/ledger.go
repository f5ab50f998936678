package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

var InsufficientCashErr = errors.New("insufficient cash when applying trade")
var ConflictingPositionErr = errors.New("symbol already holds a position on the opposite side")
var PositionNotFoundErr = errors.New("no open position for symbol")
var OversizedCloseErr = errors.New("close quantity exceeds open position")
var UnknownActionErr = errors.New("unknown trade action")

var daysPerYear = decimal.NewFromInt(365)

// PriceFunc resolves a symbol to its mark for the current date. The boolean
// is false when the price is missing, in which case the ledger carries the
// last known mark forward.
type PriceFunc func(symbol string) (decimal.Decimal, bool)

// Position is an open long holding. The ledger owns it while it is open and
// destroys it when its quantity reaches zero.
type Position struct {
	Symbol    string
	Quantity  decimal.Decimal
	AvgCost   decimal.Decimal
	EntryDate time.Time
	LastPrice decimal.Decimal
}

// ShortPosition is borrowed stock sold short. AccruedInterest grows every
// trading day the position is open and is settled into cash and P&L when it
// is covered. MarginMemo records the margin requirement at entry; margin is
// modeled as a financing cost, not a cash lock.
type ShortPosition struct {
	Symbol          string
	Quantity        decimal.Decimal
	EntryPrice      decimal.Decimal
	EntryDate       time.Time
	AccruedInterest decimal.Decimal
	MarginMemo      decimal.Decimal
	LastPrice       decimal.Decimal
}

// Ledger owns the cash balance, the open positions and the append-only trade
// log of a single simulation run. Not safe for concurrent use; no two runs
// share one.
type Ledger struct {
	cash       decimal.Decimal
	longs      map[string]*Position
	shorts     map[string]*ShortPosition
	trades     []types.Trade
	marginRate decimal.Decimal

	realizedShortPnL decimal.Decimal
	interestTotal    decimal.Decimal
}

func NewLedger(initialCash, marginRate decimal.Decimal) *Ledger {
	return &Ledger{
		cash:       initialCash,
		longs:      make(map[string]*Position),
		shorts:     make(map[string]*ShortPosition),
		marginRate: marginRate,
	}
}

func (l *Ledger) Cash() decimal.Decimal { return l.cash }

// Trades returns the log accumulated since construction. The slice must not
// be mutated by callers.
func (l *Ledger) Trades() []types.Trade { return l.trades }

func (l *Ledger) Long(symbol string) (Position, bool) {
	pos, ok := l.longs[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (l *Ledger) Short(symbol string) (ShortPosition, bool) {
	sp, ok := l.shorts[symbol]
	if !ok {
		return ShortPosition{}, false
	}
	return *sp, true
}

func (l *Ledger) LongSymbols() []string {
	syms := make([]string, 0, len(l.longs))
	for sym := range l.longs {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func (l *Ledger) ShortSymbols() []string {
	syms := make([]string, 0, len(l.shorts))
	for sym := range l.shorts {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

// ApplyTrade settles one priced order leg against cash and positions. It
// fails fast instead of clamping: an unexpected shortfall here means the
// caller sized the order wrong.
func (l *Ledger) ApplyTrade(t types.Trade) error {
	switch t.Action {
	case types.ActionBuy:
		return l.applyBuy(t)
	case types.ActionSell:
		return l.applySell(t)
	case types.ActionShort:
		return l.applyShort(t)
	case types.ActionCover:
		return l.applyCover(t)
	default:
		return fmt.Errorf("%q: %w", t.Action, UnknownActionErr)
	}
}

func (l *Ledger) applyBuy(t types.Trade) error {
	if _, ok := l.shorts[t.Symbol]; ok {
		return fmt.Errorf("buy %s: %w", t.Symbol, ConflictingPositionErr)
	}
	// Slippage is already inside the effective price; adding SlippageCost
	// again would double-charge it.
	cost := t.EffectivePrice.Mul(t.Quantity).Add(t.Commission).Add(t.StampTax)
	if cost.GreaterThan(l.cash) {
		return fmt.Errorf("buy %s needs %s, have %s: %w", t.Symbol, cost, l.cash, InsufficientCashErr)
	}
	l.cash = l.cash.Sub(cost)

	pos, ok := l.longs[t.Symbol]
	if !ok {
		pos = &Position{Symbol: t.Symbol, AvgCost: t.EffectivePrice, EntryDate: t.Date}
		l.longs[t.Symbol] = pos
	} else {
		pos.AvgCost = weightedAvg(pos.AvgCost, pos.Quantity, t.EffectivePrice, t.Quantity)
	}
	pos.Quantity = pos.Quantity.Add(t.Quantity)
	pos.LastPrice = t.Price

	l.trades = append(l.trades, t)
	return nil
}

func (l *Ledger) applySell(t types.Trade) error {
	pos, ok := l.longs[t.Symbol]
	if !ok {
		return fmt.Errorf("sell %s: %w", t.Symbol, PositionNotFoundErr)
	}
	if t.Quantity.GreaterThan(pos.Quantity) {
		return fmt.Errorf("sell %s qty %s of %s: %w", t.Symbol, t.Quantity, pos.Quantity, OversizedCloseErr)
	}
	proceeds := t.EffectivePrice.Mul(t.Quantity).Sub(t.Commission).Sub(t.StampTax)
	l.cash = l.cash.Add(proceeds)

	pos.Quantity = pos.Quantity.Sub(t.Quantity)
	pos.LastPrice = t.Price
	if pos.Quantity.IsZero() {
		delete(l.longs, t.Symbol)
	}

	l.trades = append(l.trades, t)
	return nil
}

func (l *Ledger) applyShort(t types.Trade) error {
	if _, ok := l.longs[t.Symbol]; ok {
		return fmt.Errorf("short %s: %w", t.Symbol, ConflictingPositionErr)
	}
	proceeds := t.EffectivePrice.Mul(t.Quantity).Sub(t.Commission).Sub(t.StampTax)
	l.cash = l.cash.Add(proceeds)

	memo := t.EffectivePrice.Mul(t.Quantity).Mul(l.marginRate)
	sp, ok := l.shorts[t.Symbol]
	if !ok {
		sp = &ShortPosition{Symbol: t.Symbol, EntryPrice: t.EffectivePrice, EntryDate: t.Date}
		l.shorts[t.Symbol] = sp
	} else {
		sp.EntryPrice = weightedAvg(sp.EntryPrice, sp.Quantity, t.EffectivePrice, t.Quantity)
	}
	sp.Quantity = sp.Quantity.Add(t.Quantity)
	sp.MarginMemo = sp.MarginMemo.Add(memo)
	sp.LastPrice = t.Price

	l.trades = append(l.trades, t)
	return nil
}

func (l *Ledger) applyCover(t types.Trade) error {
	sp, ok := l.shorts[t.Symbol]
	if !ok {
		return fmt.Errorf("cover %s: %w", t.Symbol, PositionNotFoundErr)
	}
	if t.Quantity.GreaterThan(sp.Quantity) {
		return fmt.Errorf("cover %s qty %s of %s: %w", t.Symbol, t.Quantity, sp.Quantity, OversizedCloseErr)
	}

	// Partial covers settle a proportional share of the accrued interest.
	share := t.Quantity.Div(sp.Quantity)
	interestDue := sp.AccruedInterest.Mul(share)

	cost := t.EffectivePrice.Mul(t.Quantity).Add(t.Commission).Add(t.StampTax).Add(interestDue)
	if cost.GreaterThan(l.cash) {
		return fmt.Errorf("cover %s needs %s, have %s: %w", t.Symbol, cost, l.cash, InsufficientCashErr)
	}
	l.cash = l.cash.Sub(cost)

	realized := sp.EntryPrice.Mul(t.Quantity).Sub(t.EffectivePrice.Mul(t.Quantity)).Sub(interestDue)
	l.realizedShortPnL = l.realizedShortPnL.Add(realized)

	sp.AccruedInterest = sp.AccruedInterest.Sub(interestDue)
	sp.Quantity = sp.Quantity.Sub(t.Quantity)
	sp.LastPrice = t.Price
	if sp.Quantity.IsZero() {
		delete(l.shorts, t.Symbol)
	}

	l.trades = append(l.trades, t)
	return nil
}

// AccrueInterest charges one trading day of short financing on every open
// short, valued at the supplied marks. Runs once per date, before any
// same-day trades; it is independent of the rebalance cadence.
func (l *Ledger) AccrueInterest(priceOf PriceFunc) {
	for _, sp := range l.shorts {
		mark := sp.LastPrice
		if p, ok := priceOf(sp.Symbol); ok {
			mark = p
		}
		daily := mark.Mul(sp.Quantity).Mul(l.marginRate).Div(daysPerYear)
		sp.AccruedInterest = sp.AccruedInterest.Add(daily)
		l.interestTotal = l.interestTotal.Add(daily)
	}
}

// MarkToMarket revalues open positions at the supplied marks and returns the
// daily snapshot. Symbols without a mark keep their last known price; the
// trade log is never touched.
func (l *Ledger) MarkToMarket(date time.Time, priceOf PriceFunc) types.PortfolioSnapshot {
	longValue := decimal.Zero
	for _, pos := range l.longs {
		if p, ok := priceOf(pos.Symbol); ok {
			pos.LastPrice = p
		}
		longValue = longValue.Add(pos.Quantity.Mul(pos.LastPrice))
	}

	shortValue := decimal.Zero
	liability := decimal.Zero
	outstanding := decimal.Zero
	for _, sp := range l.shorts {
		if p, ok := priceOf(sp.Symbol); ok {
			sp.LastPrice = p
		}
		shortValue = shortValue.Add(sp.Quantity.Mul(sp.LastPrice))
		liability = liability.Add(sp.Quantity.Mul(sp.EntryPrice))
		outstanding = outstanding.Add(sp.AccruedInterest)
	}

	unrealized := liability.Sub(shortValue).Sub(outstanding)
	return types.PortfolioSnapshot{
		Date:            date,
		Cash:            l.cash,
		LongValue:       longValue,
		ShortValue:      shortValue,
		ShortLiability:  liability,
		ShortPnL:        unrealized,
		InterestAccrued: l.interestTotal,
		TotalValue:      l.cash.Add(longValue).Sub(liability).Add(unrealized),
	}
}

// TotalValue is the mark-to-market equity without materializing a snapshot.
// Execution loops size orders off it.
func (l *Ledger) TotalValue(priceOf PriceFunc) decimal.Decimal {
	snap := l.MarkToMarket(time.Time{}, priceOf)
	return snap.TotalValue
}

// LedgerState is the portable portfolio state handed across chunk window
// boundaries. It carries everything a successor window needs and nothing it
// does not: the per-window trade log stays behind.
type LedgerState struct {
	Cash             decimal.Decimal
	Longs            []Position
	Shorts           []ShortPosition
	RealizedShortPnL decimal.Decimal
	InterestTotal    decimal.Decimal
}

func (l *Ledger) State() LedgerState {
	st := LedgerState{
		Cash:             l.cash,
		RealizedShortPnL: l.realizedShortPnL,
		InterestTotal:    l.interestTotal,
	}
	for _, sym := range l.LongSymbols() {
		st.Longs = append(st.Longs, *l.longs[sym])
	}
	for _, sym := range l.ShortSymbols() {
		st.Shorts = append(st.Shorts, *l.shorts[sym])
	}
	return st
}

// Restore replaces the ledger's portfolio state with a previously exported
// one. Open positions carry over as-is: a position open at a window boundary
// stays open without being re-bought.
func (l *Ledger) Restore(st LedgerState) {
	l.cash = st.Cash
	l.realizedShortPnL = st.RealizedShortPnL
	l.interestTotal = st.InterestTotal
	l.longs = make(map[string]*Position, len(st.Longs))
	for _, pos := range st.Longs {
		pos := pos
		l.longs[pos.Symbol] = &pos
	}
	l.shorts = make(map[string]*ShortPosition, len(st.Shorts))
	for _, sp := range st.Shorts {
		sp := sp
		l.shorts[sp.Symbol] = &sp
	}
}

func weightedAvg(existingPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
