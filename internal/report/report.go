package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"quantbt/types"

	"github.com/shopspring/decimal"
)

var BenchmarkLengthErr = errors.New("benchmark series length does not match snapshots")

var tradingDaysPerYear = 252.0

// Summary is the performance report of one completed run. All metrics are
// derived from the snapshot curve and the trade log; the engine itself
// computes none of them.
type Summary struct {
	StartDate   time.Time
	EndDate     time.Time
	TradingDays int
	TotalTrades int

	TotalReturn      decimal.Decimal
	AnnualizedReturn decimal.Decimal
	Volatility       decimal.Decimal

	SharpeRatio  decimal.Decimal
	SortinoRatio decimal.Decimal
	CalmarRatio  decimal.Decimal

	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	MaxDrawdownDays    time.Duration

	WinRate decimal.Decimal

	TotalCommission decimal.Decimal
	TotalStampTax   decimal.Decimal
	TotalSlippage   decimal.Decimal
	InterestPaid    decimal.Decimal
}

// Relative compares the equity curve against a benchmark series.
type Relative struct {
	Beta             decimal.Decimal
	Alpha            decimal.Decimal
	InformationRatio decimal.Decimal
}

// Compute builds the summary from a run's snapshots and trades.
// annualRiskFree is the annual risk-free rate used by Sharpe and Sortino.
func Compute(snapshots []types.PortfolioSnapshot, trades []types.Trade, annualRiskFree decimal.Decimal) Summary {
	s := Summary{TotalTrades: len(trades)}
	if len(snapshots) == 0 {
		return s
	}
	s.StartDate = snapshots[0].Date
	s.EndDate = snapshots[len(snapshots)-1].Date
	s.TradingDays = len(snapshots)
	s.InterestPaid = snapshots[len(snapshots)-1].InterestAccrued

	returns := dailyReturns(snapshots)

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		s.TotalReturn, s.AnnualizedReturn = calcReturns(snapshots, &wg)
	}()
	go func() {
		s.Volatility = calcVolatility(returns, &wg)
	}()
	go func() {
		s.SharpeRatio, s.SortinoRatio = calcRiskAdjusted(returns, annualRiskFree, &wg)
	}()
	go func() {
		s.MaxDrawdown, s.MaxDrawdownPercent, s.MaxDrawdownDays = calcDrawdown(snapshots, &wg)
	}()
	go func() {
		s.WinRate = calcWinRate(trades, &wg)
	}()
	go func() {
		s.TotalCommission, s.TotalStampTax, s.TotalSlippage = calcCosts(trades, &wg)
	}()
	wg.Wait()

	if s.MaxDrawdownPercent.IsPositive() {
		s.CalmarRatio = s.AnnualizedReturn.Div(s.MaxDrawdownPercent)
	}
	return s
}

// ComputeRelative regresses daily equity returns on daily benchmark returns.
// The benchmark is a level series (index closes) aligned row-for-row with the
// snapshots.
func ComputeRelative(snapshots []types.PortfolioSnapshot, benchmark []decimal.Decimal) (Relative, error) {
	if len(benchmark) != len(snapshots) {
		return Relative{}, fmt.Errorf("%d benchmark rows for %d snapshots: %w",
			len(benchmark), len(snapshots), BenchmarkLengthErr)
	}
	port := dailyReturns(snapshots)
	bench := seriesReturns(benchmark)
	if len(port) < 2 || len(bench) != len(port) {
		return Relative{}, nil
	}

	pf := toFloats(port)
	bf := toFloats(bench)
	meanP := mean(pf)
	meanB := mean(bf)

	var cov, varB float64
	for i := range pf {
		cov += (pf[i] - meanP) * (bf[i] - meanB)
		varB += (bf[i] - meanB) * (bf[i] - meanB)
	}
	if varB == 0 {
		return Relative{}, nil
	}
	beta := cov / varB
	alphaDaily := meanP - beta*meanB

	active := make([]float64, len(pf))
	for i := range pf {
		active[i] = pf[i] - bf[i]
	}
	ir := 0.0
	if sd := stddev(active); sd > 0 {
		ir = mean(active) / sd * math.Sqrt(tradingDaysPerYear)
	}

	return Relative{
		Beta:             decimal.NewFromFloat(beta),
		Alpha:            decimal.NewFromFloat(alphaDaily * tradingDaysPerYear),
		InformationRatio: decimal.NewFromFloat(ir),
	}, nil
}

func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "===== Simulation Report =====")
	fmt.Fprintf(w, "Period:               %s -> %s (%d trading days)\n",
		s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"), s.TradingDays)
	fmt.Fprintf(w, "Total Trades:         %d\n", s.TotalTrades)

	fmt.Fprintln(w, "\n-- Returns --")
	fmt.Fprintf(w, "Total Return:         %s%%\n", s.TotalReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "Annualized Return:    %s%%\n", s.AnnualizedReturn.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "Annualized Vol:       %s%%\n", s.Volatility.Mul(decimal.NewFromInt(100)).StringFixed(2))

	fmt.Fprintln(w, "\n-- Risk-Adjusted --")
	fmt.Fprintf(w, "Sharpe Ratio:         %s\n", s.SharpeRatio.StringFixed(2))
	fmt.Fprintf(w, "Sortino Ratio:        %s\n", s.SortinoRatio.StringFixed(2))
	fmt.Fprintf(w, "Calmar Ratio:         %s\n", s.CalmarRatio.StringFixed(2))

	fmt.Fprintln(w, "\n-- Drawdown --")
	fmt.Fprintf(w, "Max Drawdown:         %s (%s%%)\n",
		s.MaxDrawdown.StringFixed(2), s.MaxDrawdownPercent.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown Days:    %d\n", int(s.MaxDrawdownDays/(24*time.Hour)))

	fmt.Fprintln(w, "\n-- Trades --")
	fmt.Fprintf(w, "Win Rate:             %s%%\n", s.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(1))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Commission:           %s\n", s.TotalCommission.StringFixed(2))
	fmt.Fprintf(w, "Stamp Tax:            %s\n", s.TotalStampTax.StringFixed(2))
	fmt.Fprintf(w, "Slippage:             %s\n", s.TotalSlippage.StringFixed(2))
	fmt.Fprintf(w, "Short Interest:       %s\n", s.InterestPaid.StringFixed(2))
	fmt.Fprintln(w, "=============================")
}

func calcReturns(snapshots []types.PortfolioSnapshot, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()
	if len(snapshots) < 2 {
		return decimal.Zero, decimal.Zero
	}
	start := snapshots[0].TotalValue
	end := snapshots[len(snapshots)-1].TotalValue
	if !start.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	total := end.Div(start).Sub(decimal.NewFromInt(1))

	ratio := end.Div(start)
	if !ratio.IsPositive() {
		return total, decimal.Zero
	}
	years := float64(len(snapshots)) / tradingDaysPerYear
	annual := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	return total, decimal.NewFromFloat(annual)
}

func calcVolatility(returns []decimal.Decimal, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(returns) < 2 {
		return decimal.Zero
	}
	sd := stddev(toFloats(returns))
	return decimal.NewFromFloat(sd * math.Sqrt(tradingDaysPerYear))
}

func calcRiskAdjusted(returns []decimal.Decimal, annualRiskFree decimal.Decimal, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()
	if len(returns) < 2 {
		return decimal.Zero, decimal.Zero
	}

	// rf_daily = (1 + rf_annual)^(1/252) - 1
	rfDaily := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/tradingDaysPerYear) - 1.0

	excess := make([]float64, 0, len(returns))
	for _, r := range returns {
		excess = append(excess, r.InexactFloat64()-rfDaily)
	}
	meanExcess := mean(excess)

	sharpe := decimal.Zero
	if sd := stddev(excess); sd > 0 {
		sharpe = decimal.NewFromFloat(meanExcess / sd * math.Sqrt(tradingDaysPerYear))
	}

	// Sortino penalizes downside deviation only.
	var downSum float64
	downN := 0
	for _, x := range excess {
		if x < 0 {
			downSum += x * x
			downN++
		}
	}
	sortino := decimal.Zero
	if downN > 0 {
		if dd := math.Sqrt(downSum / float64(len(excess))); dd > 0 {
			sortino = decimal.NewFromFloat(meanExcess / dd * math.Sqrt(tradingDaysPerYear))
		}
	}
	return sharpe, sortino
}

func calcDrawdown(snapshots []types.PortfolioSnapshot, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()
	if len(snapshots) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := decimal.Zero
	var peakTime time.Time
	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range snapshots {
		equity := snap.TotalValue
		if i == 0 || equity.GreaterThan(peak) {
			peak = equity
			peakTime = snap.Date
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
			maxDDPct = dd.Div(peak)
			maxDDDuration = snap.Date.Sub(peakTime)
		}
	}
	return maxDD, maxDDPct, maxDDDuration
}

// calcWinRate replays the trade log per symbol and classifies each closing
// leg (sell or cover) by its realized result net of that leg's fees. Interest
// on shorts is settled through cash, not the trade log, so it is not part of
// the per-trade result here.
func calcWinRate(trades []types.Trade, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	results := roundTrips(trades)
	if len(results) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, pnl := range results {
		if pnl.IsPositive() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(results))))
}

func calcCosts(trades []types.Trade, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	defer wg.Done()

	commission := decimal.Zero
	stamp := decimal.Zero
	slippage := decimal.Zero
	for _, tr := range trades {
		commission = commission.Add(tr.Commission)
		stamp = stamp.Add(tr.StampTax)
		slippage = slippage.Add(tr.SlippageCost)
	}
	return commission, stamp, slippage
}

// roundTrips replays the log symbol by symbol, tracking the average entry
// price of each side, and emits one realized P&L per closing leg.
func roundTrips(trades []types.Trade) []decimal.Decimal {
	bySymbol := make(map[string][]types.Trade)
	for _, tr := range trades {
		bySymbol[tr.Symbol] = append(bySymbol[tr.Symbol], tr)
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var results []decimal.Decimal
	for _, sym := range symbols {
		legs := bySymbol[sym]
		sort.SliceStable(legs, func(i, j int) bool {
			return legs[i].Date.Before(legs[j].Date)
		})

		longQty, longAvg := decimal.Zero, decimal.Zero
		shortQty, shortAvg := decimal.Zero, decimal.Zero
		for _, tr := range legs {
			fees := tr.Commission.Add(tr.StampTax)
			switch tr.Action {
			case types.ActionBuy:
				total := longAvg.Mul(longQty).Add(tr.EffectivePrice.Mul(tr.Quantity))
				longQty = longQty.Add(tr.Quantity)
				longAvg = total.Div(longQty)
			case types.ActionSell:
				pnl := tr.EffectivePrice.Sub(longAvg).Mul(tr.Quantity).Sub(fees)
				results = append(results, pnl)
				longQty = longQty.Sub(tr.Quantity)
				if !longQty.IsPositive() {
					longQty, longAvg = decimal.Zero, decimal.Zero
				}
			case types.ActionShort:
				total := shortAvg.Mul(shortQty).Add(tr.EffectivePrice.Mul(tr.Quantity))
				shortQty = shortQty.Add(tr.Quantity)
				shortAvg = total.Div(shortQty)
			case types.ActionCover:
				pnl := shortAvg.Sub(tr.EffectivePrice).Mul(tr.Quantity).Sub(fees)
				results = append(results, pnl)
				shortQty = shortQty.Sub(tr.Quantity)
				if !shortQty.IsPositive() {
					shortQty, shortAvg = decimal.Zero, decimal.Zero
				}
			}
		}
	}
	return results
}

func dailyReturns(snapshots []types.PortfolioSnapshot) []decimal.Decimal {
	if len(snapshots) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(snapshots)-1)
	prev := snapshots[0].TotalValue
	for _, snap := range snapshots[1:] {
		if !prev.IsPositive() {
			prev = snap.TotalValue
			continue
		}
		out = append(out, snap.TotalValue.Div(prev).Sub(decimal.NewFromInt(1)))
		prev = snap.TotalValue
	}
	return out
}

func seriesReturns(levels []decimal.Decimal) []decimal.Decimal {
	if len(levels) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(levels)-1)
	prev := levels[0]
	for _, v := range levels[1:] {
		if !prev.IsPositive() {
			prev = v
			continue
		}
		out = append(out, v.Div(prev).Sub(decimal.NewFromInt(1)))
		prev = v
	}
	return out
}

func toFloats(xs []decimal.Decimal) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x.InexactFloat64()
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var varianceSum float64
	for _, x := range xs {
		diff := x - m
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(xs)-1))
}
