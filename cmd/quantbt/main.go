package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"quantbt/internal/engine"
	"quantbt/internal/report"
	"quantbt/internal/repository"
	"quantbt/strategies/momentum"
	"quantbt/types"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quantbt",
		Short: "quantbt - portfolio backtesting engine",
		Long: `quantbt replays daily bars against a signal-driven portfolio strategy
and reports the resulting equity curve, trades and performance metrics.`,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("quantbt v0.3.0")
		},
	}
}

type runOptions struct {
	dbURL   string
	tickers []string
	start   string
	end     string

	mode     string
	lookback int
	capital  float64
	topN     int
	bottomN  int
	freq     string
	holding  int
	margin   float64
	chunk    int
	stopLoss float64
	riskFree float64

	csvDir   string
	progress bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation over daily bars from the database",
		Long: `Run a simulation. Example:
quantbt run --tickers 600000,600036,601318 --start 2022-01-01 --end 2023-12-31 --mode long-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbURL, "db", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.Flags().StringSliceVar(&opts.tickers, "tickers", nil, "Ticker universe")
	cmd.Flags().StringVar(&opts.start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.mode, "mode", "long-only", "Strategy mode: long-only, market-neutral or layered")
	cmd.Flags().IntVar(&opts.lookback, "lookback", 20, "Momentum lookback in trading days")
	cmd.Flags().Float64Var(&opts.capital, "capital", 1_000_000, "Initial capital")
	cmd.Flags().IntVar(&opts.topN, "top", 5, "Number of long positions")
	cmd.Flags().IntVar(&opts.bottomN, "bottom", 5, "Number of short positions (market-neutral)")
	cmd.Flags().StringVar(&opts.freq, "freq", "W", "Rebalance frequency: D, W or M")
	cmd.Flags().IntVar(&opts.holding, "holding", 1, "Minimum holding period in trading days")
	cmd.Flags().Float64Var(&opts.margin, "margin", 0.10, "Annual short margin rate")
	cmd.Flags().IntVar(&opts.chunk, "chunk", 0, "Chunked execution window in rows (0 = monolithic)")
	cmd.Flags().Float64Var(&opts.stopLoss, "stop-loss", 0.08, "Stop-loss fraction (layered mode)")
	cmd.Flags().Float64Var(&opts.riskFree, "risk-free", 0.02, "Annual risk-free rate for Sharpe/Sortino")
	cmd.Flags().StringVar(&opts.csvDir, "csv-dir", "", "Directory for snapshot/trade CSV output")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Show a progress bar")
	_ = cmd.MarkFlagRequired("tickers")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runSimulation(ctx context.Context, opts runOptions) error {
	start, err := time.Parse("2006-01-02", opts.start)
	if err != nil {
		return fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", opts.end)
	if err != nil {
		return fmt.Errorf("parse end date: %w", err)
	}

	db, err := repository.NewDatabase(opts.dbURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	prices, err := db.GetPriceFrame(opts.tickers, start, end, ctx)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	volumes, err := db.GetVolumeFrame(opts.tickers, start, end, ctx)
	if err != nil {
		return fmt.Errorf("load volumes: %w", err)
	}
	slog.Info("bars loaded", "tickers", len(prices.Symbols()), "days", prices.Len())

	data := engine.MarketData{Prices: prices, Volumes: volumes}

	cfg := engine.DefaultConfig()
	cfg.InitialCapital = decimal.NewFromFloat(opts.capital)
	cfg.TopN = opts.topN
	cfg.BottomN = opts.bottomN
	cfg.HoldingPeriod = opts.holding
	cfg.RebalanceFreq = types.Frequency(opts.freq)
	cfg.MarginRate = decimal.NewFromFloat(opts.margin)
	cfg.ShowProgress = opts.progress
	if opts.chunk > 0 {
		cfg.ChunkSize = opts.chunk
	}

	snaps, trades, err := simulate(cfg, data, opts)
	if err != nil {
		return err
	}

	summary := report.Compute(snaps, trades, decimal.NewFromFloat(opts.riskFree))
	summary.Print(os.Stdout)

	if opts.csvDir != "" {
		if err := os.MkdirAll(opts.csvDir, 0o755); err != nil {
			return fmt.Errorf("create csv dir: %w", err)
		}
		if err := report.WriteSnapshotsCSVFile(filepath.Join(opts.csvDir, "snapshots.csv"), snaps); err != nil {
			return err
		}
		if err := report.WriteTradesCSVFile(filepath.Join(opts.csvDir, "trades.csv"), trades); err != nil {
			return err
		}
		slog.Info("csv written", "dir", opts.csvDir)
	}
	return nil
}

func simulate(cfg engine.Config, data engine.MarketData, opts runOptions) ([]types.PortfolioSnapshot, []types.Trade, error) {
	newRunner, err := buildRunner(cfg, data, opts)
	if err != nil {
		return nil, nil, err
	}

	if opts.chunk > 0 {
		return engine.RunChunked(newRunner, data.Prices.Len(), cfg.ChunkSize)
	}

	r, err := newRunner()
	if err != nil {
		return nil, nil, err
	}
	snaps, err := r.RunRange(0, data.Prices.Len())
	if err != nil {
		return nil, nil, err
	}
	return snaps, r.Trades(), nil
}

func buildRunner(cfg engine.Config, data engine.MarketData, opts runOptions) (func() (engine.WindowRunner, error), error) {
	switch opts.mode {
	case "long-only":
		signals := momentumSignals(data.Prices, opts.lookback)
		return func() (engine.WindowRunner, error) {
			return engine.NewLongOnly(cfg, data, signals)
		}, nil
	case "market-neutral":
		signals := momentumSignals(data.Prices, opts.lookback)
		return func() (engine.WindowRunner, error) {
			return engine.NewMarketNeutral(cfg, data, signals)
		}, nil
	case "layered":
		return func() (engine.WindowRunner, error) {
			return engine.NewLayered(cfg, data,
				momentum.NewTopReturnSelector(opts.lookback, cfg.TopN),
				momentum.EqualWeightEntry{},
				momentum.StopLossExit{Pct: decimal.NewFromFloat(opts.stopLoss)},
			)
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
}

// momentumSignals scores every cell with the trailing return over lookback
// rows; cells without both endpoint prices score zero.
func momentumSignals(prices *types.Frame, lookback int) *types.Frame {
	columns := make(map[string][]decimal.Decimal, len(prices.Columns))
	one := decimal.NewFromInt(1)
	for _, sym := range prices.Symbols() {
		col := make([]decimal.Decimal, prices.Len())
		for i := lookback; i < prices.Len(); i++ {
			now, ok := prices.Value(sym, i)
			if !ok {
				continue
			}
			then, ok := prices.Value(sym, i-lookback)
			if !ok {
				continue
			}
			col[i] = now.Div(then).Sub(one)
		}
		columns[sym] = col
	}
	// Column lengths mirror the source frame, so this cannot fail.
	f, _ := types.NewFrame(prices.Dates, columns)
	return f
}
