package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"quantbt/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DailyBar is one end-of-day row as it comes out of the datasource.
type DailyBar struct {
	Ticker string
	Date   time.Time
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// GetPriceFrame materializes the close prices for tickers over [start, end]
// into a date-indexed frame. Dates where a ticker did not trade are left at
// zero, which the frame treats as missing.
func (db *Database) GetPriceFrame(tickers []string, start, end time.Time, ctx context.Context) (*types.Frame, error) {
	bars, err := db.bars.GetDailyBars(tickers, start, end, ctx)
	if err != nil {
		return nil, err
	}
	return buildFrame(bars, func(b DailyBar) decimal.Decimal { return b.Close })
}

// GetVolumeFrame materializes daily volumes the same way GetPriceFrame
// materializes closes.
func (db *Database) GetVolumeFrame(tickers []string, start, end time.Time, ctx context.Context) (*types.Frame, error) {
	bars, err := db.bars.GetDailyBars(tickers, start, end, ctx)
	if err != nil {
		return nil, err
	}
	return buildFrame(bars, func(b DailyBar) decimal.Decimal { return b.Volume })
}

// buildFrame pivots the flat bar rows into a wide frame: the index is the
// sorted union of all dates seen, one column per ticker.
func buildFrame(bars []DailyBar, value func(DailyBar) decimal.Decimal) (*types.Frame, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}

	dateSet := make(map[time.Time]bool)
	tickerSet := make(map[string]bool)
	for _, b := range bars {
		dateSet[b.Date] = true
		tickerSet[b.Ticker] = true
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	row := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		row[d] = i
	}

	columns := make(map[string][]decimal.Decimal, len(tickerSet))
	for ticker := range tickerSet {
		columns[ticker] = make([]decimal.Decimal, len(dates))
	}
	for _, b := range bars {
		columns[b.Ticker][row[b.Date]] = value(b)
	}

	return types.NewFrame(dates, columns)
}

type pgxBars struct {
	pool *pgxpool.Pool
}

const dailyBarsQuery = `
SELECT ticker, trade_date, close, volume
FROM daily_bars
WHERE ticker = ANY($1)
  AND trade_date BETWEEN $2 AND $3
ORDER BY trade_date, ticker`

func (r pgxBars) GetDailyBars(tickers []string, start, end time.Time, ctx context.Context) ([]DailyBar, error) {
	rows, err := r.pool.Query(ctx, dailyBarsQuery, tickers, start, end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoBars
		}
		return nil, fmt.Errorf("query daily bars: %w", err)
	}
	defer rows.Close()

	var bars []DailyBar
	for rows.Next() {
		var b DailyBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan daily bar: %w", err)
		}
		// Normalize to midnight UTC so frame lookups match engine dates.
		b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read daily bars: %w", err)
	}
	return bars, nil
}
