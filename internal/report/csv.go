package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"quantbt/types"
)

// WriteSnapshotsCSVFile writes the equity curve to a CSV file at path.
func WriteSnapshotsCSVFile(path string, snapshots []types.PortfolioSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshots file: %w", err)
	}
	defer f.Close()

	return WriteSnapshotsCSV(f, snapshots)
}

// WriteSnapshotsCSV writes the equity curve to any io.Writer as CSV.
func WriteSnapshotsCSV(w io.Writer, snapshots []types.PortfolioSnapshot) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"date",
		"cash",
		"long_value",
		"short_value",
		"short_liability",
		"short_pnl",
		"interest_accrued",
		"total_value",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, s := range snapshots {
		record := []string{
			s.Date.Format("2006-01-02"),
			s.Cash.String(),
			s.LongValue.String(),
			s.ShortValue.String(),
			s.ShortLiability.String(),
			s.ShortPnL.String(),
			s.InterestAccrued.String(),
			s.TotalValue.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteTradesCSVFile writes the trade log to a CSV file at path.
func WriteTradesCSVFile(path string, trades []types.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	return WriteTradesCSV(f, trades)
}

// WriteTradesCSV writes the trade log to any io.Writer as CSV.
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"date",
		"symbol",
		"action",
		"quantity",
		"price",
		"effective_price",
		"commission",
		"stamp_tax",
		"slippage_cost",
		"total_cost",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range trades {
		record := []string{
			t.Date.Format("2006-01-02"),
			t.Symbol,
			string(t.Action),
			t.Quantity.String(),
			t.Price.String(),
			t.EffectivePrice.String(),
			t.Commission.String(),
			t.StampTax.String(),
			t.SlippageCost.String(),
			t.TotalCost().String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
