package engine

import (
	"errors"
	"fmt"
	"testing"

	"quantbt/types"
)

func sameSnapshots(t *testing.T, label string, got, want []types.PortfolioSnapshot) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d snapshots, want %d", label, len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if !g.Date.Equal(w.Date) {
			t.Fatalf("%s row %d: date %s != %s", label, i, g.Date, w.Date)
		}
		if !g.Cash.Equal(w.Cash) || !g.TotalValue.Equal(w.TotalValue) ||
			!g.LongValue.Equal(w.LongValue) || !g.ShortLiability.Equal(w.ShortLiability) ||
			!g.ShortPnL.Equal(w.ShortPnL) || !g.InterestAccrued.Equal(w.InterestAccrued) {
			t.Fatalf("%s row %d (%s): chunked snapshot diverged\n got: %+v\nwant: %+v",
				label, i, g.Date.Format("2006-01-02"), g, w)
		}
	}
}

func sameTrades(t *testing.T, label string, got, want []types.Trade) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d trades, want %d", label, len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if !g.Date.Equal(w.Date) || g.Symbol != w.Symbol || g.Action != w.Action ||
			!g.Quantity.Equal(w.Quantity) || !g.EffectivePrice.Equal(w.EffectivePrice) ||
			!g.Commission.Equal(w.Commission) || !g.StampTax.Equal(w.StampTax) {
			t.Fatalf("%s trade %d: chunked trade diverged\n got: %+v\nwant: %+v", label, i, g, w)
		}
	}
}

func TestRunChunked_AgreesWithMonolithicNeutral(t *testing.T) {
	// The market-neutral loop crosses chunk boundaries with open shorts and
	// accruing interest; every window size must replay the monolithic run
	// to the cent.
	cfg, data, signals := neutralFixture(t, 120, 60)

	mono, err := NewMarketNeutral(cfg, data, signals)
	if err != nil {
		t.Fatal(err)
	}
	wantSnaps, err := mono.Run()
	if err != nil {
		t.Fatal(err)
	}
	wantTrades := mono.Trades()

	for _, chunk := range []int{7, 20, 60, 120, 125} {
		newRunner := func() (WindowRunner, error) {
			return NewMarketNeutral(cfg, data, signals)
		}
		snaps, trades, err := RunChunked(newRunner, data.Prices.Len(), chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", chunk, err)
		}
		label := fmt.Sprintf("chunk %d", chunk)
		sameSnapshots(t, label, snaps, wantSnaps)
		sameTrades(t, label, trades, wantTrades)
	}
}

func TestRunChunked_AgreesWithMonolithicLongOnly(t *testing.T) {
	cfg, data, signals := longOnlyFixture(t, 120, 60)

	mono, err := NewLongOnly(cfg, data, signals)
	if err != nil {
		t.Fatal(err)
	}
	wantSnaps, err := mono.Run()
	if err != nil {
		t.Fatal(err)
	}
	wantTrades := mono.Trades()

	newRunner := func() (WindowRunner, error) {
		return NewLongOnly(cfg, data, signals)
	}
	snaps, trades, err := RunChunked(newRunner, data.Prices.Len(), 30)
	if err != nil {
		t.Fatal(err)
	}
	sameSnapshots(t, "long-only", snaps, wantSnaps)
	sameTrades(t, "long-only", trades, wantTrades)
}

func TestRunChunked_NoBoundaryChurn(t *testing.T) {
	// Stable signals: after the initial opens nothing should ever trade,
	// chunked or not. A boundary that re-bought carried positions would
	// show up as extra trades here.
	cfg, data, signals := longOnlyFixture(t, 90, 1000)

	newRunner := func() (WindowRunner, error) {
		return NewLongOnly(cfg, data, signals)
	}
	_, trades, err := RunChunked(newRunner, data.Prices.Len(), 13)
	if err != nil {
		t.Fatal(err)
	}
	firstRebalance := data.Prices.Dates[4]
	for _, tr := range trades {
		if !tr.Date.Equal(firstRebalance) {
			t.Fatalf("unexpected %s of %s on %s; only the initial opens should trade",
				tr.Action, tr.Symbol, tr.Date.Format("2006-01-02"))
		}
	}
	if len(trades) != 5 {
		t.Fatalf("got %d trades, want the 5 initial buys", len(trades))
	}
}

func TestRunChunked_InvalidChunkSize(t *testing.T) {
	newRunner := func() (WindowRunner, error) { return nil, nil }
	for _, chunk := range []int{0, -5} {
		if _, _, err := RunChunked(newRunner, 10, chunk); !errors.Is(err, InvalidChunkSizeErr) {
			t.Fatalf("chunk %d: got %v, want InvalidChunkSizeErr", chunk, err)
		}
	}
}
