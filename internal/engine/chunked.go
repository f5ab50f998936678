package engine

import (
	"errors"
	"fmt"

	"quantbt/types"
)

var InvalidChunkSizeErr = errors.New("chunk size must be positive")

// WindowRunner is the view of an execution loop the chunked wrapper needs:
// the same per-date step the monolithic path runs, plus ledger state
// hand-off. All three engines implement it through core.
type WindowRunner interface {
	RunRange(lo, hi int) ([]types.PortfolioSnapshot, error)
	State() LedgerState
	Restore(LedgerState)
	Trades() []types.Trade
}

// RunChunked partitions the n-row index into consecutive windows of
// chunkSize rows (the last may be shorter) and replays the same per-date
// loop window by window. Each window's engine comes fresh from the factory
// and is seeded with the previous window's terminal ledger state, so open
// positions cross boundaries without being re-bought. Windows run strictly
// in order: window i+1 never starts before window i's state is final.
func RunChunked(newRunner func() (WindowRunner, error), n, chunkSize int) ([]types.PortfolioSnapshot, []types.Trade, error) {
	if chunkSize <= 0 {
		return nil, nil, fmt.Errorf("%d: %w", chunkSize, InvalidChunkSizeErr)
	}

	var snapshots []types.PortfolioSnapshot
	var trades []types.Trade
	var carry *LedgerState

	for lo := 0; lo < n; lo += chunkSize {
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		r, err := newRunner()
		if err != nil {
			return nil, nil, err
		}
		if carry != nil {
			r.Restore(*carry)
		}
		snaps, err := r.RunRange(lo, hi)
		if err != nil {
			return nil, nil, fmt.Errorf("window [%d,%d): %w", lo, hi, err)
		}
		snapshots = append(snapshots, snaps...)
		trades = append(trades, r.Trades()...)

		st := r.State()
		carry = &st
	}
	return snapshots, trades, nil
}
