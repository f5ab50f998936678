package engine

import (
	"errors"
	"fmt"
	"time"

	"quantbt/types"
)

var InvalidFrequencyErr = errors.New("unsupported rebalance frequency")

// RebalanceDates selects the dates on which a strategy may change target
// allocations: every date for D, the last trading date of each ISO week for
// W, the last trading date of each calendar month for M. A pure function of
// the (ascending) index and frequency; the result is always a subset of the
// index, in index order.
func RebalanceDates(index []time.Time, freq types.Frequency) ([]time.Time, error) {
	switch freq {
	case types.Daily:
		return append([]time.Time(nil), index...), nil
	case types.Weekly:
		return lastPerBucket(index, func(t time.Time) [2]int {
			y, w := t.ISOWeek()
			return [2]int{y, w}
		}), nil
	case types.Monthly:
		return lastPerBucket(index, func(t time.Time) [2]int {
			return [2]int{t.Year(), int(t.Month())}
		}), nil
	default:
		return nil, fmt.Errorf("%q: %w", freq, InvalidFrequencyErr)
	}
}

func lastPerBucket(index []time.Time, key func(time.Time) [2]int) []time.Time {
	var out []time.Time
	for i, d := range index {
		if i+1 == len(index) || key(index[i+1]) != key(d) {
			out = append(out, d)
		}
	}
	return out
}
