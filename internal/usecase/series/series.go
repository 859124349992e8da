// Package series turns sparse, dated events into dense per-day sequences.
package series

import (
	"fmt"
	"maps"
	"slices"

	"github.com/wattsup/nummus/internal/domain"
)

// Value is implemented by the tagged decimals (domain.Currency, domain.Quantity).
// The zero value of T must behave as zero.
type Value[T any] interface {
	Add(T) T
}

// Policy selects how days without an event are filled
type Policy int

const (
	// HoldLast repeats the most recent event at or before the day, zero before any event
	HoldLast Policy = iota
	// CumulativeDelta running-sums deltas from zero at the first day of the window
	CumulativeDelta
	// Daily takes the event dated exactly on the day, zero otherwise
	Daily
)

func (p Policy) String() string {
	switch p {
	case HoldLast:
		return "hold-last"
	case CumulativeDelta:
		return "cumulative-delta"
	case Daily:
		return "daily"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the names returned by Policy.String
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "hold-last":
		return HoldLast, nil
	case "cumulative-delta":
		return CumulativeDelta, nil
	case "daily":
		return Daily, nil
	default:
		return 0, fmt.Errorf("unknown fill policy: %q", s)
	}
}

// Dates returns every ordinal in [start, end]
func Dates(start, end domain.Ordinal) []domain.Ordinal {
	mustRange(start, end)
	dates := make([]domain.Ordinal, domain.Days(start, end))
	for i := range dates {
		dates[i] = start + domain.Ordinal(i)
	}
	return dates
}

// Build densifies events over [start, end] under policy p.
// The result always has end-start+1 elements.
//
// Events dated before start only matter to HoldLast, where they establish the
// value carried into the window. Events after end are ignored.
// Build panics if end < start.
func Build[T Value[T]](events map[domain.Ordinal]T, start, end domain.Ordinal, p Policy) []T {
	mustRange(start, end)

	out := make([]T, domain.Days(start, end))
	keys := slices.Sorted(maps.Keys(events))

	// single merge pass: i walks the sorted event dates, day walks the window
	i := 0
	var current T
	switch p {
	case HoldLast:
		for day := start; day <= end; day++ {
			for ; i < len(keys) && keys[i] <= day; i++ {
				current = events[keys[i]]
			}
			out[day-start] = current
		}
	case CumulativeDelta:
		for i < len(keys) && keys[i] < start {
			i++
		}
		for day := start; day <= end; day++ {
			for ; i < len(keys) && keys[i] <= day; i++ {
				current = current.Add(events[keys[i]])
			}
			out[day-start] = current
		}
	case Daily:
		for i < len(keys) && keys[i] < start {
			i++
		}
		for ; i < len(keys) && keys[i] <= end; i++ {
			out[keys[i]-start] = events[keys[i]]
		}
	default:
		panic(fmt.Sprintf("series: unknown policy %d", p))
	}

	return out
}

// Rebase folds every delta dated before start into a single delta on start.
// A CumulativeDelta build of the result carries the full-history running total
// into the window instead of restarting from zero.
func Rebase[T Value[T]](events map[domain.Ordinal]T, start domain.Ordinal) map[domain.Ordinal]T {
	out := make(map[domain.Ordinal]T, len(events))
	var opening T
	carried := false
	for day, delta := range events {
		if day < start {
			opening = opening.Add(delta)
			carried = true
			continue
		}
		out[day] = delta
	}
	if carried {
		out[start] = out[start].Add(opening)
	}
	return out
}

// Accumulate adds delta to events[day]
func Accumulate[T Value[T]](events map[domain.Ordinal]T, day domain.Ordinal, delta T) {
	events[day] = events[day].Add(delta)
}

func mustRange(start, end domain.Ordinal) {
	if end < start {
		panic(fmt.Sprintf("series: %v: start %d, end %d", domain.ErrInvalidRange, start, end))
	}
}
