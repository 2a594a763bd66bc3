// Package aggregation turns an unordered set of transactions into chart-ready
// time buckets and ranked expense categories.
//
// Every function in this package is pure: inputs are never mutated and no
// state survives between calls, so callers may aggregate concurrently.
package aggregation

import (
	"fmt"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
)

// autoDayMaxSpanDays is the widest span, in whole days, still charted by day.
const autoDayMaxSpanDays = 35

const secondsPerDay = 24 * 60 * 60

// Bounds returns the earliest and latest OccurredAt in txns.
// ok is false when txns is empty.
func Bounds(txns []domain.Transaction) (min, max time.Time, ok bool) {
	for i, tx := range txns {
		if i == 0 || tx.OccurredAt.Before(min) {
			min = tx.OccurredAt
		}
		if i == 0 || tx.OccurredAt.After(max) {
			max = tx.OccurredAt
		}
	}
	return min, max, len(txns) > 0
}

// SelectGrain returns explicit when set; otherwise it picks day for spans of
// up to 35 whole days and month beyond that. Week and year are only reachable
// through explicit. An empty set has a zero span and yields day.
func SelectGrain(txns []domain.Transaction, explicit domain.TimeGrain) domain.TimeGrain {
	if explicit != domain.GrainUnspecified {
		return explicit
	}
	min, max, ok := Bounds(txns)
	if !ok {
		return domain.GrainDay
	}
	return grainForSpan(min, max)
}

func grainForSpan(min, max time.Time) domain.TimeGrain {
	spanDays := int64(max.Sub(min) / (24 * time.Hour))
	if spanDays <= autoDayMaxSpanDays {
		return domain.GrainDay
	}
	return domain.GrainMonth
}

// AlignToGrainStart snaps t down to the start of its grain period, in t's location.
// Weeks start on Monday.
func AlignToGrainStart(t time.Time, grain domain.TimeGrain) time.Time {
	y, m, d := t.Date()
	loc := t.Location()

	switch grain {
	case domain.GrainWeek:
		back := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, loc)
	case domain.GrainMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case domain.GrainYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// AddOneGrainUnit advances t by one calendar day, week, month or year.
func AddOneGrainUnit(t time.Time, grain domain.TimeGrain) time.Time {
	switch grain {
	case domain.GrainWeek:
		return t.AddDate(0, 0, 7)
	case domain.GrainMonth:
		return t.AddDate(0, 1, 0)
	case domain.GrainYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Label renders a bucket start as "2 Jan", "W3 Jan", "Jan 2025" or "2025".
// Week numbers are ISO-8601; the month is the one the week starts in.
func Label(start time.Time, grain domain.TimeGrain) string {
	switch grain {
	case domain.GrainWeek:
		_, week := start.ISOWeek()
		return fmt.Sprintf("W%d %s", week, start.Format("Jan"))
	case domain.GrainMonth:
		return start.Format("Jan 2006")
	case domain.GrainYear:
		return start.Format("2006")
	default:
		return start.Format("2 Jan")
	}
}

// periodIndex counts whole grain periods from the aligned start to t.
// Both values must share a location. The arithmetic runs on civil dates so
// DST transitions never shift a transaction into a neighbouring bucket.
func periodIndex(start, t time.Time, grain domain.TimeGrain) int {
	switch grain {
	case domain.GrainWeek:
		return floorDiv(civilDay(t)-civilDay(start), 7)
	case domain.GrainMonth:
		return monthNumber(t) - monthNumber(start)
	case domain.GrainYear:
		return t.Year() - start.Year()
	default:
		return civilDay(t) - civilDay(start)
	}
}

// civilDay numbers calendar dates consecutively, ignoring the clock and zone offset.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

func monthNumber(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
