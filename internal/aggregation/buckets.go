package aggregation

import (
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
)

// GenerateBuckets returns one empty bucket per grain period from the period
// containing minDate through the period containing maxDate, both inclusive.
// maxDate is read in minDate's location; reversed bounds are swapped.
func GenerateBuckets(minDate, maxDate time.Time, grain domain.TimeGrain) []domain.Bucket {
	start, end := alignedRange(minDate, maxDate, grain)

	buckets := make([]domain.Bucket, 0, periodIndex(start, end, grain)+1)
	for cur := start; !cur.After(end); cur = AlignToGrainStart(AddOneGrainUnit(cur, grain), grain) {
		buckets = append(buckets, domain.Bucket{
			Start:   cur,
			Label:   Label(cur, grain),
			Metrics: domain.MetricSet{},
		})
	}
	return buckets
}

// BucketCount is the number of buckets GenerateBuckets would return.
func BucketCount(minDate, maxDate time.Time, grain domain.TimeGrain) int {
	start, end := alignedRange(minDate, maxDate, grain)
	return periodIndex(start, end, grain) + 1
}

// BucketsFor spans the buckets over the data bounds of txns.
// An empty input yields an empty, non-nil slice.
func BucketsFor(txns []domain.Transaction, grain domain.TimeGrain) []domain.Bucket {
	min, max, ok := Bounds(txns)
	if !ok {
		return []domain.Bucket{}
	}
	return GenerateBuckets(min, max, grain)
}

func alignedRange(minDate, maxDate time.Time, grain domain.TimeGrain) (time.Time, time.Time) {
	maxDate = maxDate.In(minDate.Location())
	if maxDate.Before(minDate) {
		minDate, maxDate = maxDate, minDate
	}
	return AlignToGrainStart(minDate, grain), AlignToGrainStart(maxDate, grain)
}
