package aggregation

import (
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/shopspring/decimal"
)

// Metric names carried by every aggregated bucket.
const (
	MetricIncome   = "income"
	MetricExpenses = "expenses"
)

// Aggregate sums income and expenses of txns into copies of buckets.
// Every returned bucket carries both metrics, zero when nothing fell in.
// Transactions whose period has no bucket are returned as orphans; with
// buckets built by GenerateBuckets over the same set there are none.
func Aggregate(txns []domain.Transaction, buckets []domain.Bucket, grain domain.TimeGrain) ([]domain.Bucket, []domain.Transaction) {
	out := copyBuckets(buckets, MetricIncome, MetricExpenses)
	idx := newBucketIndex(out, grain)

	var orphans []domain.Transaction
	for _, tx := range txns {
		i, ok := idx.find(tx.OccurredAt)
		if !ok {
			orphans = append(orphans, tx)
			continue
		}
		metric := MetricIncome
		if tx.IsExpense() {
			metric = MetricExpenses
		}
		out[i].Metrics.Add(metric, tx.Amount)
	}
	return out, orphans
}

// copyBuckets deep-copies buckets and zero-initialises the named metrics.
func copyBuckets(buckets []domain.Bucket, metrics ...string) []domain.Bucket {
	out := make([]domain.Bucket, len(buckets))
	for i, b := range buckets {
		m := b.Metrics.Clone()
		for _, name := range metrics {
			if _, ok := m[name]; !ok {
				m[name] = decimal.Zero
			}
		}
		out[i] = domain.Bucket{Start: b.Start, Label: b.Label, Metrics: m}
	}
	return out
}

// bucketIndex maps a timestamp to its bucket in O(1) for a contiguous sequence.
type bucketIndex struct {
	buckets []domain.Bucket
	grain   domain.TimeGrain
}

func newBucketIndex(buckets []domain.Bucket, grain domain.TimeGrain) bucketIndex {
	return bucketIndex{buckets: buckets, grain: grain}
}

// find computes the index from civil dates, then confirms the bucket at that
// index really starts the period containing t.
func (ix bucketIndex) find(t time.Time) (int, bool) {
	if len(ix.buckets) == 0 {
		return 0, false
	}
	first := ix.buckets[0].Start
	t = t.In(first.Location())

	i := periodIndex(first, t, ix.grain)
	if i < 0 || i >= len(ix.buckets) {
		return 0, false
	}
	if !AlignToGrainStart(t, ix.grain).Equal(ix.buckets[i].Start) {
		return 0, false
	}
	return i, true
}
