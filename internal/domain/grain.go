package domain

import "strings"

// TimeGrain is the width of one report bucket.
type TimeGrain string

const (
	// GrainUnspecified lets the engine pick a grain from the data span.
	GrainUnspecified TimeGrain = ""
	GrainDay         TimeGrain = "day"
	GrainWeek        TimeGrain = "week"
	GrainMonth       TimeGrain = "month"
	GrainYear        TimeGrain = "year"
)

// Valid reports whether g is one of the four concrete grains.
func (g TimeGrain) Valid() bool {
	switch g {
	case GrainDay, GrainWeek, GrainMonth, GrainYear:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (g TimeGrain) String() string {
	if g == GrainUnspecified {
		return "auto"
	}
	return string(g)
}

// ParseTimeGrain accepts day/week/month/year (case-insensitive).
// An empty string or "auto" yields GrainUnspecified.
func ParseTimeGrain(s string) (TimeGrain, error) {
	switch g := TimeGrain(strings.ToLower(strings.TrimSpace(s))); g {
	case "", "auto":
		return GrainUnspecified, nil
	case GrainDay, GrainWeek, GrainMonth, GrainYear:
		return g, nil
	}
	return GrainUnspecified, &ErrValidation{Field: "grain", Message: "must be one of day, week, month, year"}
}
