package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
)

// DefaultPeriod is used when a request names no period.
const DefaultPeriod = "30d"

const dateLayout = "2006-01-02"

// periodSpec is a resolved reporting period. A nil window means the whole history.
type periodSpec struct {
	Name   string
	Label  string
	Grain  domain.TimeGrain
	Window *aggregation.Window

	// previous is the window of equal length right before Window.
	previous *aggregation.Window
}

// Days returns the number of calendar days the window covers.
func (p periodSpec) Days() int {
	if p.Window == nil {
		return 0
	}
	return int(p.Window.To.Sub(p.Window.From).Round(24*time.Hour) / (24 * time.Hour))
}

// resolvePeriod turns a period name into concrete windows around ref.
// ref is read in loc; the window always ends with ref's day included.
func resolvePeriod(period string, ref time.Time, loc *time.Location) (periodSpec, error) {
	ref = ref.In(loc)
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)

	name := strings.ToLower(strings.TrimSpace(period))
	if name == "" {
		name = DefaultPeriod
	}

	switch name {
	case "7d":
		return trailingDays(name, "Últimos 7 dias", refDay, 7), nil
	case "30d", "1month":
		return trailingDays("30d", "Últimos 30 dias", refDay, 30), nil
	case "90d", "3months":
		return trailingDays("90d", "Últimos 3 meses", refDay, 90), nil
	case "6months", "6m":
		return trailingMonths("6months", "Últimos 6 meses", monthStart, 6), nil
	case "12m", "1year", "12months":
		return trailingMonths("12m", "Últimos 12 meses", monthStart, 12), nil
	case "ytd":
		from := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
		to := refDay.AddDate(0, 0, 1)
		return periodSpec{
			Name:     name,
			Label:    "Ano atual",
			Window:   &aggregation.Window{From: from, To: to},
			previous: &aggregation.Window{From: from.AddDate(-1, 0, 0), To: to.AddDate(-1, 0, 0)},
		}, nil
	case "all":
		return periodSpec{Name: name, Label: "Todo o período"}, nil
	}

	return periodSpec{}, &domain.ErrValidation{
		Field:   "period",
		Message: fmt.Sprintf("unknown period %q: use 7d, 30d, 90d, 6months, 12m, ytd or all", period),
	}
}

func trailingDays(name, label string, refDay time.Time, days int) periodSpec {
	to := refDay.AddDate(0, 0, 1)
	from := refDay.AddDate(0, 0, -(days - 1))
	return periodSpec{
		Name:     name,
		Label:    label,
		Window:   &aggregation.Window{From: from, To: to},
		previous: &aggregation.Window{From: from.AddDate(0, 0, -days), To: from},
	}
}

func trailingMonths(name, label string, monthStart time.Time, months int) periodSpec {
	to := monthStart.AddDate(0, 1, 0)
	from := monthStart.AddDate(0, -(months - 1), 0)
	return periodSpec{
		Name:     name,
		Label:    label,
		Grain:    domain.GrainMonth,
		Window:   &aggregation.Window{From: from, To: to},
		previous: &aggregation.Window{From: from.AddDate(0, -months, 0), To: from},
	}
}

// storeRange converts a window into the YYYY-MM-DD bounds of the store
// ports. Stores compare in UTC, so the range is widened to whole UTC days;
// the engine trims the excess.
func storeRange(w *aggregation.Window) (from, to string) {
	if w == nil {
		return "", ""
	}
	lo := w.From.UTC()
	hi := w.To.UTC()
	hiDay := time.Date(hi.Year(), hi.Month(), hi.Day(), 0, 0, 0, 0, time.UTC)
	if hi.After(hiDay) {
		hiDay = hiDay.AddDate(0, 0, 1)
	}
	return lo.Format(dateLayout), hiDay.Format(dateLayout)
}

// ParseReferenceDate reads a YYYY-MM-DD reference day in loc.
func ParseReferenceDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "ref", Message: "must be a date in YYYY-MM-DD format"}
	}
	return t, nil
}
