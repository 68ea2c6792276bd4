package gmail

import (
	"fmt"
	"strings"
	"time"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// DefaultQuery is used when no filter contributes a predicate.
const DefaultQuery = "subject:(receipt OR order OR invoice OR payment)"

const gmailDateLayout = "2006/01/02"

// BuildQuery renders filter settings and a date range as a Gmail search query.
// A non-empty custom query is used verbatim in place of the other predicates.
// The date clause, if any, always comes last.
func BuildQuery(filter *api.EmailFilterSettings, r api.DateRange) string {
	parts := predicateClauses(filter)
	if len(parts) == 0 {
		parts = append(parts, DefaultQuery)
	}
	if !r.Start.IsZero() {
		parts = append(parts, "after:"+r.Start.Format(gmailDateLayout))
	}
	if !r.End.IsZero() {
		// before: is exclusive, the range end is not.
		parts = append(parts, "before:"+r.End.AddDate(0, 0, 1).Format(gmailDateLayout))
	}
	return strings.Join(parts, " ")
}

func predicateClauses(filter *api.EmailFilterSettings) []string {
	if filter == nil {
		return nil
	}
	if q := strings.TrimSpace(filter.CustomQuery); q != "" {
		return []string{q}
	}

	var parts []string
	if from := strings.TrimSpace(filter.SenderEmail); from != "" {
		parts = append(parts, "from:"+from)
	}
	if kw := SplitKeywords(filter.SubjectKeywords); len(kw) > 0 {
		parts = append(parts, "subject:("+strings.Join(kw, " OR ")+")")
	}
	if filter.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	if label := strings.TrimSpace(filter.Label); label != "" {
		parts = append(parts, "label:"+label)
	}
	return parts
}

// SplitKeywords splits a comma separated keyword list, trimming each entry
// and dropping empties.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Period names accepted by ParsePeriod.
const (
	PeriodToday    = "today"
	Period7Days    = "7days"
	Period14Days   = "14days"
	Period30Days   = "30days"
	PeriodLastWeek = "lastweek"
	PeriodAll      = "all"
)

// ParsePeriod turns a relative-period shorthand into a date range anchored at now.
func ParsePeriod(name string, now time.Time) (api.DateRange, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(strings.TrimSpace(name)) {
	case PeriodToday:
		return api.DateRange{Start: today}, nil
	case Period7Days:
		return api.DateRange{Start: today.AddDate(0, 0, -7)}, nil
	case Period14Days:
		return api.DateRange{Start: today.AddDate(0, 0, -14)}, nil
	case Period30Days:
		return api.DateRange{Start: today.AddDate(0, 0, -30)}, nil
	case PeriodLastWeek:
		// Between 14 and 7 days ago; End is inclusive so stop the day before.
		return api.DateRange{Start: today.AddDate(0, 0, -14), End: today.AddDate(0, 0, -8)}, nil
	case PeriodAll:
		return api.DateRange{}, nil
	default:
		return api.DateRange{}, fmt.Errorf("unknown period %q: %w", name, api.ErrValidation)
	}
}

// ParseRange parses an inclusive start and end given as YYYY-MM-DD or RFC 3339.
// Either side may be empty.
func ParseRange(start, end string) (api.DateRange, error) {
	var (
		r   api.DateRange
		err error
	)
	if r.Start, err = parseDate(start); err != nil {
		return api.DateRange{}, fmt.Errorf("startDate: %w", err)
	}
	if r.End, err = parseDate(end); err != nil {
		return api.DateRange{}, fmt.Errorf("endDate: %w", err)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return api.DateRange{}, fmt.Errorf("endDate is before startDate: %w", api.ErrValidation)
	}
	return r, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, api.ErrValidation)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
