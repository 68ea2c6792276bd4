package gmail

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter *api.EmailFilterSettings
		rng    api.DateRange
		want   string
	}{
		{
			name: "no filter uses default",
			want: DefaultQuery,
		},
		{
			name:   "empty filter uses default",
			filter: &api.EmailFilterSettings{SubjectKeywords: " , ,"},
			want:   DefaultQuery,
		},
		{
			name: "all predicates",
			filter: &api.EmailFilterSettings{
				SenderEmail:     "billing@shop.com",
				SubjectKeywords: "receipt, invoice ,,order",
				HasAttachment:   true,
				Label:           "Receipts",
			},
			want: "from:billing@shop.com subject:(receipt OR invoice OR order) has:attachment label:Receipts",
		},
		{
			name: "custom query wins",
			filter: &api.EmailFilterSettings{
				SenderEmail: "ignored@shop.com",
				CustomQuery: "  from:uber.com is:unread ",
			},
			want: "from:uber.com is:unread",
		},
		{
			name:   "date range appended last",
			filter: &api.EmailFilterSettings{Label: "Bills"},
			rng:    api.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
			want:   "label:Bills after:2024/01/01 before:2024/02/01",
		},
		{
			name: "default with start only",
			rng:  api.DateRange{Start: day(2023, 12, 25)},
			want: DefaultQuery + " after:2023/12/25",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildQuery(tc.filter, tc.rng); got != tc.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildQuery_Properties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("sender predicate present and default absent", prop.ForAll(
		func(sender string, keywords []string) bool {
			q := BuildQuery(&api.EmailFilterSettings{
				SenderEmail:     sender,
				SubjectKeywords: strings.Join(keywords, ","),
			}, api.DateRange{})
			return strings.HasPrefix(q, "from:"+sender) && !strings.Contains(q, DefaultQuery)
		},
		gen.Identifier(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("custom query is used verbatim", prop.ForAll(
		func(custom, sender string) bool {
			q := BuildQuery(&api.EmailFilterSettings{CustomQuery: custom, SenderEmail: sender}, api.DateRange{})
			return q == custom
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("date clause is always last", prop.ForAll(
		func(offset int, label string) bool {
			start := day(2024, 1, 1).AddDate(0, 0, offset)
			q := BuildQuery(&api.EmailFilterSettings{Label: label}, api.DateRange{Start: start})
			return strings.HasSuffix(q, "after:"+start.Format(gmailDateLayout))
		},
		gen.IntRange(0, 3650),
		gen.Identifier(),
	))

	properties.Property("keyword count matches OR count", prop.ForAll(
		func(keywords []string) bool {
			q := BuildQuery(&api.EmailFilterSettings{SubjectKeywords: strings.Join(keywords, ",")}, api.DateRange{})
			if len(keywords) == 0 {
				return q == DefaultQuery
			}
			return strings.Count(q, " OR ") == len(keywords)-1
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name      string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{name: "today", wantStart: day(2024, 6, 15)},
		{name: "7days", wantStart: day(2024, 6, 8)},
		{name: "14days", wantStart: day(2024, 6, 1)},
		{name: "30days", wantStart: day(2024, 5, 16)},
		{name: "lastweek", wantStart: day(2024, 6, 1), wantEnd: day(2024, 6, 7)},
		{name: "all"},
		{name: "yesterday", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ParsePeriod(tc.name, now)
			if tc.wantErr {
				if !errors.Is(err, api.ErrValidation) {
					t.Errorf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePeriod: %v", err)
			}
			if !r.Start.Equal(tc.wantStart) || !r.End.Equal(tc.wantEnd) {
				t.Errorf("got [%v, %v], want [%v, %v]", r.Start, r.End, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestParsePeriod_LastWeekQuery(t *testing.T) {
	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	r, err := ParsePeriod(PeriodLastWeek, now)
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	got := BuildQuery(nil, r)
	want := DefaultQuery + " after:2024/06/01 before:2024/06/08"
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantStart  time.Time
		wantEnd    time.Time
		wantErr    bool
	}{
		{name: "dates", start: "2024-01-01", end: "2024-01-31", wantStart: day(2024, 1, 1), wantEnd: day(2024, 1, 31)},
		{name: "rfc3339", start: "2024-02-03T10:00:00Z", end: "2024-02-04T23:59:59Z", wantStart: day(2024, 2, 3), wantEnd: day(2024, 2, 4)},
		{name: "open ended", start: "2024-01-01", wantStart: day(2024, 1, 1)},
		{name: "garbage", start: "last tuesday", wantErr: true},
		{name: "reversed", start: "2024-02-01", end: "2024-01-01", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ParseRange(tc.start, tc.end)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !errors.Is(err, api.ErrValidation) {
					t.Errorf("error = %v, want ErrValidation", err)
				}
				return
			}
			if !r.Start.Equal(tc.wantStart) || !r.End.Equal(tc.wantEnd) {
				t.Errorf("got [%v, %v], want [%v, %v]", r.Start, r.End, tc.wantStart, tc.wantEnd)
			}
		})
	}
}
