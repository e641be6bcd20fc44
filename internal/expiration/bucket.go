// Package expiration groups option expiration dates into calendar weeks and
// resolves a requested expiration against them.
package expiration

import (
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/covered_call/internal/models"
)

// DateLayout is the ISO 8601 calendar-date format used on the wire.
const DateLayout = "2006-01-02"

// DefaultBucketLimit is the number of weeks kept when no limit is given.
const DefaultBucketLimit = 5

// basicDateLayout is the ISO 8601 basic calendar-date format.
const basicDateLayout = "20060102"

var dateLayouts = []string{DateLayout, basicDateLayout}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"20060102T150405Z0700",
	"20060102T150405",
}

// ParseDate parses an ISO 8601 date or date-time, extended or basic format, and returns its calendar date
// as midnight UTC. Date-times carrying an offset are first converted to loc so
// the calendar date is the exchange-local one.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	for _, layout := range dateTimeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, models.NewError(models.KindMalformedDate, raw)
}

type weekKey struct {
	year, week int
}

// Bucket parses raw ISO dates and groups them by ISO week. Buckets are ordered by
// their earliest date and at most limit are returned (DefaultBucketLimit when
// limit <= 0). Any unparsable string fails the whole call.
func Bucket(raw []string, limit int, loc *time.Location) ([][]time.Time, error) {
	if limit <= 0 {
		limit = DefaultBucketLimit
	}

	dates := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		d, err := ParseDate(r, loc)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}

	weeks := make(map[weekKey][]time.Time)
	for _, d := range dates {
		y, w := d.ISOWeek()
		k := weekKey{y, w}
		weeks[k] = append(weeks[k], d)
	}

	buckets := make([][]time.Time, 0, len(weeks))
	for _, b := range weeks {
		sort.SliceStable(b, func(i, j int) bool { return b[i].Before(b[j]) })
		buckets = append(buckets, b)
	}
	// Every bucket is non-empty and sorted, so b[0] is its earliest date.
	sort.Slice(buckets, func(i, j int) bool { return buckets[i][0].Before(buckets[j][0]) })

	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets, nil
}

// Flatten returns the bucketed dates as one chronological slice.
func Flatten(buckets [][]time.Time) []time.Time {
	var out []time.Time
	for _, b := range buckets {
		out = append(out, b...)
	}
	return out
}

// Format renders dates as ISO calendar dates.
func Format(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(DateLayout)
	}
	return out
}
