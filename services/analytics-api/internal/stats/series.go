// Package stats holds the pure arithmetic behind the analytics dashboard:
// bucketing, moving averages, period change, anomaly detection, forecasts
// and run-rate projections. Nothing here does I/O.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type Grouping string

const (
	GroupDay   Grouping = "day"
	GroupWeek  Grouping = "week"
	GroupMonth Grouping = "month"
)

func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case "", GroupDay:
		return GroupDay, nil
	case GroupWeek, GroupMonth:
		return Grouping(s), nil
	}
	return "", fmt.Errorf("unknown grouping %q", s)
}

// DailyRow is one local calendar day of order activity.
type DailyRow struct {
	Day          string `json:"day"`
	Orders       int64  `json:"orders"`
	RevenueCents int64  `json:"revenue_paid_cents"`
}

// Bucket is a DailyRow summed over a day, ISO week or month.
type Bucket struct {
	Key          string `json:"bucket"`
	Orders       int64  `json:"orders"`
	RevenueCents int64  `json:"revenue_paid_cents"`
}

const dayLayout = "2006-01-02"

// Densify returns one row per key in days, zero-filled where rows has none.
// Rows whose day is not in days are dropped.
func Densify(rows []DailyRow, days []string) []DailyRow {
	byDay := make(map[string]DailyRow, len(rows))
	for _, r := range rows {
		cur := byDay[r.Day]
		cur.Orders += r.Orders
		cur.RevenueCents += r.RevenueCents
		byDay[r.Day] = cur
	}
	out := make([]DailyRow, 0, len(days))
	for _, d := range days {
		r := byDay[d]
		r.Day = d
		out = append(out, r)
	}
	return out
}

// BucketKey maps a YYYY-MM-DD day to its bucket key. Weeks start on Monday
// and are keyed by that Monday's date.
func BucketKey(day string, g Grouping) (string, error) {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return "", err
	}
	switch g {
	case GroupWeek:
		shift := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -shift).Format(dayLayout), nil
	case GroupMonth:
		return t.Format("2006-01"), nil
	default:
		return t.Format(dayLayout), nil
	}
}

// Group sums rows into buckets sorted by key.
func Group(rows []DailyRow, g Grouping) ([]Bucket, error) {
	idx := make(map[string]int)
	var out []Bucket
	for _, r := range rows {
		key, err := BucketKey(r.Day, g)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", r.Day, err)
		}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, Bucket{Key: key})
		}
		out[i].Orders += r.Orders
		out[i].RevenueCents += r.RevenueCents
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// NextKeys returns the n bucket keys following last.
func NextKeys(last string, g Grouping, n int) ([]string, error) {
	var t time.Time
	var err error
	if g == GroupMonth {
		t, err = time.Parse("2006-01", last)
	} else {
		t, err = time.Parse(dayLayout, last)
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		switch g {
		case GroupWeek:
			keys = append(keys, t.AddDate(0, 0, 7*i).Format(dayLayout))
		case GroupMonth:
			keys = append(keys, t.AddDate(0, i, 0).Format("2006-01"))
		default:
			keys = append(keys, t.AddDate(0, 0, i).Format(dayLayout))
		}
	}
	return keys, nil
}

func OrdersOf(b []Bucket) []float64 {
	out := make([]float64, len(b))
	for i := range b {
		out[i] = float64(b[i].Orders)
	}
	return out
}

func RevenueOf(b []Bucket) []float64 {
	out := make([]float64, len(b))
	for i := range b {
		out[i] = float64(b[i].RevenueCents)
	}
	return out
}

// MovingAverage is the trailing mean over window values. Leading positions
// average whatever is available; non-finite values are skipped.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		var n int
		for _, v := range values[lo : i+1] {
			if finite(v) {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// PctChange is (last/prev - 1) * 100. ok is false when prev is zero or
// either side is not finite.
func PctChange(last, prev float64) (pct float64, ok bool) {
	if prev == 0 || !finite(prev) || !finite(last) {
		return 0, false
	}
	return (last/prev - 1) * 100, true
}

// Pct wraps PctChange for JSON, where an undefined change is null.
func Pct(last, prev float64) *float64 {
	v, ok := PctChange(last, prev)
	if !ok {
		return nil
	}
	v = Round(v, 2)
	return &v
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
