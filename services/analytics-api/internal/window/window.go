// Package window resolves reporting windows expressed in a store's local
// calendar into UTC instants suitable for range queries.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	MaxOffsetMinutes = 14 * 60
	MaxDays          = 731

	DefaultPreset = "30d"
)

var ErrInvalidWindow = errors.New("invalid window")

// Window covers the local dates From..To inclusive. Start and End are the
// matching UTC instants; End is exclusive.
type Window struct {
	From   time.Time `json:"-"`
	To     time.Time `json:"-"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Offset int       `json:"tz_offset_minutes"`
	Days   int       `json:"days"`
}

// Params are the raw query values a window is resolved from. Range is
// ignored when both From and To are set.
type Params struct {
	Range  string
	From   string
	To     string
	Offset int
}

func Resolve(p Params, now time.Time) (Window, error) {
	if p.Offset < -MaxOffsetMinutes || p.Offset > MaxOffsetMinutes {
		return Window{}, fmt.Errorf("%w: tz offset %d out of range", ErrInvalidWindow, p.Offset)
	}
	loc := zone(p.Offset)
	today := midnight(now.In(loc))

	var from, to time.Time
	switch {
	case p.From != "" || p.To != "":
		if p.From == "" || p.To == "" {
			return Window{}, fmt.Errorf("%w: from and to must be set together", ErrInvalidWindow)
		}
		var err error
		if from, err = time.ParseInLocation(DateLayout, p.From, loc); err != nil {
			return Window{}, fmt.Errorf("%w: from: %v", ErrInvalidWindow, err)
		}
		if to, err = time.ParseInLocation(DateLayout, p.To, loc); err != nil {
			return Window{}, fmt.Errorf("%w: to: %v", ErrInvalidWindow, err)
		}
		if from.After(to) {
			return Window{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidWindow, p.From, p.To)
		}
	default:
		var err error
		if from, err = presetStart(p.Range, today); err != nil {
			return Window{}, err
		}
		to = today
	}

	days := daysBetween(from, to) + 1
	if days > MaxDays {
		return Window{}, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidWindow, days, MaxDays)
	}
	return Window{
		From:   from,
		To:     to,
		Start:  from.UTC(),
		End:    to.AddDate(0, 0, 1).UTC(),
		Offset: p.Offset,
		Days:   days,
	}, nil
}

func presetStart(preset string, today time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", DefaultPreset:
		return today.AddDate(0, 0, -29), nil
	case "today":
		return today, nil
	case "7d":
		return today.AddDate(0, 0, -6), nil
	case "90d":
		return today.AddDate(0, 0, -89), nil
	case "180d":
		return today.AddDate(0, 0, -179), nil
	case "365d":
		return today.AddDate(0, 0, -364), nil
	case "mtd":
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()), nil
	case "ytd":
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown range %q", ErrInvalidWindow, preset)
	}
}

// Previous is the window of equal length ending where w starts.
func (w Window) Previous() Window {
	from := w.From.AddDate(0, 0, -w.Days)
	to := w.From.AddDate(0, 0, -1)
	return Window{
		From:   from,
		To:     to,
		Start:  from.UTC(),
		End:    w.Start,
		Offset: w.Offset,
		Days:   w.Days,
	}
}

// LocalDay returns the local calendar date of t as YYYY-MM-DD.
func (w Window) LocalDay(t time.Time) string {
	return t.In(zone(w.Offset)).Format(DateLayout)
}

// DayKeys lists every local date in the window in order.
func (w Window) DayKeys() []string {
	keys := make([]string, 0, w.Days)
	for d := w.From; !d.After(w.To); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(DateLayout))
	}
	return keys
}

// Elapsed is the number of local days of the window that have started by
// now, at least 1 and at most Days.
func (w Window) Elapsed(now time.Time) int {
	if !now.Before(w.End) {
		return w.Days
	}
	n := daysBetween(w.From, midnight(now.In(zone(w.Offset)))) + 1
	if n < 1 {
		return 1
	}
	return n
}

func (w Window) FromKey() string { return w.From.Format(DateLayout) }
func (w Window) ToKey() string   { return w.To.Format(DateLayout) }

// Interval renders the offset the way Postgres accepts in
// "ts + $n::interval".
func (w Window) Interval() string {
	return fmt.Sprintf("%d minutes", w.Offset)
}

func zone(offsetMinutes int) *time.Location {
	if offsetMinutes == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+dm", offsetMinutes), offsetMinutes*60)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days; fixed zones have no DST so 24h steps
// are exact.
func daysBetween(a, b time.Time) int {
	return int(midnight(b).Sub(midnight(a)).Hours() / 24)
}
