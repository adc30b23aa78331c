package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 22, 30, 0, 0, time.UTC)

func TestResolve_ExplicitRangeIsInclusive(t *testing.T) {
	w, err := Resolve(Params{From: "2026-03-01", To: "2026-03-07"}, now)
	require.NoError(t, err)

	assert.Equal(t, 7, w.Days)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), w.End)
	assert.Equal(t, []string{
		"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04",
		"2026-03-05", "2026-03-06", "2026-03-07",
	}, w.DayKeys())
}

func TestResolve_OffsetShiftsUTCBounds(t *testing.T) {
	// UTC+05:30: local midnight is 18:30 UTC the day before.
	w, err := Resolve(Params{From: "2026-03-01", To: "2026-03-01", Offset: 330}, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 2, 28, 18, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC), w.End)
	assert.Equal(t, "330 minutes", w.Interval())
}

func TestResolve_PresetsEndOnLocalToday(t *testing.T) {
	// 22:30 UTC is already the 16th at UTC+2.
	w, err := Resolve(Params{Range: "7d", Offset: 120}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", w.FromKey())
	assert.Equal(t, "2026-03-16", w.ToKey())
	assert.Equal(t, 7, w.Days)

	w, err = Resolve(Params{}, now)
	require.NoError(t, err)
	assert.Equal(t, 30, w.Days)
	assert.Equal(t, "2026-03-15", w.ToKey())

	w, err = Resolve(Params{Range: "mtd"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", w.FromKey())

	w, err = Resolve(Params{Range: "ytd"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", w.FromKey())
	assert.Equal(t, 74, w.Days)

	w, err = Resolve(Params{Range: "today"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Days)
}

func TestResolve_Errors(t *testing.T) {
	cases := map[string]Params{
		"from after to":    {From: "2026-03-05", To: "2026-03-01"},
		"half range":       {From: "2026-03-05"},
		"bad date":         {From: "2026-13-01", To: "2026-13-02"},
		"offset too large": {Range: "7d", Offset: 900},
		"unknown preset":   {Range: "fortnight"},
		"too long":         {From: "2020-01-01", To: "2026-01-01"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(p, now)
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestPrevious_IsAdjacentAndEqualLength(t *testing.T) {
	w, err := Resolve(Params{From: "2026-03-08", To: "2026-03-14", Offset: -300}, now)
	require.NoError(t, err)

	prev := w.Previous()
	assert.Equal(t, "2026-03-01", prev.FromKey())
	assert.Equal(t, "2026-03-07", prev.ToKey())
	assert.Equal(t, w.Start, prev.End)
	assert.Equal(t, w.Days, prev.Days)
	assert.Len(t, prev.DayKeys(), 7)
}

func TestLocalDay(t *testing.T) {
	w := Window{Offset: -300}
	assert.Equal(t, "2026-03-14", w.LocalDay(time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-15", w.LocalDay(time.Date(2026, 3, 15, 5, 0, 0, 0, time.UTC)))
}

func TestElapsed(t *testing.T) {
	w, err := Resolve(Params{Range: "mtd"}, now)
	require.NoError(t, err)
	assert.Equal(t, 15, w.Elapsed(now))

	past, err := Resolve(Params{From: "2026-02-01", To: "2026-02-28"}, now)
	require.NoError(t, err)
	assert.Equal(t, 28, past.Elapsed(now))

	future, err := Resolve(Params{From: "2026-04-01", To: "2026-04-10"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, future.Elapsed(now))
}
