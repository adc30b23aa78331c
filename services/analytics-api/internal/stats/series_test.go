package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDensify_FillsGapsAndMergesDuplicates(t *testing.T) {
	rows := []DailyRow{
		{Day: "2026-03-02", Orders: 2, RevenueCents: 500},
		{Day: "2026-03-02", Orders: 1, RevenueCents: 100},
		{Day: "2026-02-27", Orders: 9, RevenueCents: 900},
	}
	got := Densify(rows, []string{"2026-03-01", "2026-03-02", "2026-03-03"})
	assert.Equal(t, []DailyRow{
		{Day: "2026-03-01"},
		{Day: "2026-03-02", Orders: 3, RevenueCents: 600},
		{Day: "2026-03-03"},
	}, got)
}

func TestBucketKey_WeekStartsMonday(t *testing.T) {
	cases := map[string]string{
		"2026-03-09": "2026-03-09", // Monday
		"2026-03-12": "2026-03-09",
		"2026-03-15": "2026-03-09", // Sunday
		"2026-03-16": "2026-03-16",
		"2026-01-01": "2025-12-29",
	}
	for day, want := range cases {
		got, err := BucketKey(day, GroupWeek)
		require.NoError(t, err)
		assert.Equal(t, want, got, day)
	}
}

func TestGroup(t *testing.T) {
	rows := []DailyRow{
		{Day: "2026-02-27", Orders: 1, RevenueCents: 100},
		{Day: "2026-03-01", Orders: 2, RevenueCents: 200},
		{Day: "2026-03-02", Orders: 3, RevenueCents: 300},
	}

	month, err := Group(rows, GroupMonth)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{
		{Key: "2026-02", Orders: 1, RevenueCents: 100},
		{Key: "2026-03", Orders: 5, RevenueCents: 500},
	}, month)

	week, err := Group(rows, GroupWeek)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{
		{Key: "2026-02-23", Orders: 3, RevenueCents: 300},
		{Key: "2026-03-02", Orders: 3, RevenueCents: 300},
	}, week)

	day, err := Group(rows, GroupDay)
	require.NoError(t, err)
	assert.Len(t, day, 3)

	_, err = Group([]DailyRow{{Day: "bad"}}, GroupDay)
	assert.Error(t, err)
}

func TestNextKeys(t *testing.T) {
	keys, err := NextKeys("2026-12-30", GroupDay, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-12-31", "2027-01-01", "2027-01-02"}, keys)

	keys, err = NextKeys("2026-03-09", GroupWeek, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-16", "2026-03-23"}, keys)

	keys, err = NextKeys("2026-11", GroupMonth, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-12", "2027-01"}, keys)
}

func TestParseGrouping(t *testing.T) {
	g, err := ParseGrouping("")
	require.NoError(t, err)
	assert.Equal(t, GroupDay, g)

	_, err = ParseGrouping("quarter")
	assert.Error(t, err)
}

func TestMovingAverage(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	got := MovingAverage(values, 7)

	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 1.5, got[1])
	assert.Equal(t, 4.0, got[6]) // mean(1..7)
	assert.Equal(t, 5.0, got[7]) // mean(2..8)
	assert.Equal(t, 6.0, got[8])

	assert.Empty(t, MovingAverage(nil, 7))
	assert.Equal(t, []float64{2, 3}, MovingAverage([]float64{math.NaN(), 2, 4}, 7)[1:])
}

func TestPctChange(t *testing.T) {
	v, ok := PctChange(150, 100)
	assert.True(t, ok)
	assert.InDelta(t, 50, v, 1e-9)

	v, ok = PctChange(50, 100)
	assert.True(t, ok)
	assert.InDelta(t, -50, v, 1e-9)

	_, ok = PctChange(10, 0)
	assert.False(t, ok)
	_, ok = PctChange(math.NaN(), 10)
	assert.False(t, ok)

	assert.Nil(t, Pct(1, 0))
	require.NotNil(t, Pct(2, 3))
	assert.Equal(t, -33.33, *Pct(2, 3))
}
