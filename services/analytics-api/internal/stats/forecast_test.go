package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearFit(t *testing.T) {
	f := LinearFit([]float64{1, 3, 5, 7})
	assert.InDelta(t, 2, f.Slope, 1e-9)
	assert.InDelta(t, 1, f.Intercept, 1e-9)

	assert.Equal(t, Fit{Intercept: 4}, LinearFit([]float64{4}))
	assert.Equal(t, Fit{}, LinearFit(nil))
}

func TestForecast_UsesTrailingLookback(t *testing.T) {
	// A flat prefix followed by a clean ramp; only the ramp is in the
	// 14-point lookback.
	values := make([]float64, 0, 20)
	for i := 0; i < 6; i++ {
		values = append(values, 1000)
	}
	for i := 0; i < 14; i++ {
		values = append(values, float64(10*i))
	}

	got := Forecast(values, ForecastLookback, ForecastHorizon)
	assert.Equal(t, []float64{140, 150, 160, 170, 180, 190, 200}, got)
}

func TestForecast_FloorsAtZero(t *testing.T) {
	got := Forecast([]float64{30, 20, 10}, ForecastLookback, 3)
	assert.Equal(t, []float64{0, 0, 0}, got)
}

func TestForecast_Degenerate(t *testing.T) {
	assert.Equal(t, []float64{5, 5}, Forecast([]float64{5}, 14, 2))
	assert.Equal(t, []float64{0, 0}, Forecast(nil, 14, 2))
	assert.Empty(t, Forecast([]float64{1, 2}, 14, 0))
}
