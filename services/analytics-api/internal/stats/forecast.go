package stats

const (
	ForecastLookback = 14
	ForecastHorizon  = 7
)

// Fit is an ordinary least squares line y = Intercept + Slope*x.
type Fit struct {
	Slope     float64
	Intercept float64
}

func LinearFit(ys []float64) Fit {
	n := float64(len(ys))
	switch len(ys) {
	case 0:
		return Fit{}
	case 1:
		return Fit{Intercept: ys[0]}
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return Fit{Intercept: sy / n}
	}
	slope := (n*sxy - sx*sy) / den
	return Fit{Slope: slope, Intercept: (sy - slope*sx) / n}
}

func (f Fit) At(x float64) float64 { return f.Intercept + f.Slope*x }

// Forecast fits the trailing lookback values and extrapolates horizon
// steps. Predictions are floored at zero since neither orders nor revenue
// go negative.
func Forecast(values []float64, lookback, horizon int) []float64 {
	if horizon <= 0 {
		return []float64{}
	}
	tail := finiteCopy(values)
	if lookback > 0 && len(tail) > lookback {
		tail = tail[len(tail)-lookback:]
	}
	fit := LinearFit(tail)
	out := make([]float64, horizon)
	for i := range out {
		y := fit.At(float64(len(tail) + i))
		if y < 0 {
			y = 0
		}
		out[i] = Round(y, 2)
	}
	return out
}
