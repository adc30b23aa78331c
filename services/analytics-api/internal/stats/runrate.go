package stats

// RunRateHorizons are the projection lengths in days.
var RunRateHorizons = []int{30, 90, 180, 365}

const maxTrendPct = 50

type Projection struct {
	Days         int   `json:"days"`
	RevenueCents int64 `json:"revenue_cents"`
}

// RunRate extrapolates totalCents observed over elapsedDays to each
// horizon, scaled by (1 + trend/100) with trend clamped to ±50%.
func RunRate(totalCents int64, elapsedDays int, trendPct float64) []Projection {
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	if !finite(trendPct) {
		trendPct = 0
	}
	if trendPct > maxTrendPct {
		trendPct = maxTrendPct
	}
	if trendPct < -maxTrendPct {
		trendPct = -maxTrendPct
	}
	daily := float64(totalCents) / float64(elapsedDays)
	factor := 1 + trendPct/100

	out := make([]Projection, 0, len(RunRateHorizons))
	for _, d := range RunRateHorizons {
		out = append(out, Projection{
			Days:         d,
			RevenueCents: int64(Round(daily*float64(d)*factor, 0)),
		})
	}
	return out
}
