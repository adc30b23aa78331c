package stats

import (
	"math"
	"sort"
)

// MADScale makes the median absolute deviation comparable to a standard
// deviation under normality (Iglewicz and Hoaglin).
const MADScale = 0.6745

const DefaultAnomalyLimit = 5

type Anomaly struct {
	Key   string  `json:"bucket"`
	Value float64 `json:"value"`
	Z     float64 `json:"z"`
}

func Median(values []float64) float64 {
	vs := finiteCopy(values)
	if len(vs) == 0 {
		return 0
	}
	sort.Float64s(vs)
	mid := len(vs) / 2
	if len(vs)%2 == 1 {
		return vs[mid]
	}
	return (vs[mid-1] + vs[mid]) / 2
}

// MAD is the median absolute deviation from the median.
func MAD(values []float64) float64 {
	med := Median(values)
	dev := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			dev = append(dev, math.Abs(v-med))
		}
	}
	return Median(dev)
}

// Anomalies scores each value with the modified z-score
// 0.6745 * (v - median) / mad and returns those with |z| >= minAbsZ, the
// largest |z| first, at most limit. A zero MAD yields nothing.
func Anomalies(keys []string, values []float64, minAbsZ float64, limit int) []Anomaly {
	if len(keys) != len(values) || len(values) == 0 {
		return []Anomaly{}
	}
	med := Median(values)
	mad := MAD(values)
	if mad == 0 || !finite(mad) {
		return []Anomaly{}
	}
	out := make([]Anomaly, 0)
	for i, v := range values {
		if !finite(v) {
			continue
		}
		z := MADScale * (v - med) / mad
		if math.Abs(z) < minAbsZ {
			continue
		}
		out = append(out, Anomaly{Key: keys[i], Value: v, Z: Round(z, 3)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Z), math.Abs(out[j].Z)
		if ai != aj {
			return ai > aj
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func finiteCopy(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}
