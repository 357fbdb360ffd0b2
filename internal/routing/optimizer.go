package routing

import "math"

// Feedback is the observed outcome of one routed response.
type Feedback struct {
	Decision Decision
	Success  bool
}

// Optimizer tunes the router threshold from historical outcomes.
type Optimizer struct {
	MinSamples int
	Step       float64
	Ceiling    float64
	Floor      float64
}

// DefaultOptimizer returns the standard tuning policy: 10 samples minimum,
// 0.05 steps, threshold kept within [0.6, 0.9].
func DefaultOptimizer() Optimizer {
	return Optimizer{MinSamples: 10, Step: 0.05, Ceiling: 0.9, Floor: 0.6}
}

// OptimizeThreshold returns the tuned threshold. When static answers fail
// too often the threshold rises; when both static and generated answers are
// doing well it drops so more queries take the fast path.
func (o Optimizer) OptimizeThreshold(current float64, feedback []Feedback) float64 {
	var staticTotal, staticOK, dynamicTotal, dynamicOK int
	for _, f := range feedback {
		switch f.Decision {
		case Static:
			staticTotal++
			if f.Success {
				staticOK++
			}
		case Dynamic, Hybrid:
			dynamicTotal++
			if f.Success {
				dynamicOK++
			}
		}
	}

	if staticTotal < o.MinSamples {
		return current
	}
	staticRate := float64(staticOK) / float64(staticTotal)

	if staticRate < 0.7 {
		return round2(math.Min(current+o.Step, o.Ceiling))
	}
	if staticRate > 0.9 && dynamicTotal >= o.MinSamples {
		dynamicRate := float64(dynamicOK) / float64(dynamicTotal)
		if dynamicRate > 0.8 {
			return round2(math.Max(current-o.Step, o.Floor))
		}
	}
	return current
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
