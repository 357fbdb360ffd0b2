package routing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_Adjustments(t *testing.T) {
	var s Scorer

	tests := []struct {
		name      string
		query     string
		intent    string
		qc        QueryContext
		workspace bool
		want      float64
	}{
		{
			name:   "common short architecture question saturates",
			query:  "Which is better, REST API or GraphQL?",
			intent: IntentArchitectureDecision,
			want:   1.0,
		},
		{
			name:  "neutral medium query",
			query: "Explain dependency injection in plain words for a new teammate on the team",
			want:  0.6,
		},
		{
			name:  "many technologies lower confidence",
			query: "Explain dependency injection in plain words for a new teammate on the team",
			qc:    QueryContext{Technologies: []string{"go", "redis", "kafka", "postgres", "react", "docker"}},
			want:  0.35,
		},
		{
			name:      "workspace context lowers confidence",
			query:     "Explain dependency injection in plain words for a new teammate on the team",
			workspace: true,
			want:      0.4,
		},
		{
			name:  "file references lower confidence",
			query: "Explain dependency injection in plain words for a new teammate on the team",
			qc:    QueryContext{FileReferences: []string{"main.go"}},
			want:  0.45,
		},
		{
			name:   "code review intent lowers confidence",
			query:  "Explain dependency injection in plain words for a new teammate on the team",
			intent: IntentCodeReview,
			want:   0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Calculate(tt.query, tt.intent, tt.qc, tt.workspace)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScorer_AlwaysWithinUnitInterval(t *testing.T) {
	var s Scorer
	queries := []string{
		"",
		"Should I use a monolith?",
		"In our case our custom legacy stack is unique to us but we run it and fail because of v1.2 vs v2.0 in handler.go ```func main()```",
	}
	intents := []string{"", IntentArchitectureDecision, IntentDebuggingHelp, "made_up"}
	techSets := [][]string{nil, {"go"}, {"a", "b", "c", "d", "e", "f", "g"}}

	for _, q := range queries {
		for _, intent := range intents {
			for _, techs := range techSets {
				for _, ws := range []bool{false, true} {
					t.Run(fmt.Sprintf("%q/%s/%d/%t", q, intent, len(techs), ws), func(t *testing.T) {
						got := s.Calculate(q, intent, QueryContext{Technologies: techs, FileReferences: techs}, ws)
						assert.GreaterOrEqual(t, got, 0.0)
						assert.LessOrEqual(t, got, 1.0)
					})
				}
			}
		}
	}
}

func TestOptimizer_OptimizeThreshold(t *testing.T) {
	o := DefaultOptimizer()

	feedback := func(d Decision, ok, fail int) []Feedback {
		var fb []Feedback
		for range ok {
			fb = append(fb, Feedback{Decision: d, Success: true})
		}
		for range fail {
			fb = append(fb, Feedback{Decision: d, Success: false})
		}
		return fb
	}

	t.Run("too few static samples leaves threshold", func(t *testing.T) {
		assert.InDelta(t, 0.7, o.OptimizeThreshold(0.7, feedback(Static, 2, 7)), 1e-9)
	})
	t.Run("poor static success raises threshold", func(t *testing.T) {
		assert.InDelta(t, 0.75, o.OptimizeThreshold(0.7, feedback(Static, 5, 5)), 1e-9)
	})
	t.Run("raise is capped", func(t *testing.T) {
		assert.InDelta(t, 0.9, o.OptimizeThreshold(0.88, feedback(Static, 0, 10)), 1e-9)
	})
	t.Run("strong static and dynamic lowers threshold", func(t *testing.T) {
		fb := append(feedback(Static, 10, 0), feedback(Hybrid, 5, 0)...)
		fb = append(fb, feedback(Dynamic, 5, 0)...)
		assert.InDelta(t, 0.65, o.OptimizeThreshold(0.7, fb), 1e-9)
	})
	t.Run("lowering stops at floor", func(t *testing.T) {
		fb := append(feedback(Static, 10, 0), feedback(Dynamic, 10, 0)...)
		assert.InDelta(t, 0.6, o.OptimizeThreshold(0.62, fb), 1e-9)
	})
	t.Run("strong static with few dynamic samples holds", func(t *testing.T) {
		fb := append(feedback(Static, 10, 0), feedback(Dynamic, 3, 0)...)
		assert.InDelta(t, 0.7, o.OptimizeThreshold(0.7, fb), 1e-9)
	})
}
