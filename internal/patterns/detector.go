// Package patterns is a small keyword detector for common engineering
// anti-patterns. It stands in for a full rule engine and is deliberately
// simple: each pattern fires when enough of its indicators appear.
package patterns

import (
	"slices"
	"strings"
)

// Match is one detected anti-pattern.
type Match struct {
	Pattern    string   `json:"pattern"`
	Title      string   `json:"title"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Advice     string   `json:"advice"`
}

// Rule describes one anti-pattern.
type Rule struct {
	Name       string
	Title      string
	Indicators []string
	Advice     string
	// MinHits is the number of distinct indicators needed to report a match.
	MinHits int
}

// DefaultRules returns the built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "infrastructure_without_implementation",
			Title: "Building infrastructure before trying the standard approach",
			Indicators: []string{
				"custom client", "our own", "from scratch", "wrapper around", "custom http",
				"roll our own", "build a custom", "instead of the sdk", "custom sdk",
			},
			Advice:  "Try the official SDK or a documented API call first and only add layers once it demonstrably falls short.",
			MinHits: 1,
		},
		{
			Name:  "symptom_driven_development",
			Title: "Treating symptoms instead of root causes",
			Indicators: []string{
				"workaround", "hack", "temporary fix", "quick fix", "band-aid",
				"retry until", "just catch", "suppress the error", "ignore the error",
			},
			Advice:  "Reproduce the failure in isolation and fix the cause before adding retries or suppression.",
			MinHits: 1,
		},
		{
			Name:  "complexity_escalation",
			Title: "Complexity growing faster than the problem",
			Indicators: []string{
				"abstraction layer", "generic framework", "plugin system", "microservice",
				"event bus", "future proof", "extensible", "orchestration layer",
			},
			Advice:  "Solve today's requirement directly and refactor when a second real use case appears.",
			MinHits: 2,
		},
		{
			Name:  "documentation_neglect",
			Title: "Skipping the documentation",
			Indicators: []string{
				"no docs", "undocumented", "didn't read", "without reading", "reverse engineer",
				"figure it out", "trial and error",
			},
			Advice:  "Read the official documentation and examples for the dependency before designing around it.",
			MinHits: 1,
		},
	}
}

// Detector matches text against rules. The zero value uses DefaultRules.
type Detector struct {
	Rules []Rule
}

// NewDetector returns a detector with the built-in rules.
func NewDetector() *Detector {
	return &Detector{Rules: DefaultRules()}
}

// Detect returns the rules that fire on text, most confident first.
func (d *Detector) Detect(text string) []Match {
	rules := d.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	lower := strings.ToLower(text)

	var out []Match
	for _, r := range rules {
		var evidence []string
		for _, ind := range r.Indicators {
			if strings.Contains(lower, ind) {
				evidence = append(evidence, ind)
			}
		}
		need := max(r.MinHits, 1)
		if len(evidence) < need {
			continue
		}
		conf := 0.5 + 0.15*float64(len(evidence)-need+1)
		out = append(out, Match{
			Pattern:    r.Name,
			Title:      r.Title,
			Confidence: min(conf, 0.95),
			Evidence:   evidence,
			Advice:     r.Advice,
		})
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Names returns the pattern names of ms.
func Names(ms []Match) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Pattern
	}
	return names
}
