package routing

import (
	"regexp"
	"strings"
)

// Intents that shift confidence.
const (
	IntentArchitectureDecision = "architecture_decision"
	IntentImplementationGuide  = "implementation_guide"
	IntentDebuggingHelp        = "debugging_help"
	IntentCodeReview           = "code_review"
)

// commonPatterns match well-understood questions that canned guidance answers well.
var commonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(should i (use|build|pick|choose)|which is better|what'?s the best|best practice|recommended way)\b`),
	regexp.MustCompile(`(?i)\b(architecture|design pattern|microservices?|monolith|layered)\b`),
	regexp.MustCompile(`(?i)\b(how (do|can) i (debug|fix)|stack ?trace|not working|exception)\b`),
	regexp.MustCompile(`(?i)\b(rest api|graphql|api design|sql vs nosql|which database)\b`),
	regexp.MustCompile(`(?i)\b(custom (client|wrapper|sdk)|official sdk|build vs buy)\b`),
}

// novelPatterns match project-specific questions that need a generated answer.
var novelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(our|my) (custom|internal|proprietary|legacy|in-house)\b`),
	regexp.MustCompile(`(?i)\bv?\d+\.\d+(\.\d+)?\b.*\bv?\d+\.\d+(\.\d+)?\b`),
	regexp.MustCompile(`(?i)\b(specifically|in our case|given that|edge case|unusual|unique to)\b`),
	regexp.MustCompile(`(?i)\b(but|however|although|except)\b.*\b(and|while|whereas)\b.*\b(because|so|since)\b`),
}

var codeReferencePattern = regexp.MustCompile("(?i)(```|\\b[\\w./-]+\\.(go|py|js|ts|tsx|jsx|java|rs|rb|cpp|cc|c|h|cs|kt|swift|php|yaml|yml|json|toml)\\b|\\bfunc \\w+\\(|\\bdef \\w+\\(|\\bclass \\w+)")

// Scorer computes how confident the router can be that a static response
// answers a query well.
type Scorer struct{}

// Calculate returns a confidence in [0, 1].
func (Scorer) Calculate(query, intent string, qc QueryContext, hasWorkspace bool) float64 {
	confidence := 0.5

	if matchesAny(commonPatterns, query) {
		confidence += 0.2
	}
	if matchesAny(novelPatterns, query) {
		confidence -= 0.3
	}

	words := len(strings.Fields(query))
	switch {
	case words > 50:
		confidence -= 0.1
	case words < 10:
		confidence += 0.1
	}

	switch techs := len(qc.Technologies); {
	case techs > 5:
		confidence -= 0.15
	case techs == 0:
		confidence += 0.1
	}

	if hasWorkspace {
		confidence -= 0.2
	}
	if len(qc.FileReferences) > 0 || codeReferencePattern.MatchString(query) {
		confidence -= 0.15
	}

	switch intent {
	case IntentArchitectureDecision, IntentImplementationGuide:
		confidence += 0.1
	case IntentDebuggingHelp, IntentCodeReview:
		confidence -= 0.1
	}

	return clamp01(confidence)
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
