package mentor

import (
	"regexp"
	"slices"
	"strings"

	"github.com/HendryAvila/vibe-check/internal/patterns"
	"github.com/HendryAvila/vibe-check/internal/routing"
)

// Intent is the classified purpose of a mentor query.
type Intent int

const (
	IntentGeneral Intent = iota
	IntentArchitecture
	IntentImplementation
	IntentDebugging
	IntentCodeReview
)

func (i Intent) String() string {
	switch i {
	case IntentArchitecture:
		return routing.IntentArchitectureDecision
	case IntentImplementation:
		return routing.IntentImplementationGuide
	case IntentDebugging:
		return routing.IntentDebuggingHelp
	case IntentCodeReview:
		return routing.IntentCodeReview
	default:
		return "general_advice"
	}
}

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDebugging, []string{"debug", "error", "bug", "crash", "exception", "not working", "fails", "failing", "broken", "stack trace"}},
	{IntentCodeReview, []string{"review", "pull request", " pr ", "feedback on", "look at my", "code quality"}},
	{IntentArchitecture, []string{"should i", "architecture", "design", "which is better", " vs ", "versus", "choose", "trade-off", "tradeoff", "approach"}},
	{IntentImplementation, []string{"how do i", "how to", "implement", "build", "set up", "setup", "integrate", "example"}},
}

// ClassifyIntent picks the first intent whose keywords appear in query.
func ClassifyIntent(query string) Intent {
	q := " " + strings.ToLower(query) + " "
	for _, ik := range intentKeywords {
		for _, kw := range ik.keywords {
			if strings.Contains(q, kw) {
				return ik.intent
			}
		}
	}
	return IntentGeneral
}

var knownTechnologies = []string{
	"go", "golang", "python", "javascript", "typescript", "node", "react", "vue", "angular",
	"rust", "java", "kotlin", "swift", "ruby", "rails", "django", "flask", "fastapi",
	"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis", "kafka", "rabbitmq",
	"docker", "kubernetes", "terraform", "aws", "gcp", "azure", "graphql", "grpc", "rest",
	"stripe", "github", "openai", "anthropic", "supabase", "firebase", "nextjs", "express",
}

var (
	wordPattern     = regexp.MustCompile(`[a-z0-9][a-z0-9.+#-]*`)
	filePathPattern = regexp.MustCompile(`\b[\w./-]+\.(go|py|js|ts|tsx|jsx|java|rs|rb|cpp|c|h|cs|kt|swift|php|yaml|yml|json|toml|sql|md)\b`)
)

// ExtractContext pulls technologies, detected anti-pattern names and file
// references out of the query and its optional context text.
func ExtractContext(text string, filePaths []string, detector *patterns.Detector) routing.QueryContext {
	lower := strings.ToLower(text)

	var qc routing.QueryContext
	words := wordPattern.FindAllString(lower, -1)
	for _, tech := range knownTechnologies {
		if slices.Contains(words, tech) && !slices.Contains(qc.Technologies, tech) {
			qc.Technologies = append(qc.Technologies, tech)
		}
	}

	if detector != nil {
		qc.Patterns = patterns.Names(detector.Detect(text))
	}

	refs := filePathPattern.FindAllString(text, -1)
	refs = append(refs, filePaths...)
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" && !slices.Contains(qc.FileReferences, r) {
			qc.FileReferences = append(qc.FileReferences, r)
		}
	}
	return qc
}
