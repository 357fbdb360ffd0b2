package sampling

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

type secretPattern struct {
	name    string
	pattern *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"private_key", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`)},
	{"aws_access_key", regexp.MustCompile(`\b(AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)aws_?secret_?access_?key\s*[=:]\s*["']?[A-Za-z0-9/+=]{40}["']?`)},
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|access[_-]?token)\s*[=:]\s*["']?[A-Za-z0-9_\-]{16,}["']?`)},
	{"provider_key", regexp.MustCompile(`\b(sk-[A-Za-z0-9_\-]{20,}|gh[pousr]_[A-Za-z0-9]{36,}|xox[baprs]-[A-Za-z0-9-]{10,})\b`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{16,}`)},
}

// RedactSecrets replaces credentials found in s and returns the redacted
// text with the number of replacements.
func RedactSecrets(s string) (string, int) {
	count := 0
	for _, sp := range secretPatterns {
		s = sp.pattern.ReplaceAllStringFunc(s, func(string) string {
			count++
			return "[REDACTED_" + strings.ToUpper(sp.name) + "]"
		})
	}
	return s, count
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above)\s+(instructions|prompts?|messages?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(the\s+)?(previous|prior|above)[^.\n]*`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you|above)[^.\n]*`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\b[^.\n]*`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
	regexp.MustCompile(`(?im)^\s*(system|assistant)\s*:`),
	regexp.MustCompile(`(?i)</?\s*(system|instructions?)\s*>`),
}

// SanitizeUntrusted strips prompt-override phrases from s, HTML-escapes it and
// truncates it to at most maxChars bytes at a word boundary.
func SanitizeUntrusted(s string, maxChars int) string {
	for _, p := range injectionPatterns {
		s = p.ReplaceAllString(s, "[removed]")
	}
	s = html.EscapeString(s)
	return truncateAtWord(s, maxChars)
}

func truncateAtWord(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	// Do not split a multi-byte rune.
	for len(cut) > 0 && !isRuneBoundary(s, len(cut)) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace)
}

func isRuneBoundary(s string, i int) bool {
	return i >= len(s) || s[i] < 0x80 || s[i] >= 0xC0
}
