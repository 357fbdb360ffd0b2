// Package validation checks untrusted tool arguments before they reach the
// analysis pipeline or any external API. Validators never panic; a rejected
// value comes back as a Result with Valid=false.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Limits.
const (
	MaxRepositoryLength = 100
	MaxJobIDLength      = 100
	MaxPRNumber         = 999999
)

// Result is the outcome of validating one field.
type Result struct {
	Valid          bool   `json:"valid"`
	SanitizedValue any    `json:"sanitized_value,omitempty"`
	Error          string `json:"error,omitempty"`
	Field          string `json:"field"`
}

func reject(field, format string, args ...any) Result {
	return Result{Field: field, Error: fmt.Sprintf(format, args...)}
}

var (
	repoSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	jobIDChars  = regexp.MustCompile(`^[A-Za-z0-9#._-]+$`)
)

var dangerousPatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"sql injection", regexp.MustCompile(`(?i)(\b(select|insert|update|delete|drop|union|alter|exec)\b\s|--|/\*|\*/|;\s*\w|'\s*or\s)`)},
	{"script injection", regexp.MustCompile(`(?i)(<\s*script|javascript:|on(error|load|click)\s*=|<\s*iframe)`)},
	{"path traversal", regexp.MustCompile(`(?i)(\.\.|%2e%2e|%2f|%5c|\\)`)},
	{"command injection", regexp.MustCompile("(\\$\\(|`|\\|\\||&&|[|;&<>]|\\$\\{)")},
}

// ScanDangerous returns the kind of the first injection pattern found in s,
// or "" when s is clean.
func ScanDangerous(s string) string {
	for _, d := range dangerousPatterns {
		if d.pattern.MatchString(s) {
			return d.kind
		}
	}
	return ""
}

// ValidateRepository checks an "owner/repo" string.
func ValidateRepository(v string) Result {
	const field = "repository"
	repo := strings.TrimSpace(v)
	switch {
	case repo == "":
		return reject(field, "repository is required")
	case len(repo) > MaxRepositoryLength:
		return reject(field, "repository must be at most %d characters", MaxRepositoryLength)
	case strings.Contains(repo, ".."):
		return reject(field, "repository must not contain consecutive dots")
	}

	owner, name, ok := strings.Cut(repo, "/")
	if !ok || strings.Contains(name, "/") {
		return reject(field, "repository must have the form owner/repo")
	}
	if !repoSegment.MatchString(owner) || !repoSegment.MatchString(name) {
		return reject(field, "repository segments may contain only letters, digits, '.', '_' and '-'")
	}
	if kind := ScanDangerous(repo); kind != "" {
		return reject(field, "repository rejected: possible %s", kind)
	}
	return Result{Valid: true, SanitizedValue: repo, Field: field}
}

// ValidatePRNumber accepts an integer, a whole float or a digit string in
// 1..MaxPRNumber and sanitizes it to an int.
func ValidatePRNumber(v any) Result {
	const field = "pr_number"

	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return reject(field, "pr_number must be a whole number")
		}
		if x < 0 || x > MaxPRNumber {
			return reject(field, "pr_number must be between 1 and %d", MaxPRNumber)
		}
		n = int64(x)
	case json.Number:
		return ValidatePRNumber(x.String())
	case string:
		s := strings.TrimSpace(x)
		if kind := ScanDangerous(s); kind != "" {
			return reject(field, "pr_number rejected: possible %s", kind)
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || strings.HasPrefix(s, "+") {
			return reject(field, "pr_number must be a positive integer")
		}
		n = parsed
	case nil:
		return reject(field, "pr_number is required")
	default:
		return reject(field, "pr_number has unsupported type %T", v)
	}

	if n < 1 || n > MaxPRNumber {
		return reject(field, "pr_number must be between 1 and %d", MaxPRNumber)
	}
	return Result{Valid: true, SanitizedValue: int(n), Field: field}
}

// ValidateJobID checks an analysis job id.
func ValidateJobID(v string) Result {
	const field = "job_id"
	id := strings.TrimSpace(v)
	switch {
	case id == "":
		return reject(field, "job_id is required")
	case len(id) > MaxJobIDLength:
		return reject(field, "job_id must be at most %d characters", MaxJobIDLength)
	case !jobIDChars.MatchString(id):
		return reject(field, "job_id may contain only letters, digits, '#', '.', '_' and '-'")
	}
	if kind := ScanDangerous(id); kind != "" {
		return reject(field, "job_id rejected: possible %s", kind)
	}
	return Result{Valid: true, SanitizedValue: id, Field: field}
}
