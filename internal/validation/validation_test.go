package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRepository(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"owner/repo", true},
		{"  HendryAvila/vibe-check  ", true},
		{"my.org/my_repo-2", true},
		{"a/b..c", false},
		{"owner", false},
		{"owner/repo/extra", false},
		{"/repo", false},
		{"owner/", false},
		{"own er/repo", false},
		{"owner/repo;rm", false},
		{"owner/<script>", false},
		{"", false},
		{strings.Repeat("a", 60) + "/" + strings.Repeat("b", 60), false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := ValidateRepository(tt.input)
			assert.Equal(t, tt.valid, res.Valid, res.Error)
			assert.Equal(t, "repository", res.Field)
			if !tt.valid {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestValidateRepository_Idempotent(t *testing.T) {
	first := ValidateRepository("owner/repo")
	require.True(t, first.Valid)

	second := ValidateRepository(first.SanitizedValue.(string))

	assert.Equal(t, first, second)
}

func TestValidatePRNumber(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int
		valid bool
	}{
		{"int", 42, 42, true},
		{"float from json", float64(7), 7, true},
		{"digit string", "123", 123, true},
		{"padded string", " 9 ", 9, true},
		{"json number", json.Number("55"), 55, true},
		{"max", MaxPRNumber, MaxPRNumber, true},
		{"zero", 0, 0, false},
		{"negative", -3, 0, false},
		{"too large", MaxPRNumber + 1, 0, false},
		{"fractional", 1.5, 0, false},
		{"word", "abc", 0, false},
		{"injection", "1; drop table", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidatePRNumber(tt.input)
			assert.Equal(t, tt.valid, res.Valid, res.Error)
			assert.Equal(t, "pr_number", res.Field)
			if tt.valid {
				assert.Equal(t, tt.want, res.SanitizedValue)
			}
		})
	}
}

func TestValidateJobID(t *testing.T) {
	assert.True(t, ValidateJobID("o_r#42#a1b2c3d4").Valid)
	assert.True(t, ValidateJobID("job-1.2").Valid)

	for _, bad := range []string{"", "a/b", "../etc/passwd", "id;ls", "job id", strings.Repeat("x", 101), "a..b"} {
		res := ValidateJobID(bad)
		assert.False(t, res.Valid, bad)
		assert.Equal(t, "job_id", res.Field)
	}
}

func TestScanDangerous(t *testing.T) {
	assert.Equal(t, "sql injection", ScanDangerous("x' OR 1=1 --"))
	assert.Equal(t, "script injection", ScanDangerous("<script>alert(1)</script>"))
	assert.Equal(t, "path traversal", ScanDangerous("../../etc"))
	assert.Equal(t, "command injection", ScanDangerous("$(whoami)"))
	assert.Empty(t, ScanDangerous("owner/repo"))
}

func TestValidators_NeverPanic(t *testing.T) {
	inputs := []any{nil, "", "\x00", strings.Repeat("/", 500), -1.0, []int{1}, map[string]any{}}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			ValidatePRNumber(in)
			if s, ok := in.(string); ok {
				ValidateRepository(s)
				ValidateJobID(s)
			}
		})
	}
}
