package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	rel  Release
	err  error
	repo string
}

func (f *fakeSource) LatestRelease(_ context.Context, repository string) (Release, error) {
	f.repo = repository
	return f.rel, f.err
}

func TestCheckVersion_UpdateAvailable(t *testing.T) {
	src := &fakeSource{rel: Release{TagName: "v0.3.0", HTMLURL: "https://github.com/HendryAvila/vibe-check/releases/v0.3.0"}}

	res := CheckVersion(context.Background(), src, "v0.2.9")

	assert.Equal(t, Repository, src.repo)
	assert.Equal(t, "0.2.9", res.CurrentVersion)
	assert.Equal(t, "0.3.0", res.LatestVersion)
	assert.True(t, res.UpdateAvailable)
	assert.NotEmpty(t, res.ReleaseURL)
}

func TestCheckVersion_LookupFails(t *testing.T) {
	res := CheckVersion(context.Background(), &fakeSource{err: errors.New("offline")}, "1.0.0")

	assert.False(t, res.UpdateAvailable)
	assert.Empty(t, res.LatestVersion)
	assert.Error(t, res.Err)
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{"0.2.0", "0.3.0", true},
		{"0.2.0", "0.2.1", true},
		{"1.0.0", "0.9.9", false},
		{"1.0.0", "1.0.0", false},
		{"1.0", "1.0.1", true},
		{"1.2.0", "1.10.0", true},
		{"1.0.0-rc1", "1.0.0", false},
		{"dev", "9.9.9", false},
		{"", "1.0.0", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isNewer(tt.current, tt.latest), "%s -> %s", tt.current, tt.latest)
	}
}
