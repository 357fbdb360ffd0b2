// Package updater checks GitHub for a newer release of the server. The
// check is best-effort: failures leave UpdateAvailable false.
package updater

import (
	"context"
	"strings"
	"time"
)

// Repository is the owner/repo the releases are published under.
const Repository = "HendryAvila/vibe-check"

const checkTimeout = 10 * time.Second

// Release is the subset of a GitHub release the check needs.
type Release struct {
	TagName string
	HTMLURL string
}

// ReleaseSource looks up the latest release of a repository.
type ReleaseSource interface {
	LatestRelease(ctx context.Context, repository string) (Release, error)
}

// UpdateResult is returned by CheckVersion to communicate the outcome.
type UpdateResult struct {
	// CurrentVersion is the running version (e.g. "0.2.0").
	CurrentVersion string `json:"current_version"`
	// LatestVersion is the newest release (e.g. "0.3.0").
	LatestVersion string `json:"latest_version,omitempty"`
	// UpdateAvailable is true when latest > current.
	UpdateAvailable bool `json:"update_available"`
	// ReleaseURL is the GitHub page for the release.
	ReleaseURL string `json:"release_url,omitempty"`
	// Err is the lookup error, if any.
	Err error `json:"-"`
}

// CheckVersion compares currentVersion with the latest release.
func CheckVersion(ctx context.Context, src ReleaseSource, currentVersion string) UpdateResult {
	result := UpdateResult{CurrentVersion: normalizeVersion(currentVersion)}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	rel, err := src.LatestRelease(ctx, Repository)
	if err != nil {
		result.Err = err
		return result
	}

	result.LatestVersion = normalizeVersion(rel.TagName)
	result.ReleaseURL = rel.HTMLURL
	result.UpdateAvailable = isNewer(result.CurrentVersion, result.LatestVersion)
	return result
}

// normalizeVersion strips the leading "v" from version strings.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer reports whether latest is a higher major.minor.patch than
// current. Development builds never report an update.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}

	cur, lat := parts(current), parts(latest)
	for i := range 3 {
		if lat[i] != cur[i] {
			return lat[i] > cur[i]
		}
	}
	return false
}

// parts returns the first three numeric components of v, padding with
// zeros. Non-digit suffixes such as "-rc1" are ignored.
func parts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		n := 0
		for _, ch := range p {
			if ch < '0' || ch > '9' {
				break
			}
			n = n*10 + int(ch-'0')
		}
		out[i] = n
	}
	return out
}
