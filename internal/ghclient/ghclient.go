// Package ghclient fetches pull request files from the GitHub API.
package ghclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/updater"
)

// ErrRateLimited is returned by Ping when the core quota is exhausted.
var ErrRateLimited = errors.New("ghclient: rate limit exhausted")

// Config configures a Client.
type Config struct {
	// Token is a personal access token. Empty means unauthenticated
	// requests with the low anonymous quota.
	Token string `yaml:"token"`
	// BaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxFiles int           `yaml:"max_files"`
}

// DefaultConfig returns the client defaults. GitHub stops listing files
// at 3000 per pull request.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, MaxFiles: 3000}
}

// Client implements analysis.FileSource.
type Client struct {
	gh       *github.Client
	maxFiles int
	logger   *slog.Logger
}

var _ analysis.FileSource = (*Client)(nil)

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		hc = oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, hc), ts)
	}
	gh := github.NewClient(hc)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("ghclient: parse base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &Client{gh: gh, maxFiles: cfg.MaxFiles, logger: logger}, nil
}

// PullRequestFiles lists the changed files of a pull request, following
// pagination up to MaxFiles. repository is "owner/repo".
func (c *Client) PullRequestFiles(ctx context.Context, repository string, prNumber int) ([]analysis.File, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("ghclient: invalid repository %q", repository)
	}

	opts := &github.ListOptions{PerPage: 100}
	var files []analysis.File
	for {
		page, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, prNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("ghclient: list files %s#%d: %w", repository, prNumber, err)
		}
		for _, f := range page {
			files = append(files, analysis.File{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if len(files) >= c.maxFiles {
			c.logger.Warn("ghclient: file list truncated", "repository", repository, "pr", prNumber, "max_files", c.maxFiles)
			return files[:c.maxFiles], nil
		}
		if resp == nil || resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = resp.NextPage
	}
}

// Ping checks that the API is reachable and the core quota is not spent.
func (c *Client) Ping(ctx context.Context) error {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("ghclient: rate limit: %w", err)
	}
	if core := limits.GetCore(); core != nil && core.Remaining == 0 {
		return fmt.Errorf("%w until %s", ErrRateLimited, core.Reset.Format(time.RFC3339))
	}
	return nil
}

// LatestRelease returns the newest published release of repository.
func (c *Client) LatestRelease(ctx context.Context, repository string) (updater.Release, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok {
		return updater.Release{}, fmt.Errorf("ghclient: invalid repository %q", repository)
	}
	rel, _, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return updater.Release{}, fmt.Errorf("ghclient: latest release %s: %w", repository, err)
	}
	return updater.Release{TagName: rel.GetTagName(), HTMLURL: rel.GetHTMLURL()}, nil
}
