// Package sampling generates dynamic mentor responses through the MCP
// host's LLM sampling capability, guarded by a circuit breaker.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/HendryAvila/vibe-check/internal/breaker"
)

var (
	// ErrCircuitOpen is returned without a remote call while the breaker is open.
	ErrCircuitOpen = errors.New("sampling: circuit open")
	// ErrUnavailable means the current request carries no sampling-capable client.
	ErrUnavailable = errors.New("sampling: unavailable")
	// ErrTimeout means the remote call exceeded the configured timeout.
	ErrTimeout = errors.New("sampling: timeout")
	// ErrRateLimited means the local throttle rejected the call.
	ErrRateLimited = errors.New("sampling: rate limited")

	errEmptyReply = errors.New("sampling: empty reply")
)

// Message is one sampling request sent to the host.
type Message struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
	ModelHint    string
}

// Reply is the host's answer.
type Reply struct {
	Text  string
	Model string
}

// Sampler performs the remote completion.
type Sampler interface {
	// Available reports whether ctx belongs to a client that can sample.
	Available(ctx context.Context) bool
	CreateMessage(ctx context.Context, msg Message) (Reply, error)
}

// Config configures a Client.
type Config struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	MaxWorkspaceChars int           `yaml:"max_workspace_chars"`
	ModelHint         string        `yaml:"model_hint"`

	// RateLimit is the sustained number of sampling calls per second.
	// Zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// DefaultConfig returns the sampling defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		MaxTokens:         1000,
		Temperature:       0.7,
		MaxWorkspaceChars: 10000,
		ModelHint:         "claude-sonnet",
		RateLimit:         2,
		Burst:             5,
	}
}

// GenerateRequest is the input of GenerateDynamicResponse.
type GenerateRequest struct {
	Intent        string
	Query         string
	Context       string
	Technologies  []string
	WorkspaceData string
}

// DynamicResponse is a generated mentor answer.
type DynamicResponse struct {
	Content    string  `json:"content"`
	Generated  bool    `json:"generated"`
	Intent     string  `json:"intent"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	ModelUsed  string  `json:"model_used"`
}

const generatedConfidence = 0.85

// Client is the breaker-guarded sampling client. It never retries.
type Client struct {
	cfg     Config
	sampler Sampler
	breaker *breaker.Breaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client. sampler may be nil, in which case every call
// fails with ErrUnavailable.
func NewClient(cfg Config, sampler Sampler, br *breaker.Breaker, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxWorkspaceChars <= 0 {
		cfg.MaxWorkspaceChars = def.MaxWorkspaceChars
	}
	if br == nil {
		br = breaker.New("sampling", breaker.DefaultConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, sampler: sampler, breaker: br, logger: logger}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return c
}

// Breaker returns the breaker guarding the sampler.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// Available reports whether a sampling call could be attempted for ctx.
func (c *Client) Available(ctx context.Context) bool {
	return c.sampler != nil && c.sampler.Available(ctx) && c.breaker.State() != breaker.Open
}

// GenerateDynamicResponse asks the host LLM for a tailored answer.
// Any error means no dynamic response is available and the caller should
// fall back to static guidance.
func (c *Client) GenerateDynamicResponse(ctx context.Context, req GenerateRequest) (*DynamicResponse, error) {
	category := CategoryFor(req.Intent)

	var workspace string
	if req.WorkspaceData != "" {
		redacted, n := RedactSecrets(req.WorkspaceData)
		if n > 0 {
			c.logger.Warn("sampling: redacted secrets from workspace data", "count", n)
		}
		workspace = SanitizeUntrusted(redacted, c.cfg.MaxWorkspaceChars)
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if !c.breaker.CanExecute() {
		return nil, ErrCircuitOpen
	}
	if c.sampler == nil || !c.sampler.Available(ctx) {
		return nil, ErrUnavailable
	}

	msg := Message{
		SystemPrompt: SystemPrompt(category),
		Prompt:       userPrompt(req, workspace),
		MaxTokens:    c.cfg.MaxTokens,
		Temperature:  c.cfg.Temperature,
		ModelHint:    c.cfg.ModelHint,
	}

	reply, err := c.call(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the sampler.
			return nil, fmt.Errorf("sampling: %w", ctx.Err())
		}
		c.breaker.RecordFailure()
		c.logger.Warn("sampling: generation failed", "category", category, "error", err, "breaker", c.breaker.State())
		return nil, err
	}
	c.breaker.RecordSuccess()

	return &DynamicResponse{
		Content:    reply.Text,
		Generated:  true,
		Intent:     req.Intent,
		Category:   category.String(),
		Confidence: generatedConfidence,
		ModelUsed:  reply.Model,
	}, nil
}

func (c *Client) call(ctx context.Context, msg Message) (Reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type outcome struct {
		reply Reply
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := c.sampler.CreateMessage(callCtx, msg)
		done <- outcome{r, err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Reply{}, fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		}
		return Reply{}, callCtx.Err()
	case o := <-done:
		if o.err != nil {
			return Reply{}, fmt.Errorf("sampling: create message: %w", o.err)
		}
		if strings.TrimSpace(o.reply.Text) == "" {
			return Reply{}, errEmptyReply
		}
		return o.reply, nil
	}
}
