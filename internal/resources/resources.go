// Package resources implements the read-only MCP resources of the Vibe
// Check server, addressed as vibecheck://...
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/vibe-check/internal/health"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// Resource URIs.
const (
	HealthURI    = "vibecheck://health"
	TelemetryURI = "vibecheck://telemetry"
)

// HealthSource provides the health summary, history and alerts.
type HealthSource interface {
	Summary() health.Summary
	History() []health.Report
	Alerts() []health.Alert
}

// TelemetrySource provides the response telemetry summary.
type TelemetrySource interface {
	Summary() telemetry.Summary
}

// Handler serves the resources.
type Handler struct {
	health    HealthSource
	telemetry TelemetrySource
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(h HealthSource, t TelemetrySource) *Handler {
	return &Handler{health: h, telemetry: t}
}

// HealthResource returns the MCP resource definition for server health.
func (h *Handler) HealthResource() mcp.Resource {
	return mcp.NewResource(
		HealthURI,
		"Vibe Check Health",
		mcp.WithResourceDescription("Latest component health checks and active alerts"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleHealth returns the latest health report as JSON.
func (h *Handler) HandleHealth(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.health == nil {
		return errorResource(req.Params.URI, "health monitoring is disabled"), nil
	}
	out := map[string]any{
		"summary": h.health.Summary(),
		"alerts":  h.health.Alerts(),
	}
	if hist := h.health.History(); len(hist) > 0 {
		out["latest"] = hist[len(hist)-1]
	}
	return jsonResource(req.Params.URI, out)
}

// TelemetryResource returns the MCP resource definition for response
// telemetry.
func (h *Handler) TelemetryResource() mcp.Resource {
	return mcp.NewResource(
		TelemetryURI,
		"Vibe Check Telemetry",
		mcp.WithResourceDescription("Mentor response counts, latency percentiles per route, cache and circuit breaker state"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleTelemetry returns the telemetry summary as JSON.
func (h *Handler) HandleTelemetry(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.telemetry == nil {
		return errorResource(req.Params.URI, "telemetry is disabled"), nil
	}
	return jsonResource(req.Params.URI, h.telemetry.Summary())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
