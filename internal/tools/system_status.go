package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/degradation"
	"github.com/HendryAvila/vibe-check/internal/health"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// HealthReporter summarizes the latest health check.
type HealthReporter interface {
	Summary() health.Summary
}

// AvailabilityReporter classifies the system and recommends a strategy.
type AvailabilityReporter interface {
	CheckSystemAvailability(ctx context.Context) degradation.Availability
	RecommendedStrategy(ctx context.Context, p analysis.PRData) degradation.Strategy
}

// TelemetryReporter summarizes mentor response telemetry.
type TelemetryReporter interface {
	Summary() telemetry.Summary
}

// SystemStatusTool handles the vibe_check_system_status MCP tool.
type SystemStatusTool struct {
	health    HealthReporter
	avail     AvailabilityReporter
	telemetry TelemetryReporter
}

// NewSystemStatusTool creates a SystemStatusTool. Any dependency may be nil.
func NewSystemStatusTool(h HealthReporter, a AvailabilityReporter, tel TelemetryReporter) *SystemStatusTool {
	return &SystemStatusTool{health: h, avail: a, telemetry: tel}
}

// Definition returns the MCP tool definition for registration.
func (t *SystemStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("vibe_check_system_status",
		mcp.WithDescription(
			"Report server health, async analysis availability and response telemetry. "+
				"Pass PR size fields to get the recommended analysis strategy.",
		),
		mcp.WithNumber("additions", mcp.Description("Lines added in the PR")),
		mcp.WithNumber("deletions", mcp.Description("Lines deleted in the PR")),
		mcp.WithNumber("changed_files", mcp.Description("Files changed in the PR")),
	)
}

// Handle processes the vibe_check_system_status tool call.
func (t *SystemStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]any{"status": "ok"}
	if t.health != nil {
		out["health"] = t.health.Summary()
	}
	if t.telemetry != nil {
		out["telemetry"] = t.telemetry.Summary()
	}
	if t.avail != nil {
		out["system_availability"] = t.avail.CheckSystemAvailability(ctx)
		p := analysis.PRData{
			Additions:    max(req.GetInt("additions", 0), 0),
			Deletions:    max(req.GetInt("deletions", 0), 0),
			ChangedFiles: max(req.GetInt("changed_files", 0), 0),
		}
		if p.TotalChanges() > 0 || p.ChangedFiles > 0 {
			out["recommended_strategy"] = t.avail.RecommendedStrategy(ctx, p)
		}
	}
	return jsonResult(out)
}
