package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/degradation"
	"github.com/HendryAvila/vibe-check/internal/patterns"
	"github.com/HendryAvila/vibe-check/internal/validation"
)

// AnalysisService starts and polls async PR analyses.
type AnalysisService interface {
	Start(ctx context.Context, req analysis.StartRequest) (map[string]any, error)
	Status(ctx context.Context, jobID string) (map[string]any, error)
}

// Degrader runs an operation with retries and a fallback.
type Degrader interface {
	ExecuteWithFallback(ctx context.Context, op degradation.Operation) map[string]any
}

// guarded runs op through deg, or directly when deg is nil.
func guarded(ctx context.Context, deg Degrader, op degradation.Operation) map[string]any {
	if deg != nil {
		return deg.ExecuteWithFallback(ctx, op)
	}
	res, err := op.Primary(ctx)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return res
}

// StartAnalysisTool handles the start_async_analysis MCP tool.
type StartAnalysisTool struct {
	svc      AnalysisService
	deg      Degrader
	detector *patterns.Detector
}

// NewStartAnalysisTool creates a StartAnalysisTool. deg may be nil.
func NewStartAnalysisTool(svc AnalysisService, deg Degrader) *StartAnalysisTool {
	return &StartAnalysisTool{svc: svc, deg: deg, detector: patterns.NewDetector()}
}

// Definition returns the MCP tool definition for registration.
func (t *StartAnalysisTool) Definition() mcp.Tool {
	return mcp.NewTool("start_async_analysis",
		mcp.WithDescription(
			"Queue a large pull request for background anti-pattern analysis. "+
				"Returns an immediate pattern scan plus a job_id to poll with check_analysis_status. "+
				"Small PRs are rejected as not_suitable; analyze them directly.",
		),
		mcp.WithNumber("pr_number",
			mcp.Required(),
			mcp.Description("Pull request number"),
		),
		mcp.WithString("repository",
			mcp.Required(),
			mcp.Description("Repository as owner/repo"),
		),
		mcp.WithObject("pr_data",
			mcp.Description("PR metadata: title, body, author, additions, deletions, changed_files"),
		),
		mcp.WithString("priority",
			mcp.Description("Queue priority"),
			mcp.Enum("low", "normal", "high"),
			mcp.DefaultString("normal"),
		),
	)
}

// Handle processes the start_async_analysis tool call.
func (t *StartAnalysisTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	prData, _ := args["pr_data"].(map[string]any)
	sreq := analysis.StartRequest{
		PRNumber:   args["pr_number"],
		Repository: req.GetString("repository", ""),
		PRData:     prData,
		Priority:   req.GetString("priority", ""),
	}

	res := guarded(ctx, t.deg, degradation.Operation{
		Name: "start_async_analysis",
		Primary: func(ctx context.Context) (map[string]any, error) {
			return t.svc.Start(ctx, sreq)
		},
		Fallback: func(context.Context) (map[string]any, error) {
			return t.basicAnalysis(sreq)
		},
	})
	return jsonResult(res)
}

// basicAnalysis answers without the queue: inputs are still validated and
// the PR text is scanned for patterns.
func (t *StartAnalysisTool) basicAnalysis(req analysis.StartRequest) (map[string]any, error) {
	if v := validation.ValidateRepository(req.Repository); !v.Valid {
		return map[string]any{"status": analysis.StatusValidationError, "error": v.Error, "field": v.Field}, nil
	}
	if v := validation.ValidatePRNumber(req.PRNumber); !v.Valid {
		return map[string]any{"status": analysis.StatusValidationError, "error": v.Error, "field": v.Field}, nil
	}
	p, err := analysis.DecodePRData(req.PRData)
	if err != nil {
		return nil, fmt.Errorf("basic analysis: %w", err)
	}
	matches := t.detector.Detect(p.Title + "\n" + p.Body)
	return map[string]any{
		"status":            "basic_analysis",
		"message":           "async analysis is unavailable; returning a basic pattern scan",
		"size_analysis":     analysis.AnalyzeSize(p),
		"detected_patterns": matches,
		"pattern_count":     len(matches),
	}, nil
}

// StatusTool handles the check_analysis_status MCP tool.
type StatusTool struct {
	svc AnalysisService
	deg Degrader
}

// NewStatusTool creates a StatusTool. deg may be nil.
func NewStatusTool(svc AnalysisService, deg Degrader) *StatusTool {
	return &StatusTool{svc: svc, deg: deg}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("check_analysis_status",
		mcp.WithDescription("Check progress and results of an async PR analysis job."),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job id returned by start_async_analysis"),
		),
	)
}

// Handle processes the check_analysis_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := req.GetString("job_id", "")

	res := guarded(ctx, t.deg, degradation.Operation{
		Name: "check_analysis_status",
		Primary: func(ctx context.Context) (map[string]any, error) {
			return t.svc.Status(ctx, jobID)
		},
		Fallback: func(context.Context) (map[string]any, error) {
			return map[string]any{
				"status":  "status_unavailable",
				"job_id":  jobID,
				"message": "job status is temporarily unavailable; try again shortly",
			}, nil
		},
	})
	return jsonResult(res)
}
