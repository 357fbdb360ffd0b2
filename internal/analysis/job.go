// Package analysis implements asynchronous analysis of large pull requests:
// a bounded job queue, a pool of background workers that analyze PR diffs in
// chunks, and the start/status entry points used by the MCP tools.
package analysis

import (
	"errors"
	"maps"
	"time"
)

// Sentinel errors.
var (
	ErrQueueFull   = errors.New("analysis: queue full")
	ErrJobNotFound = errors.New("analysis: job not found")
	ErrJobTerminal = errors.New("analysis: job already finished")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Priority of a job. Informational only; the queue is FIFO.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority returns the priority named s, defaulting to normal for "".
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case "":
		return PriorityNormal, true
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), true
	default:
		return "", false
	}
}

// PRData is the caller-supplied summary of a pull request.
type PRData struct {
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
	Author       string `json:"author,omitempty"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ChangedFiles int    `json:"changed_files"`
}

// TotalChanges is additions plus deletions.
func (p PRData) TotalChanges() int { return p.Additions + p.Deletions }

// Job is one async analysis job.
type Job struct {
	ID                  string         `json:"job_id"`
	PRNumber            int            `json:"pr_number"`
	Repository          string         `json:"repository"`
	PRData              PRData         `json:"pr_data"`
	Status              Status         `json:"status"`
	Progress            int            `json:"progress"`
	ProgressMessage     string         `json:"progress_message,omitempty"`
	WorkerID            string         `json:"worker_id,omitempty"`
	Priority            Priority       `json:"priority"`
	QueuedAt            time.Time      `json:"queued_at"`
	StartedAt           time.Time      `json:"started_at,omitzero"`
	CompletedAt         time.Time      `json:"completed_at,omitzero"`
	EstimatedCompletion time.Time      `json:"estimated_completion,omitzero"`
	Result              map[string]any `json:"result,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	c.Result = maps.Clone(j.Result)
	return c
}

// Duration returns how long the job ran, or zero if it has not finished.
func (j Job) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}
