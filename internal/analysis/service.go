package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/HendryAvila/vibe-check/internal/monitor"
	"github.com/HendryAvila/vibe-check/internal/patterns"
	"github.com/HendryAvila/vibe-check/internal/validation"
)

// Response statuses returned by Service.
const (
	StatusQueuedForAsync  = "queued_for_async_analysis"
	StatusNotSuitable     = "not_suitable"
	StatusQueueFull       = "queue_full"
	StatusResourceLimited = "resource_limited"
	StatusValidationError = "validation_error"
	StatusFound           = "found"
	StatusNotFound        = "not_found"
)

// Admission decides whether a new job may start.
type Admission interface {
	ShouldAcceptNewJob() (bool, string)
}

// WorkerPool reports worker state.
type WorkerPool interface {
	Statuses() []WorkerStatus
	Running() int
}

// ResourceReporter exposes resource monitor state.
type ResourceReporter interface {
	Status() monitor.Status
}

// Service is the entry point for starting and polling async analyses. Its
// methods return status-tagged payloads for every domain outcome; an error
// is returned only for unexpected failures worth retrying.
type Service struct {
	queue     *Queue
	admission Admission
	workers   WorkerPool
	resources ResourceReporter
	detector  *patterns.Detector
	logger    *slog.Logger
}

// ServiceDeps are the collaborators of a Service. Only Queue is required.
type ServiceDeps struct {
	Queue     *Queue
	Admission Admission
	Workers   WorkerPool
	Resources ResourceReporter
	Detector  *patterns.Detector
	Logger    *slog.Logger
}

// NewService creates a Service.
func NewService(d ServiceDeps) *Service {
	if d.Detector == nil {
		d.Detector = patterns.NewDetector()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		queue:     d.Queue,
		admission: d.Admission,
		workers:   d.Workers,
		resources: d.Resources,
		detector:  d.Detector,
		logger:    d.Logger,
	}
}

// StartRequest are the raw start_async_analysis arguments.
type StartRequest struct {
	PRNumber   any
	Repository string
	PRData     map[string]any
	Priority   string
}

// DecodePRData converts loosely typed tool arguments into PRData.
func DecodePRData(raw map[string]any) (PRData, error) {
	var p PRData
	if raw == nil {
		return p, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return p, fmt.Errorf("analysis: encoding pr_data: %w", err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("analysis: decoding pr_data: %w", err)
	}
	if p.Additions < 0 || p.Deletions < 0 || p.ChangedFiles < 0 {
		return p, errors.New("analysis: pr_data counts must not be negative")
	}
	return p, nil
}

func validationError(r validation.Result) map[string]any {
	return map[string]any{"status": StatusValidationError, "error": r.Error, "field": r.Field}
}

// Start validates req, decides whether the PR warrants async analysis and
// queues it.
func (s *Service) Start(ctx context.Context, req StartRequest) (map[string]any, error) {
	repo := validation.ValidateRepository(req.Repository)
	if !repo.Valid {
		return validationError(repo), nil
	}
	pr := validation.ValidatePRNumber(req.PRNumber)
	if !pr.Valid {
		return validationError(pr), nil
	}
	priority, ok := ParsePriority(req.Priority)
	if !ok {
		return validationError(validation.Result{Field: "priority", Error: "priority must be low, normal or high"}), nil
	}
	prData, err := DecodePRData(req.PRData)
	if err != nil {
		return validationError(validation.Result{Field: "pr_data", Error: err.Error()}), nil
	}

	repository := repo.SanitizedValue.(string)
	prNumber := pr.SanitizedValue.(int)
	size := AnalyzeSize(prData)
	immediate := s.immediateAnalysis(prData, size)

	if !size.AsyncSuitable {
		return map[string]any{
			"status":             StatusNotSuitable,
			"reason":             fmt.Sprintf("PR is %s (%d changed lines, %d files); analyze it directly instead", size.Category, size.TotalChanges, size.ChangedFiles),
			"immediate_analysis": immediate,
		}, nil
	}

	if s.admission != nil {
		if ok, reason := s.admission.ShouldAcceptNewJob(); !ok {
			return map[string]any{
				"status":              StatusResourceLimited,
				"reason":              reason,
				"immediate_analysis":  immediate,
				"retry_after_seconds": 60,
			}, nil
		}
	}

	jobID, err := s.queue.QueueAnalysis(ctx, prNumber, repository, prData, priority)
	if errors.Is(err, ErrQueueFull) {
		return map[string]any{
			"status":              StatusQueueFull,
			"reason":              "the analysis queue is at capacity",
			"queue_status":        s.queue.Status(),
			"immediate_analysis":  immediate,
			"retry_after_seconds": 120,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	job, _ := s.queue.Job(jobID)
	return map[string]any{
		"status":               StatusQueuedForAsync,
		"job_id":               jobID,
		"queue_status":         s.queue.Status(),
		"immediate_analysis":   immediate,
		"estimated_completion": job.EstimatedCompletion,
		"instructions":         fmt.Sprintf("Poll check_analysis_status with job_id %q for progress and results.", jobID),
	}, nil
}

func (s *Service) immediateAnalysis(p PRData, size SizeAnalysis) map[string]any {
	matches := s.detector.Detect(p.Title + "\n" + p.Body)
	return map[string]any{
		"size_analysis":     size,
		"detected_patterns": matches,
		"pattern_count":     len(matches),
	}
}

// Status reports the state of jobID.
func (s *Service) Status(ctx context.Context, jobID string) (map[string]any, error) {
	v := validation.ValidateJobID(jobID)
	if !v.Valid {
		return validationError(v), nil
	}
	id := v.SanitizedValue.(string)

	job, ok := s.queue.Lookup(ctx, id)
	if !ok {
		return map[string]any{
			"status":  StatusNotFound,
			"job_id":  id,
			"message": "no analysis job with this id; it may have expired",
		}, nil
	}
	return map[string]any{"status": StatusFound, "job_status": job}, nil
}

// SystemStatus is the overall state of the async analysis system.
type SystemStatus struct {
	Queue          QueueStatus     `json:"queue"`
	Workers        []WorkerStatus  `json:"workers"`
	RunningWorkers int             `json:"running_workers"`
	Resources      *monitor.Status `json:"resources,omitempty"`
}

// OverallStatus returns queue, worker and resource state.
func (s *Service) OverallStatus(context.Context) (SystemStatus, error) {
	st := SystemStatus{Queue: s.queue.Status()}
	if s.workers != nil {
		st.Workers = s.workers.Statuses()
		st.RunningWorkers = s.workers.Running()
	}
	if s.resources != nil {
		rs := s.resources.Status()
		st.Resources = &rs
	}
	return st, nil
}
