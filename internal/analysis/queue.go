package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryStore persists finished jobs beyond the in-memory retention.
type HistoryStore interface {
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, bool, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatusMirror publishes job status to a shared store.
type StatusMirror interface {
	SetJobStatus(ctx context.Context, jobID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID string) (string, bool, error)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	MaxQueueSize        int           `yaml:"max_queue_size"`
	WorkerIdleTimeout   time.Duration `yaml:"worker_idle_timeout"`
	MaxAnalysisDuration time.Duration `yaml:"max_analysis_duration"`
	ResultRetention     time.Duration `yaml:"result_retention"`
	StatusRetention     time.Duration `yaml:"status_retention"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	MaxHistory          int           `yaml:"max_history"`
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxQueueSize:        10,
		WorkerIdleTimeout:   30 * time.Second,
		MaxAnalysisDuration: 15 * time.Minute,
		ResultRetention:     24 * time.Hour,
		StatusRetention:     72 * time.Hour,
		CleanupInterval:     time.Hour,
		MaxHistory:          1000,
	}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithHistoryStore persists finished jobs to s.
func WithHistoryStore(s HistoryStore) QueueOption {
	return func(q *Queue) { q.store = s }
}

// WithStatusMirror mirrors status changes to m.
func WithStatusMirror(m StatusMirror) QueueOption {
	return func(q *Queue) { q.mirror = m }
}

// WithMetrics records queue metrics.
func WithMetrics(m *Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithQueueClock replaces time.Now.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// Queue is the bounded async analysis queue. It owns every job; workers
// change job state only through its methods.
type Queue struct {
	cfg     QueueConfig
	pending chan string
	store   HistoryStore
	mirror  StatusMirror
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	active  map[string]*Job
	history map[string]*Job
	order   []string // history ids, oldest first

	totalQueued, totalCompleted, totalFailed, totalRejected int64
}

// NewQueue creates a Queue.
func NewQueue(cfg QueueConfig, opts ...QueueOption) *Queue {
	def := DefaultQueueConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.WorkerIdleTimeout <= 0 {
		cfg.WorkerIdleTimeout = def.WorkerIdleTimeout
	}
	if cfg.MaxAnalysisDuration <= 0 {
		cfg.MaxAnalysisDuration = def.MaxAnalysisDuration
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = def.ResultRetention
	}
	if cfg.StatusRetention <= 0 {
		cfg.StatusRetention = def.StatusRetention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	q := &Queue{
		cfg:     cfg,
		pending: make(chan string, cfg.MaxQueueSize),
		logger:  slog.Default(),
		now:     time.Now,
		active:  make(map[string]*Job),
		history: make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Config returns the queue configuration.
func (q *Queue) Config() QueueConfig { return q.cfg }

// EstimateDuration estimates analysis time: three minutes base, a minute
// per thousand changed lines and five seconds per file, capped at
// MaxAnalysisDuration.
func (q *Queue) EstimateDuration(p PRData) time.Duration {
	d := 180*time.Second +
		time.Duration(p.TotalChanges())*60*time.Second/1000 +
		time.Duration(p.ChangedFiles)*5*time.Second
	return min(d, q.cfg.MaxAnalysisDuration)
}

func newJobID(repository string, prNumber int) string {
	return strings.ReplaceAll(repository, "/", "_") + "#" + strconv.Itoa(prNumber) + "#" + uuid.NewString()[:8]
}

// QueueAnalysis enqueues a PR for analysis and returns the job id.
func (q *Queue) QueueAnalysis(ctx context.Context, prNumber int, repository string, pr PRData, priority Priority) (string, error) {
	if priority == "" {
		priority = PriorityNormal
	}
	now := q.now()
	job := &Job{
		ID:                  newJobID(repository, prNumber),
		PRNumber:            prNumber,
		Repository:          repository,
		PRData:              pr,
		Status:              StatusQueued,
		Priority:            priority,
		QueuedAt:            now,
		EstimatedCompletion: now.Add(q.EstimateDuration(pr)),
	}

	q.mu.Lock()
	select {
	case q.pending <- job.ID:
		q.active[job.ID] = job
		q.totalQueued++
	default:
		q.totalRejected++
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.rejected.Inc()
		}
		return "", fmt.Errorf("%w: %d jobs pending", ErrQueueFull, q.cfg.MaxQueueSize)
	}
	depth := len(q.pending)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.queued.Inc()
		q.metrics.depth.Set(float64(depth))
	}
	q.mirrorStatus(ctx, job.ID, StatusQueued)
	q.logger.Info("analysis: job queued", "job_id", job.ID, "repository", repository, "pr", prNumber)
	return job.ID, nil
}

// GetNextJob waits up to WorkerIdleTimeout for a job, marks it processing
// for workerID and returns a snapshot. It returns nil, nil on idle timeout.
func (q *Queue) GetNextJob(ctx context.Context, workerID string) (*Job, error) {
	timer := time.NewTimer(q.cfg.WorkerIdleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case id := <-q.pending:
			q.mu.Lock()
			job, ok := q.active[id]
			if !ok || job.Status != StatusQueued {
				q.mu.Unlock()
				continue
			}
			job.Status = StatusProcessing
			job.StartedAt = q.now()
			job.WorkerID = workerID
			snap := job.clone()
			depth := len(q.pending)
			q.mu.Unlock()

			if q.metrics != nil {
				q.metrics.depth.Set(float64(depth))
			}
			q.mirrorStatus(ctx, id, StatusProcessing)
			return &snap, nil
		}
	}
}

// UpdateJobProgress records progress for a processing job. Progress never
// moves backwards.
func (q *Queue) UpdateJobProgress(jobID string, progress int, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.activeJob(jobID)
	if err != nil {
		return err
	}
	job.Progress = max(job.Progress, min(max(progress, 0), 100))
	if message != "" {
		job.ProgressMessage = message
	}
	return nil
}

// CompleteJob finishes a job with result.
func (q *Queue) CompleteJob(ctx context.Context, jobID string, result map[string]any) error {
	return q.finish(ctx, jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.ProgressMessage = "analysis complete"
		j.Result = result
		q.totalCompleted++
	})
}

// FailJob finishes a job with an error message.
func (q *Queue) FailJob(ctx context.Context, jobID, errMsg string) error {
	return q.finish(ctx, jobID, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = errMsg
		q.totalFailed++
	})
}

func (q *Queue) finish(ctx context.Context, jobID string, apply func(*Job)) error {
	q.mu.Lock()
	job, err := q.activeJob(jobID)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	apply(job)
	job.CompletedAt = q.now()
	delete(q.active, jobID)
	q.pushHistory(job)
	snap := job.clone()
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.finished.WithLabelValues(string(snap.Status)).Inc()
		if d := snap.Duration(); d > 0 {
			q.metrics.durations.Observe(d.Seconds())
		}
	}
	q.persist(ctx, snap)
	q.logger.Info("analysis: job finished", "job_id", jobID, "status", snap.Status, "duration", snap.Duration())
	return nil
}

// activeJob must be called with q.mu held.
func (q *Queue) activeJob(jobID string) (*Job, error) {
	if job, ok := q.active[jobID]; ok {
		return job, nil
	}
	if _, ok := q.history[jobID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}
	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}

// pushHistory must be called with q.mu held.
func (q *Queue) pushHistory(job *Job) {
	q.history[job.ID] = job
	q.order = append(q.order, job.ID)
	if over := len(q.order) - q.cfg.MaxHistory; over > 0 {
		for _, id := range q.order[:over] {
			delete(q.history, id)
		}
		q.order = slices.Delete(q.order, 0, over)
	}
}

func (q *Queue) persist(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			q.logger.Warn("analysis: persisting job failed", "job_id", job.ID, "error", err)
		}
	}
	q.mirrorStatus(ctx, job.ID, job.Status)
}

func (q *Queue) mirrorStatus(ctx context.Context, jobID string, status Status) {
	if q.mirror == nil {
		return
	}
	if err := q.mirror.SetJobStatus(ctx, jobID, string(status), q.cfg.StatusRetention); err != nil {
		q.logger.Warn("analysis: mirroring job status failed", "job_id", jobID, "error", err)
	}
}

// Job returns a snapshot of an in-memory job.
func (q *Queue) Job(jobID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.active[jobID]; ok {
		return job.clone(), true
	}
	if job, ok := q.history[jobID]; ok {
		return job.clone(), true
	}
	return Job{}, false
}

// Lookup finds a job in memory, then in the history store, then in the
// status mirror. A mirror hit carries only the id and status.
func (q *Queue) Lookup(ctx context.Context, jobID string) (Job, bool) {
	if job, ok := q.Job(jobID); ok {
		return job, true
	}
	if q.store != nil {
		job, ok, err := q.store.GetJob(ctx, jobID)
		if err != nil {
			q.logger.Warn("analysis: history lookup failed", "job_id", jobID, "error", err)
		} else if ok {
			return job, true
		}
	}
	if q.mirror != nil {
		status, ok, err := q.mirror.GetJobStatus(ctx, jobID)
		if err != nil {
			q.logger.Warn("analysis: mirror lookup failed", "job_id", jobID, "error", err)
		} else if ok {
			return Job{ID: jobID, Status: Status(status)}, true
		}
	}
	return Job{}, false
}

// QueueStatus summarizes the queue.
type QueueStatus struct {
	QueueSize      int     `json:"queue_size"`
	MaxQueueSize   int     `json:"max_queue_size"`
	Utilization    float64 `json:"utilization"`
	ActiveJobs     int     `json:"active_jobs"`
	Processing     int     `json:"processing"`
	HistorySize    int     `json:"history_size"`
	TotalQueued    int64   `json:"total_queued"`
	TotalCompleted int64   `json:"total_completed"`
	TotalFailed    int64   `json:"total_failed"`
	TotalRejected  int64   `json:"total_rejected"`
}

// Status returns the queue summary.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := QueueStatus{
		QueueSize:      len(q.pending),
		MaxQueueSize:   q.cfg.MaxQueueSize,
		ActiveJobs:     len(q.active),
		HistorySize:    len(q.history),
		TotalQueued:    q.totalQueued,
		TotalCompleted: q.totalCompleted,
		TotalFailed:    q.totalFailed,
		TotalRejected:  q.totalRejected,
	}
	for _, j := range q.active {
		if j.Status == StatusProcessing {
			s.Processing++
		}
	}
	s.Utilization = float64(s.QueueSize) / float64(s.MaxQueueSize)
	return s
}

// Cleanup expires results older than ResultRetention and forgets jobs
// older than StatusRetention. It returns the number of expired and removed
// jobs.
func (q *Queue) Cleanup(ctx context.Context, now time.Time) (expired, removed int) {
	resultCutoff := now.Add(-q.cfg.ResultRetention)
	statusCutoff := now.Add(-q.cfg.StatusRetention)

	q.mu.Lock()
	kept := q.order[:0]
	for _, id := range q.order {
		job := q.history[id]
		switch {
		case job.CompletedAt.Before(statusCutoff):
			delete(q.history, id)
			removed++
			continue
		case job.CompletedAt.Before(resultCutoff) && job.Status != StatusExpired:
			job.Status = StatusExpired
			job.Result = nil
			expired++
		}
		kept = append(kept, id)
	}
	q.order = kept
	q.mu.Unlock()

	if q.store != nil {
		if n, err := q.store.PurgeBefore(ctx, statusCutoff); err != nil {
			q.logger.Warn("analysis: purging job history failed", "error", err)
		} else if n > 0 {
			q.logger.Debug("analysis: purged stored jobs", "count", n)
		}
	}
	if expired > 0 || removed > 0 {
		q.logger.Info("analysis: cleanup", "expired", expired, "removed", removed)
	}
	return expired, removed
}

// RunCleanup calls Cleanup every CleanupInterval until ctx is done.
func (q *Queue) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Cleanup(ctx, q.now())
		}
	}
}
