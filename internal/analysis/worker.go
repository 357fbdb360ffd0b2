package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HendryAvila/vibe-check/internal/monitor"
)

// WorkerConfig configures workers.
type WorkerConfig struct {
	MaxConcurrentWorkers int           `yaml:"max_concurrent_workers"`
	ChunkLines           int           `yaml:"chunk_lines"`
	ChunkTimeout         time.Duration `yaml:"chunk_timeout"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
}

// DefaultWorkerConfig returns the worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxConcurrentWorkers: 2,
		ChunkLines:           500,
		ChunkTimeout:         2 * time.Minute,
		FetchTimeout:         time.Minute,
	}
}

// WorkerDeps are the collaborators shared by all workers. Registry and
// Analyzer may be nil.
type WorkerDeps struct {
	Queue    *Queue
	Files    FileSource
	Analyzer ChunkAnalyzer
	Registry Registry
	Logger   *slog.Logger
}

// Registry binds jobs to processes for resource tracking.
type Registry interface {
	RegisterJob(jobID string, pid int32)
	UnregisterJob(jobID string) (monitor.JobTracker, bool)
}

// Worker consumes jobs from the queue one at a time.
type Worker struct {
	id   string
	cfg  WorkerConfig
	deps WorkerDeps

	running   atomic.Bool
	processed atomic.Int64
	mu        sync.Mutex
	current   string
}

// NewWorker creates a worker.
func NewWorker(id string, cfg WorkerConfig, deps WorkerDeps) *Worker {
	def := DefaultWorkerConfig()
	if cfg.ChunkLines <= 0 {
		cfg.ChunkLines = def.ChunkLines
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = def.ChunkTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if deps.Analyzer == nil {
		deps.Analyzer = PatternAnalyzer{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Worker{id: id, cfg: cfg, deps: deps}
}

// WorkerStatus describes a worker.
type WorkerStatus struct {
	ID            string `json:"worker_id"`
	Running       bool   `json:"running"`
	CurrentJob    string `json:"current_job,omitempty"`
	JobsProcessed int64  `json:"jobs_processed"`
}

// Status returns the worker status.
func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{ID: w.id, Running: w.running.Load(), CurrentJob: w.current, JobsProcessed: w.processed.Load()}
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)
	w.deps.Logger.Debug("analysis: worker started", "worker_id", w.id)

	for {
		job, err := w.deps.Queue.GetNextJob(ctx, w.id)
		if err != nil {
			w.deps.Logger.Debug("analysis: worker stopped", "worker_id", w.id, "reason", err)
			return
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) setCurrent(id string) {
	w.mu.Lock()
	w.current = id
	w.mu.Unlock()
}

// process runs one job. Any error or panic fails the job; the worker loop
// continues either way.
func (w *Worker) process(ctx context.Context, job *Job) {
	w.setCurrent(job.ID)
	if w.deps.Registry != nil {
		w.deps.Registry.RegisterJob(job.ID, int32(os.Getpid()))
	}
	defer func() {
		if r := recover(); r != nil {
			w.deps.Logger.Error("analysis: worker panic", "worker_id", w.id, "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			w.fail(ctx, job.ID, fmt.Sprintf("internal error: %v", r))
		}
		if w.deps.Registry != nil {
			w.deps.Registry.UnregisterJob(job.ID)
		}
		w.processed.Add(1)
		w.setCurrent("")
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.deps.Queue.Config().MaxAnalysisDuration)
	defer cancel()

	result, err := w.analyze(jobCtx, job)
	if err != nil {
		w.fail(ctx, job.ID, err.Error())
		return
	}
	if err := w.deps.Queue.CompleteJob(ctx, job.ID, result); err != nil {
		w.deps.Logger.Warn("analysis: completing job failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, jobID, msg string) {
	if err := w.deps.Queue.FailJob(ctx, jobID, msg); err != nil && !errors.Is(err, ErrJobTerminal) {
		w.deps.Logger.Warn("analysis: failing job failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) progress(jobID string, pct int, msg string) {
	if err := w.deps.Queue.UpdateJobProgress(jobID, pct, msg); err != nil {
		w.deps.Logger.Debug("analysis: progress update ignored", "job_id", jobID, "error", err)
	}
}

func (w *Worker) analyze(ctx context.Context, job *Job) (map[string]any, error) {
	start := time.Now()
	w.progress(job.ID, 0, "starting analysis")

	if w.deps.Files == nil {
		return nil, errors.New("no pull request file source configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	files, err := w.deps.Files.PullRequestFiles(fetchCtx, job.Repository, job.PRNumber)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetching pull request files: %w", err)
	}
	w.progress(job.ID, 10, fmt.Sprintf("fetched %d files", len(files)))

	chunks := SplitChunks(files, w.cfg.ChunkLines)
	w.progress(job.ID, 20, fmt.Sprintf("split into %d chunks", len(chunks)))

	results := make([]ChunkResult, 0, len(chunks))
	failed := 0
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis timed out after %d of %d chunks: %w", i, len(chunks), err)
		}
		chunkCtx, cancel := context.WithTimeout(ctx, w.cfg.ChunkTimeout)
		res, err := w.deps.Analyzer.AnalyzeChunk(chunkCtx, c)
		cancel()
		if err != nil {
			failed++
			res = ChunkResult{Index: c.Index, Lines: c.Lines, Error: err.Error()}
			w.deps.Logger.Warn("analysis: chunk failed", "job_id", job.ID, "chunk", c.Index, "error", err)
		}
		results = append(results, res)
		w.progress(job.ID, chunkCheckpoint(i+1, len(chunks)), fmt.Sprintf("analyzed chunk %d/%d", i+1, len(chunks)))
	}
	if len(chunks) > 0 && failed == len(chunks) {
		return nil, fmt.Errorf("all %d chunks failed", failed)
	}

	return buildResult(job, files, results, failed, time.Since(start)), nil
}

// chunkCheckpoint maps chunk progress onto the 30..90 checkpoints.
func chunkCheckpoint(done, total int) int {
	if total == 0 {
		return 90
	}
	pct := 20 + 70*done/total
	return min(pct/10*10, 90)
}

func buildResult(job *Job, files []File, chunks []ChunkResult, failed int, took time.Duration) map[string]any {
	counts := map[string]int{}
	advice := map[string]string{}
	additions, deletions := 0, 0
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	for _, c := range chunks {
		for _, m := range c.Findings {
			counts[m.Pattern]++
			advice[m.Pattern] = m.Advice
		}
	}

	type patternSummary struct {
		Pattern string `json:"pattern"`
		Chunks  int    `json:"chunks"`
	}
	detected := make([]patternSummary, 0, len(counts))
	for p, n := range counts {
		detected = append(detected, patternSummary{Pattern: p, Chunks: n})
	}
	sort.Slice(detected, func(i, j int) bool {
		if detected[i].Chunks != detected[j].Chunks {
			return detected[i].Chunks > detected[j].Chunks
		}
		return detected[i].Pattern < detected[j].Pattern
	})

	recommendations := make([]string, 0, len(detected))
	for _, d := range detected {
		recommendations = append(recommendations, advice[d.Pattern])
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, "No common anti-patterns detected in the changed code.")
	}

	return map[string]any{
		"summary": map[string]any{
			"repository":    job.Repository,
			"pr_number":     job.PRNumber,
			"title":         job.PRData.Title,
			"files":         len(files),
			"additions":     additions,
			"deletions":     deletions,
			"chunks":        len(chunks),
			"failed_chunks": failed,
		},
		"patterns_detected": detected,
		"chunks":            chunks,
		"recommendations":   recommendations,
		"duration_seconds":  took.Seconds(),
	}
}
