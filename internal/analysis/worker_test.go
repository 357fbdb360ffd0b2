package analysis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/vibe-check/internal/monitor"
)

type staticFiles struct {
	files []File
	err   error
}

func (s staticFiles) PullRequestFiles(context.Context, string, int) ([]File, error) {
	return s.files, s.err
}

type idleSampler struct{}

func (idleSampler) SystemUsage(context.Context) (monitor.Usage, error) {
	return monitor.Usage{AvailableMemoryMB: 8000}, nil
}

func (idleSampler) ProcessUsage(context.Context, int32) (monitor.Usage, error) {
	return monitor.Usage{MemoryMB: 10}, nil
}

type panickyAnalyzer struct{ calls atomic.Int32 }

func (p *panickyAnalyzer) AnalyzeChunk(ctx context.Context, c Chunk) (ChunkResult, error) {
	if p.calls.Add(1) == 1 {
		panic("analyzer exploded")
	}
	return PatternAnalyzer{}.AnalyzeChunk(ctx, c)
}

type failingAnalyzer struct{}

func (failingAnalyzer) AnalyzeChunk(context.Context, Chunk) (ChunkResult, error) {
	return ChunkResult{}, errors.New("chunk analysis failed")
}

var prFiles = []File{
	{Filename: "client/stripe.go", Additions: 400, Patch: "+// build a custom client from scratch\n+type Client struct{}"},
	{Filename: "client/retry.go", Additions: 300, Patch: "+// temporary fix: retry until it works"},
	{Filename: "README.md", Additions: 20, Patch: "+docs"},
}

func startPool(t *testing.T, q *Queue, deps WorkerDeps, workers int) *WorkerManager {
	t.Helper()
	deps.Queue = q
	m := NewWorkerManager(WorkerConfig{MaxConcurrentWorkers: workers, ChunkLines: 500}, deps)
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m
}

func waitTerminal(t *testing.T, q *Queue, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = q.Job(id)
		return ok && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestWorker_CompletesJob(t *testing.T) {
	q := testQueue(t, nil)
	mon := monitor.New(monitor.DefaultLimits(), idleSampler{})
	m := startPool(t, q, WorkerDeps{Files: staticFiles{files: prFiles}, Registry: mon}, 1)

	id, err := q.QueueAnalysis(context.Background(), 5, "o/r", largePR, PriorityNormal)
	require.NoError(t, err)
	job := waitTerminal(t, q, id)

	require.Equal(t, StatusCompleted, job.Status, job.ErrorMessage)
	assert.Equal(t, 100, job.Progress)
	summary := job.Result["summary"].(map[string]any)
	assert.Equal(t, 3, summary["files"])
	assert.Equal(t, 2, summary["chunks"])
	assert.Equal(t, 720, summary["additions"])
	assert.NotEmpty(t, job.Result["recommendations"])
	assert.Zero(t, mon.ActiveJobs(), "job released from the resource monitor")

	require.Eventually(t, func() bool { return m.Statuses()[0].JobsProcessed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Running())
}

func TestWorker_PanicFailsJobAndLoopContinues(t *testing.T) {
	q := testQueue(t, nil)
	startPool(t, q, WorkerDeps{Files: staticFiles{files: prFiles[:1]}, Analyzer: &panickyAnalyzer{}}, 1)
	ctx := context.Background()

	first, err := q.QueueAnalysis(ctx, 1, "o/r", largePR, PriorityNormal)
	require.NoError(t, err)
	failed := waitTerminal(t, q, first)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "analyzer exploded")

	second, err := q.QueueAnalysis(ctx, 2, "o/r", largePR, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, waitTerminal(t, q, second).Status)
}

func TestWorker_FetchErrorFailsJob(t *testing.T) {
	q := testQueue(t, nil)
	startPool(t, q, WorkerDeps{Files: staticFiles{err: errors.New("github down")}}, 1)

	id, _ := q.QueueAnalysis(context.Background(), 1, "o/r", largePR, PriorityNormal)
	job := waitTerminal(t, q, id)

	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "github down")
}

func TestWorker_AllChunksFailingFailsJob(t *testing.T) {
	q := testQueue(t, nil)
	startPool(t, q, WorkerDeps{Files: staticFiles{files: prFiles}, Analyzer: failingAnalyzer{}}, 1)

	id, _ := q.QueueAnalysis(context.Background(), 1, "o/r", largePR, PriorityNormal)
	job := waitTerminal(t, q, id)

	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "chunks failed")
}

func TestWorkerManager_StopIsIdempotent(t *testing.T) {
	q := testQueue(t, nil)
	m := NewWorkerManager(WorkerConfig{MaxConcurrentWorkers: 3}, WorkerDeps{Queue: q})
	m.Start(context.Background())
	m.Start(context.Background())

	require.Eventually(t, func() bool { return m.Running() == 3 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	assert.Zero(t, m.Running())
	assert.Len(t, m.Statuses(), 3)
}
