package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/vibe-check/internal/monitor"
)

type fixedAdmission struct {
	ok     bool
	reason string
}

func (a fixedAdmission) ShouldAcceptNewJob() (bool, string) { return a.ok, a.reason }

func newTestService(t *testing.T, admission Admission, mutate func(*QueueConfig)) (*Service, *Queue) {
	t.Helper()
	q := testQueue(t, mutate)
	return NewService(ServiceDeps{Queue: q, Admission: admission}), q
}

func TestStart_LargePRIsQueued(t *testing.T) {
	svc, q := newTestService(t, fixedAdmission{ok: true}, nil)

	res, err := svc.Start(context.Background(), StartRequest{
		PRNumber:   42,
		Repository: "o/r",
		PRData:     map[string]any{"title": "x", "additions": 2000, "deletions": 500, "changed_files": 40},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusQueuedForAsync, res["status"])
	jobID, _ := res["job_id"].(string)
	assert.NotEmpty(t, jobID)
	size := res["immediate_analysis"].(map[string]any)["size_analysis"].(SizeAnalysis)
	assert.Contains(t, []string{SizeLarge, SizeVeryLarge, SizeMassive}, size.Category)
	assert.NotEmpty(t, res["instructions"])

	_, ok := q.Job(jobID)
	assert.True(t, ok)
}

func TestStart_SmallPRIsNotSuitable(t *testing.T) {
	svc, q := newTestService(t, fixedAdmission{ok: true}, nil)

	res, err := svc.Start(context.Background(), StartRequest{
		PRNumber:   42,
		Repository: "o/r",
		PRData:     map[string]any{"title": "x", "additions": 50, "deletions": 10, "changed_files": 2},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusNotSuitable, res["status"])
	assert.Zero(t, q.Status().TotalQueued)
}

func TestStatus_UnknownJobIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	res, err := svc.Status(context.Background(), "nonexistent-job")

	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res["status"])
}

func TestStatus_FoundAfterStart(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	started, err := svc.Start(context.Background(), StartRequest{
		PRNumber: "7", Repository: "o/r",
		PRData: map[string]any{"additions": 6000, "changed_files": 10},
	})
	require.NoError(t, err)

	res, err := svc.Status(context.Background(), started["job_id"].(string))

	require.NoError(t, err)
	assert.Equal(t, StatusFound, res["status"])
	assert.Equal(t, StatusQueued, res["job_status"].(Job).Status)
}

func TestStart_ValidationErrors(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()
	data := map[string]any{"additions": 6000}

	tests := []struct {
		name  string
		req   StartRequest
		field string
	}{
		{"bad repository", StartRequest{PRNumber: 1, Repository: "a/b..c", PRData: data}, "repository"},
		{"bad pr number", StartRequest{PRNumber: 0, Repository: "o/r", PRData: data}, "pr_number"},
		{"bad priority", StartRequest{PRNumber: 1, Repository: "o/r", PRData: data, Priority: "urgent"}, "priority"},
		{"negative counts", StartRequest{PRNumber: 1, Repository: "o/r", PRData: map[string]any{"additions": -1}}, "pr_data"},
		{"wrong types", StartRequest{PRNumber: 1, Repository: "o/r", PRData: map[string]any{"additions": "many"}}, "pr_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Start(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, StatusValidationError, res["status"])
			assert.Equal(t, tt.field, res["field"])
		})
	}

	res, err := svc.Status(ctx, "../etc")
	require.NoError(t, err)
	assert.Equal(t, StatusValidationError, res["status"])
}

func TestStart_ResourceLimited(t *testing.T) {
	limits := monitor.DefaultLimits()
	limits.MaxConcurrentJobs = 1
	mon := monitor.New(limits, idleSampler{})
	mon.RegisterJob("busy", 1)
	svc, _ := newTestService(t, mon, nil)

	res, err := svc.Start(context.Background(), StartRequest{
		PRNumber: 1, Repository: "o/r", PRData: map[string]any{"additions": 6000},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusResourceLimited, res["status"])
	assert.Contains(t, res["reason"], "jobs")
}

func TestStart_QueueFull(t *testing.T) {
	svc, _ := newTestService(t, nil, func(c *QueueConfig) { c.MaxQueueSize = 1 })
	req := StartRequest{PRNumber: 1, Repository: "o/r", PRData: map[string]any{"additions": 6000}}

	first, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusQueuedForAsync, first["status"])

	second, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusQueueFull, second["status"])
}

func TestOverallStatus(t *testing.T) {
	q := testQueue(t, nil)
	m := NewWorkerManager(WorkerConfig{MaxConcurrentWorkers: 2}, WorkerDeps{Queue: q})
	mon := monitor.New(monitor.DefaultLimits(), idleSampler{})
	svc := NewService(ServiceDeps{Queue: q, Workers: m, Resources: mon})

	st, err := svc.OverallStatus(context.Background())

	require.NoError(t, err)
	assert.Len(t, st.Workers, 2)
	assert.Zero(t, st.RunningWorkers)
	require.NotNil(t, st.Resources)
	assert.Equal(t, 10, st.Queue.MaxQueueSize)
}
