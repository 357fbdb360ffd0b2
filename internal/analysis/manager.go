package analysis

import (
	"context"
	"fmt"
	"sync"
)

// WorkerManager owns a fixed pool of workers.
type WorkerManager struct {
	workers []*Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager creates MaxConcurrentWorkers workers sharing deps.
func NewWorkerManager(cfg WorkerConfig, deps WorkerDeps) *WorkerManager {
	n := cfg.MaxConcurrentWorkers
	if n <= 0 {
		n = DefaultWorkerConfig().MaxConcurrentWorkers
	}
	m := &WorkerManager{}
	for i := range n {
		m.workers = append(m.workers, NewWorker(fmt.Sprintf("worker-%d", i+1), cfg, deps))
	}
	return m
}

// Start launches every worker. Calling Start on a started manager is a no-op.
func (m *WorkerManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	for _, w := range m.workers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Stop cancels all workers and waits for them to return. A job in progress
// is finished or failed before its worker exits.
func (m *WorkerManager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

// Statuses returns the status of every worker.
func (m *WorkerManager) Statuses() []WorkerStatus {
	out := make([]WorkerStatus, len(m.workers))
	for i, w := range m.workers {
		out[i] = w.Status()
	}
	return out
}

// Running returns the number of running workers.
func (m *WorkerManager) Running() int {
	n := 0
	for _, w := range m.workers {
		if w.running.Load() {
			n++
		}
	}
	return n
}
