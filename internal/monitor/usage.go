package monitor

import (
	"slices"
	"time"
)

// Usage is one resource sample, either system-wide or for a single process.
type Usage struct {
	Timestamp         time.Time `json:"timestamp"`
	MemoryMB          float64   `json:"memory_mb"`
	MemoryPercent     float64   `json:"memory_percent"`
	AvailableMemoryMB float64   `json:"available_memory_mb"`
	CPUPercent        float64   `json:"cpu_percent"`
	DiskPercent       float64   `json:"disk_percent"`
	NetBytesSent      uint64    `json:"net_bytes_sent"`
	NetBytesRecv      uint64    `json:"net_bytes_recv"`
}

// Limits are the admission and alerting thresholds.
type Limits struct {
	MaxTotalMemoryMB  float64 `yaml:"max_total_memory_mb"`
	MaxJobMemoryMB    float64 `yaml:"max_job_memory_mb"`
	MaxConcurrentJobs int     `yaml:"max_concurrent_jobs"`
	MaxCPUPercent     float64 `yaml:"max_cpu_percent"`

	// Hard ceilings on system-wide utilization.
	CriticalCPUPercent    float64 `yaml:"critical_cpu_percent"`
	CriticalMemoryPercent float64 `yaml:"critical_memory_percent"`
}

// DefaultLimits returns the default thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalMemoryMB:      2048,
		MaxJobMemoryMB:        512,
		MaxConcurrentJobs:     3,
		MaxCPUPercent:         80,
		CriticalCPUPercent:    90,
		CriticalMemoryPercent: 80,
	}
}

const (
	trackerHistorySize = 100
	warningRatio       = 0.8
)

// JobTracker follows the resource usage of one analysis job.
type JobTracker struct {
	JobID        string    `json:"job_id"`
	PID          int32     `json:"pid"`
	StartTime    time.Time `json:"start_time"`
	PeakMemoryMB float64   `json:"peak_memory_mb"`
	History      []Usage   `json:"-"`
	Violations   []string  `json:"violations"`
}

// Latest returns the most recent sample, if any.
func (t *JobTracker) Latest() (Usage, bool) {
	if len(t.History) == 0 {
		return Usage{}, false
	}
	return t.History[len(t.History)-1], true
}

func (t *JobTracker) record(u Usage) {
	t.History = append(t.History, u)
	if over := len(t.History) - trackerHistorySize; over > 0 {
		t.History = slices.Delete(t.History, 0, over)
	}
	t.PeakMemoryMB = max(t.PeakMemoryMB, u.MemoryMB)
}

// addViolation appends msg unless it was already recorded.
func (t *JobTracker) addViolation(msg string) bool {
	if slices.Contains(t.Violations, msg) {
		return false
	}
	t.Violations = append(t.Violations, msg)
	return true
}

func (t *JobTracker) clone() JobTracker {
	c := *t
	c.History = slices.Clone(t.History)
	c.Violations = slices.Clone(t.Violations)
	return c
}

// LimitCheck is the result of CheckSystemLimits.
type LimitCheck struct {
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}

// OK reports whether there are no violations.
func (c LimitCheck) OK() bool { return len(c.Violations) == 0 }
