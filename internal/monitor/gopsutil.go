package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrProcessGone is returned by OSSampler.ProcessUsage for a pid that no
// longer exists.
var ErrProcessGone = errors.New("monitor: process not running")

// OSSampler reads resource counters from the operating system.
type OSSampler interface {
	SystemUsage(ctx context.Context) (Usage, error)
	ProcessUsage(ctx context.Context, pid int32) (Usage, error)
}

const bytesPerMB = 1024 * 1024

// GopsutilSampler is the production OSSampler.
type GopsutilSampler struct {
	// DiskPath is the mount point reported in DiskPercent. Defaults to "/".
	DiskPath string
}

// SystemUsage implements OSSampler. Memory is required; CPU, disk and
// network readings are best effort.
func (g GopsutilSampler) SystemUsage(ctx context.Context) (Usage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("monitor: virtual memory: %w", err)
	}
	u := Usage{
		Timestamp:         time.Now(),
		MemoryMB:          float64(vm.Used) / bytesPerMB,
		MemoryPercent:     vm.UsedPercent,
		AvailableMemoryMB: float64(vm.Available) / bytesPerMB,
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		u.CPUPercent = pcts[0]
	}

	path := g.DiskPath
	if path == "" {
		path = "/"
	}
	if du, err := disk.UsageWithContext(ctx, path); err == nil {
		u.DiskPercent = du.UsedPercent
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		u.NetBytesSent = counters[0].BytesSent
		u.NetBytesRecv = counters[0].BytesRecv
	}
	return u, nil
}

// ProcessUsage implements OSSampler.
func (GopsutilSampler) ProcessUsage(ctx context.Context, pid int32) (Usage, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return Usage{}, ErrProcessGone
		}
		return Usage{}, fmt.Errorf("monitor: process %d: %w", pid, err)
	}

	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		if running, rerr := p.IsRunningWithContext(ctx); rerr == nil && !running {
			return Usage{}, ErrProcessGone
		}
		return Usage{}, fmt.Errorf("monitor: process %d memory: %w", pid, err)
	}
	u := Usage{Timestamp: time.Now(), MemoryMB: float64(mi.RSS) / bytesPerMB}
	if pct, err := p.MemoryPercentWithContext(ctx); err == nil {
		u.MemoryPercent = float64(pct)
	}
	if pct, err := p.CPUPercentWithContext(ctx); err == nil {
		u.CPUPercent = pct
	}
	return u, nil
}
