package hostmetrics

import (
	"context"
	"fmt"
	"time"

	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	gomem "github.com/shirou/gopsutil/v4/mem"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

// System call wrappers for testing
var (
	cpuCounts     = gocpu.CountsWithContext
	cpuPercent    = gocpu.PercentWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	processPids   = goprocess.PidsWithContext
	nowFn         = time.Now
)

// cpuSampleWindow is how long Collect measures system-wide CPU utilisation.
var cpuSampleWindow = time.Second

// Sample represents one point-in-time host resource snapshot.
type Sample struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpuPercent"`
	MemoryPercent    float64   `json:"memoryPercent"`
	MemoryUsedBytes  uint64    `json:"memoryUsedBytes"`
	MemoryTotalBytes uint64    `json:"memoryTotalBytes"`
	CPUCount         uint32    `json:"cpuCount"`
	ProcessCount     uint32    `json:"processCount"`
}

// MemoryUsedGB returns used memory in GiB.
func (s Sample) MemoryUsedGB() float64 {
	return float64(s.MemoryUsedBytes) / (1 << 30)
}

// MemoryTotalGB returns total memory in GiB.
func (s Sample) MemoryTotalGB() float64 {
	return float64(s.MemoryTotalBytes) / (1 << 30)
}

// Collect gathers a point-in-time snapshot of host resource utilisation.
// Failure to read CPU or memory statistics means the provider is unusable and
// is reported as ErrProviderUnavailable.
func Collect(ctx context.Context) (Sample, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second+cpuSampleWindow)
	defer cancel()

	sample := Sample{Timestamp: nowFn()}

	cpuUsage, err := collectCPUUsage(collectCtx)
	if err != nil {
		if ctx.Err() != nil {
			return Sample{}, ctx.Err()
		}
		return Sample{}, pulseerrors.WrapProviderError("collect_cpu", fmt.Errorf("cpu stats: %w", err))
	}
	sample.CPUPercent = cpuUsage

	memStats, err := virtualMemory(collectCtx)
	if err != nil {
		return Sample{}, pulseerrors.WrapProviderError("collect_memory", fmt.Errorf("memory stats: %w", err))
	}

	sample.MemoryTotalBytes = memStats.Total
	sample.MemoryUsedBytes = memStats.Used
	if sample.MemoryUsedBytes > sample.MemoryTotalBytes {
		sample.MemoryUsedBytes = sample.MemoryTotalBytes
	}
	sample.MemoryPercent = clampPercent(memStats.UsedPercent)

	if count, err := cpuCounts(collectCtx, true); err == nil && count > 0 {
		sample.CPUCount = uint32(count)
	}

	if pids, err := processPids(collectCtx); err == nil {
		sample.ProcessCount = uint32(len(pids))
	}

	return sample, nil
}

func collectCPUUsage(ctx context.Context) (float64, error) {
	percentages, err := cpuPercent(ctx, cpuSampleWindow, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return clampPercent(percentages[0]), nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Provider exposes the host metrics capability through a value that can be
// handed to components expecting an interface.
type Provider struct{}

// Collect implements the sampler contract using the host's counters.
func (Provider) Collect(ctx context.Context) (Sample, error) {
	return Collect(ctx)
}

// RankProcesses implements the process ranker contract using the host's process table.
func (Provider) RankProcesses(ctx context.Context, opts RankOptions) ([]ProcessRecord, error) {
	return RankProcesses(ctx, opts)
}
