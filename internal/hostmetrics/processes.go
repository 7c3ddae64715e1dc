package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	"github.com/rs/zerolog/log"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleDelay is the CPU accounting window between the two ranking phases.
const DefaultSampleDelay = time.Second

// ProcessRecord is one ranked process observation.
type ProcessRecord struct {
	PID           int64   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	CommandLine   string  `json:"commandLine,omitempty"`
}

// RankOptions controls RankProcesses.
type RankOptions struct {
	Limit       int           // <= 0 returns every surviving process
	SampleDelay time.Duration // defaults to DefaultSampleDelay when zero
	Exclude     []string      // wildcard patterns matched against process names
}

// processHandle is the subset of a gopsutil process the ranker needs.
type processHandle interface {
	PID() int64
	NameWithContext(ctx context.Context) (string, error)
	PercentWithContext(ctx context.Context, interval time.Duration) (float64, error)
	MemoryPercentWithContext(ctx context.Context) (float32, error)
	CmdlineSliceWithContext(ctx context.Context) ([]string, error)
}

type gopsutilProcess struct {
	*goprocess.Process
}

func (p gopsutilProcess) PID() int64 {
	return int64(p.Pid)
}

// Process enumeration and sleeping are swapped out in tests.
var (
	listProcesses = func(ctx context.Context) ([]processHandle, error) {
		procs, err := goprocess.ProcessesWithContext(ctx)
		if err != nil {
			return nil, err
		}
		handles := make([]processHandle, 0, len(procs))
		for _, p := range procs {
			handles = append(handles, gopsutilProcess{p})
		}
		return handles, nil
	}
	sleepFn = sleepContext
)

type primedProcess struct {
	handle processHandle
	name   string
}

// RankProcesses samples per-process CPU share over opts.SampleDelay and returns
// the processes sorted by CPU usage, highest first. The first Percent call on
// each process only establishes a baseline; its value is meaningless and is
// discarded. Processes that exit or deny access during either phase are
// skipped. Equal CPU values keep enumeration order.
func RankProcesses(ctx context.Context, opts RankOptions) ([]ProcessRecord, error) {
	delay := opts.SampleDelay
	if delay <= 0 {
		delay = DefaultSampleDelay
	}

	handles, err := listProcesses(ctx)
	if err != nil {
		return nil, pulseerrors.WrapProviderError("list_processes", err)
	}

	primed := make([]primedProcess, 0, len(handles))
	for _, h := range handles {
		name, err := h.NameWithContext(ctx)
		if err != nil {
			if isVanished(err) {
				continue
			}
			return nil, pulseerrors.WrapProviderError("process_name", fmt.Errorf("pid %d: %w", h.PID(), err))
		}
		if excluded(name, opts.Exclude) {
			continue
		}
		if _, err := h.PercentWithContext(ctx, 0); err != nil {
			if isVanished(err) {
				continue
			}
			return nil, pulseerrors.WrapProviderError("prime_cpu", fmt.Errorf("pid %d: %w", h.PID(), err))
		}
		primed = append(primed, primedProcess{handle: h, name: name})
	}

	if err := sleepFn(ctx, delay); err != nil {
		return nil, err
	}

	records := make([]ProcessRecord, 0, len(primed))
	for _, p := range primed {
		record, err := readProcess(ctx, p)
		if err != nil {
			if isVanished(err) {
				log.Debug().Int64("pid", p.handle.PID()).Err(err).Msg("Process vanished during ranking")
				continue
			}
			return nil, pulseerrors.WrapProviderError("read_process", fmt.Errorf("pid %d: %w", p.handle.PID(), err))
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CPUPercent > records[j].CPUPercent
	})

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

func readProcess(ctx context.Context, p primedProcess) (ProcessRecord, error) {
	cpu, err := p.handle.PercentWithContext(ctx, 0)
	if err != nil {
		return ProcessRecord{}, err
	}
	mem, err := p.handle.MemoryPercentWithContext(ctx)
	if err != nil {
		return ProcessRecord{}, err
	}
	args, err := p.handle.CmdlineSliceWithContext(ctx)
	if err != nil {
		return ProcessRecord{}, err
	}
	if cpu < 0 {
		cpu = 0
	}

	return ProcessRecord{
		PID:           p.handle.PID(),
		Name:          p.name,
		CPUPercent:    cpu,
		MemoryPercent: float64(mem),
		CommandLine:   strings.Join(args, " "),
	}, nil
}

// isVanished reports whether err means the process exited or is not ours to read.
func isVanished(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, goprocess.ErrorProcessNotRunning) ||
		errors.Is(err, pulseerrors.ErrProcessVanished) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, syscall.ESRCH) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.EACCES)
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if wildcard.Match(pattern, name) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
