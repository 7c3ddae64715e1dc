package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	goprocess "github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid     int64
	name    string
	cpu     float64
	mem     float32
	cmdline []string

	nameErr  error
	primeErr error
	readErr  error
	memErr   error

	percentCalls int
}

func (p *fakeProcess) PID() int64 { return p.pid }

func (p *fakeProcess) NameWithContext(ctx context.Context) (string, error) {
	return p.name, p.nameErr
}

func (p *fakeProcess) PercentWithContext(ctx context.Context, interval time.Duration) (float64, error) {
	p.percentCalls++
	if p.percentCalls == 1 {
		if p.primeErr != nil {
			return 0, p.primeErr
		}
		// Baseline reading is garbage by design; make it obvious if it leaks.
		return 9999, nil
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	return p.cpu, nil
}

func (p *fakeProcess) MemoryPercentWithContext(ctx context.Context) (float32, error) {
	return p.mem, p.memErr
}

func (p *fakeProcess) CmdlineSliceWithContext(ctx context.Context) ([]string, error) {
	return p.cmdline, nil
}

func stubProcesses(t *testing.T, procs ...*fakeProcess) *[]time.Duration {
	t.Helper()

	origList := listProcesses
	origSleep := sleepFn
	t.Cleanup(func() {
		listProcesses = origList
		sleepFn = origSleep
	})

	listProcesses = func(ctx context.Context) ([]processHandle, error) {
		handles := make([]processHandle, 0, len(procs))
		for _, p := range procs {
			handles = append(handles, p)
		}
		return handles, nil
	}

	var sleeps []time.Duration
	sleepFn = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return &sleeps
}

func TestRankProcessesSortsByCPUDescending(t *testing.T) {
	sleeps := stubProcesses(t,
		&fakeProcess{pid: 1, name: "init", cpu: 0.1, mem: 0.2},
		&fakeProcess{pid: 2, name: "postgres", cpu: 55, mem: 12, cmdline: []string{"postgres", "-D", "/data"}},
		&fakeProcess{pid: 3, name: "ffmpeg", cpu: 180, mem: 3},
	)

	records, err := RankProcesses(context.Background(), RankOptions{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(3), records[0].PID)
	assert.Equal(t, 180.0, records[0].CPUPercent, "multi-core share may exceed 100")
	assert.Equal(t, "postgres", records[1].Name)
	assert.Equal(t, "postgres -D /data", records[1].CommandLine)
	assert.Equal(t, "", records[2].CommandLine)

	assert.Equal(t, []time.Duration{DefaultSampleDelay}, *sleeps)
}

func TestRankProcessesDiscardsBaseline(t *testing.T) {
	stubProcesses(t, &fakeProcess{pid: 7, name: "idle", cpu: 1.5})

	records, err := RankProcesses(context.Background(), RankOptions{SampleDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1.5, records[0].CPUPercent)
}

func TestRankProcessesLimit(t *testing.T) {
	procs := make([]*fakeProcess, 0, 20)
	for i := 0; i < 20; i++ {
		procs = append(procs, &fakeProcess{pid: int64(i + 1), name: fmt.Sprintf("p%d", i), cpu: float64(i % 7)})
	}
	stubProcesses(t, procs...)

	records, err := RankProcesses(context.Background(), RankOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i := 1; i < len(records); i++ {
		assert.GreaterOrEqual(t, records[i-1].CPUPercent, records[i].CPUPercent)
	}
}

func TestRankProcessesLimitLargerThanPopulation(t *testing.T) {
	stubProcesses(t,
		&fakeProcess{pid: 1, name: "a", cpu: 1},
		&fakeProcess{pid: 2, name: "b", cpu: 2},
	)

	records, err := RankProcesses(context.Background(), RankOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRankProcessesStableTies(t *testing.T) {
	stubProcesses(t,
		&fakeProcess{pid: 10, name: "first", cpu: 5},
		&fakeProcess{pid: 11, name: "second", cpu: 5},
		&fakeProcess{pid: 12, name: "top", cpu: 9},
		&fakeProcess{pid: 13, name: "third", cpu: 5},
	)

	records, err := RankProcesses(context.Background(), RankOptions{})
	require.NoError(t, err)

	pids := make([]int64, 0, len(records))
	for _, r := range records {
		pids = append(pids, r.PID)
	}
	assert.Equal(t, []int64{12, 10, 11, 13}, pids)
}

func TestRankProcessesSkipsVanishedAndDenied(t *testing.T) {
	stubProcesses(t,
		&fakeProcess{pid: 1, name: "gone-early", primeErr: goprocess.ErrorProcessNotRunning},
		&fakeProcess{pid: 2, name: "denied-early", nameErr: os.ErrPermission},
		&fakeProcess{pid: 3, name: "gone-late", readErr: fmt.Errorf("stat: %w", os.ErrNotExist)},
		&fakeProcess{pid: 4, name: "denied-late", cpu: 3, memErr: os.ErrPermission},
		&fakeProcess{pid: 5, name: "survivor", cpu: 2},
	)

	records, err := RankProcesses(context.Background(), RankOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "survivor", records[0].Name)
}

func TestRankProcessesOtherFailuresAreProviderErrors(t *testing.T) {
	stubProcesses(t,
		&fakeProcess{pid: 1, name: "weird", cpu: 1, readErr: errors.New("disk on fire")},
	)

	_, err := RankProcesses(context.Background(), RankOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, pulseerrors.ErrProviderUnavailable)
}

func TestRankProcessesListFailure(t *testing.T) {
	stubProcesses(t)
	listProcesses = func(ctx context.Context) ([]processHandle, error) {
		return nil, errors.New("procfs unavailable")
	}

	_, err := RankProcesses(context.Background(), RankOptions{})
	assert.ErrorIs(t, err, pulseerrors.ErrProviderUnavailable)
}

func TestRankProcessesExcludePatterns(t *testing.T) {
	stubProcesses(t,
		&fakeProcess{pid: 1, name: "kworker/0:1", cpu: 50},
		&fakeProcess{pid: 2, name: "pulse-anomaly", cpu: 40},
		&fakeProcess{pid: 3, name: "java", cpu: 30},
	)

	records, err := RankProcesses(context.Background(), RankOptions{Exclude: []string{"kworker*", " ", "pulse-*"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "java", records[0].Name)
}

func TestRankProcessesCancelledDuringDelay(t *testing.T) {
	stubProcesses(t, &fakeProcess{pid: 1, name: "a", cpu: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RankProcesses(ctx, RankOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestIsVanished(t *testing.T) {
	assert.False(t, isVanished(nil))
	assert.True(t, isVanished(goprocess.ErrorProcessNotRunning))
	assert.True(t, isVanished(fmt.Errorf("wrapped: %w", pulseerrors.ErrProcessVanished)))
	assert.False(t, isVanished(errors.New("other")))
}
