package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rcourtman/pulse-anomaly/internal/ai/analysis"
	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
	"github.com/rcourtman/pulse-anomaly/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewConsole(&buf, Options{NoColor: true}), &buf
}

func u64(v uint64) *uint64 { return &v }

func dur(d time.Duration) *time.Duration { return &d }

func TestFormatStatsAllFields(t *testing.T) {
	lines := FormatStats(providers.Stats{
		PromptTokens:     u64(120),
		CompletionTokens: u64(30),
		TotalDuration:    dur(3456 * time.Millisecond),
		EvalDuration:     dur(2 * time.Second),
		LoadDuration:     dur(125 * time.Millisecond),
	})

	assert.Equal(t, []string{
		"Prompt tokens: 120",
		"Completion tokens: 30",
		"Total tokens: 150",
		"Total time: 3.46s",
		"Generation time: 2.00s",
		"Model load time: 0.12s",
	}, lines)
}

func TestFormatStatsOmitsUnreported(t *testing.T) {
	lines := FormatStats(providers.Stats{
		CompletionTokens: u64(5),
		LoadDuration:     dur(0),
	})
	assert.Equal(t, []string{"Completion tokens: 5"}, lines)

	assert.Empty(t, FormatStats(providers.Stats{}))
}

func TestFormatStatsZeroTokensAreReported(t *testing.T) {
	lines := FormatStats(providers.Stats{PromptTokens: u64(0), CompletionTokens: u64(0)})
	assert.Equal(t, []string{"Prompt tokens: 0", "Completion tokens: 0", "Total tokens: 0"}, lines)
}

func TestConsoleSample(t *testing.T) {
	c, buf := newTestConsole()
	sample := hostmetrics.Sample{
		Timestamp:        time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		CPUPercent:       95.04,
		MemoryPercent:    40,
		MemoryUsedBytes:  4 << 30,
		MemoryTotalBytes: 16 << 30,
		CPUCount:         8,
		ProcessCount:     312,
	}

	c.Sample(sample, true, []string{"cpu"})
	out := buf.String()
	assert.Contains(t, out, "[2026-10-19T12:00:00Z]")
	assert.Contains(t, out, "CPU: 95.0% | Memory: 40.0% (4.00GB / 16.00GB)")
	assert.Contains(t, out, "Processes: 312 | CPU cores: 8")
	assert.Contains(t, out, "ANOMALY DETECTED (cpu)")
	assert.NotContains(t, out, "Status normal")

	buf.Reset()
	c.Sample(sample, false, nil)
	assert.Contains(t, buf.String(), "Status normal")
}

func TestConsoleProcesses(t *testing.T) {
	c, buf := newTestConsole()
	c.Processes([]hostmetrics.ProcessRecord{{PID: 42, Name: "ffmpeg", CPUPercent: 180, MemoryPercent: 3.25}})
	assert.Equal(t, "Top processes (CPU):\n      42 ffmpeg                   : 180.0% CPU, 3.2% MEM\n", buf.String())

	buf.Reset()
	c.Processes(nil)
	assert.Empty(t, buf.String())
}

func TestConsoleStreamedAnalysis(t *testing.T) {
	c, buf := newTestConsole()

	c.AnalysisStarted(analysis.Request{ID: "01J"})
	c.ReasoningStarted()
	c.ReasoningDelta("look")
	c.ReasoningDelta("ing")
	c.ReasoningEnded()
	c.AnswerDelta("ffmpeg ")
	c.AnswerDelta("is busy")
	c.AnalysisFinished(analysis.Result{Answer: "ffmpeg is busy", Stats: providers.Stats{CompletionTokens: u64(3)}})

	out := buf.String()
	assert.Contains(t, out, "LLM analysis:")
	assert.Contains(t, out, "Model thinking...\n\nlooking\n\nffmpeg is busy\n")
	assert.Contains(t, out, "Query statistics:\n  Completion tokens: 3\n")
	assert.Equal(t, 2, strings.Count(out, strings.Repeat("-", ruleWidth)))
}

func TestConsoleErrorClosesAnalysis(t *testing.T) {
	c, buf := newTestConsole()

	c.AnalysisStarted(analysis.Request{})
	c.AnswerDelta("partial")
	c.Error("analyze", pulseerrors.Truncated("generate", errors.New("connection reset")))

	out := buf.String()
	assert.Contains(t, out, "Error [truncated] analyze:")
	assert.Contains(t, out, "connection reset")
	assert.Equal(t, 2, strings.Count(out, strings.Repeat("-", ruleWidth)))

	buf.Reset()
	c.Error("collect", errors.New("blip"))
	assert.Equal(t, "  Error [internal] collect: blip\n", buf.String())
}

func TestConsoleSummary(t *testing.T) {
	c, buf := newTestConsole()
	c.Summary(monitor.Summary{
		Count:     3,
		Anomalies: 1,
		CPU:       monitor.Stat{Mean: 50, Min: 10, Max: 90},
		Memory:    monitor.Stat{Mean: 40.04, Min: 20, Max: 60},
	})

	out := buf.String()
	assert.Contains(t, out, "SESSION SUMMARY")
	assert.Contains(t, out, "Samples: 3\nAnomalies detected: 1\n")
	assert.Contains(t, out, "CPU:\n  Mean: 50.0%\n  Min: 10.0% | Max: 90.0%\n")
	assert.Contains(t, out, "Memory:\n  Mean: 40.0%\n  Min: 20.0% | Max: 60.0%\n")
}

func TestConsoleSummaryNoData(t *testing.T) {
	c, buf := newTestConsole()
	c.Summary(monitor.Summary{NoData: true})
	assert.Contains(t, buf.String(), "No data collected")
	assert.NotContains(t, buf.String(), "Mean")
}

func TestConsoleBanner(t *testing.T) {
	c, buf := newTestConsole()
	c.Banner("qwen3:8b", time.Minute, 10*time.Second)
	c.BackendReady([]providers.ModelInfo{{Name: "a"}, {Name: "b"}})
	c.Hint("Make sure Ollama is running")

	out := buf.String()
	assert.Contains(t, out, "Monitoring for 1m0s")
	assert.Contains(t, out, "Model: qwen3:8b")
	assert.Contains(t, out, "Interval: 10s")
	assert.Contains(t, out, "Available models: 2")
	assert.Contains(t, out, "  Make sure Ollama is running\n")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	summary := monitor.Summary{Count: 1, CPU: monitor.Stat{Mean: 12, Min: 12, Max: 12}}
	samples := []hostmetrics.Sample{{CPUPercent: 12}}

	require.NoError(t, WriteJSON(&buf, "run-1", summary, samples))

	var decoded struct {
		RunID   string               `json:"runId"`
		Summary monitor.Summary      `json:"summary"`
		Samples []hostmetrics.Sample `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, summary, decoded.Summary)
	require.Len(t, decoded.Samples, 1)
	assert.Equal(t, 12.0, decoded.Samples[0].CPUPercent)
}

func TestWriteJSONEmptySamples(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, "", monitor.Summary{NoData: true}, nil))
	assert.Contains(t, buf.String(), `"samples": []`)
	assert.Contains(t, buf.String(), `"noData": true`)
}

var _ monitor.Reporter = (*Console)(nil)
