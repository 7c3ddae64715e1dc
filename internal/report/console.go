// Package report renders a monitoring run as human-readable text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rcourtman/pulse-anomaly/internal/ai/analysis"
	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
	"github.com/rcourtman/pulse-anomaly/internal/monitor"
)

const ruleWidth = 60

// Options configures a Console.
type Options struct {
	NoColor bool
}

// Console writes the run report to an io.Writer. Live text is written as it
// arrives, unbuffered.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	anomaly *color.Color
	normal  *color.Color
	failure *color.Color
	heading *color.Color
	muted   *color.Color

	analysisOpen bool
}

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer, opts Options) *Console {
	c := &Console{
		out:     out,
		anomaly: color.New(color.FgRed, color.Bold),
		normal:  color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		heading: color.New(color.Bold),
		muted:   color.New(color.Faint),
	}
	if opts.NoColor {
		for _, col := range []*color.Color{c.anomaly, c.normal, c.failure, c.heading, c.muted} {
			col.DisableColor()
		}
	}
	return c
}

// Banner announces a monitoring run.
func (c *Console) Banner(model string, duration, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.heading.Fprintf(c.out, "Monitoring for %s\n", duration)
	fmt.Fprintf(c.out, "  Model: %s\n", model)
	fmt.Fprintf(c.out, "  Interval: %s\n\n", interval)
}

// BackendReady reports a successful backend check.
func (c *Console) BackendReady(models []providers.ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.normal.Fprintln(c.out, "Ollama available")
	fmt.Fprintf(c.out, "  Available models: %d\n\n", len(models))
}

// Sample reports one sample and its classification.
func (c *Console) Sample(sample hostmetrics.Sample, anomalous bool, reasons []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s]\n", sample.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(c.out, "  CPU: %.1f%% | Memory: %.1f%% (%.2fGB / %.2fGB)\n",
		sample.CPUPercent, sample.MemoryPercent, sample.MemoryUsedGB(), sample.MemoryTotalGB())
	fmt.Fprintf(c.out, "  Processes: %d | CPU cores: %d\n", sample.ProcessCount, sample.CPUCount)

	if anomalous {
		c.anomaly.Fprintf(c.out, "  ANOMALY DETECTED (%s)\n", strings.Join(reasons, ", "))
		return
	}
	c.normal.Fprintln(c.out, "  Status normal")
	fmt.Fprintln(c.out)
}

// Processes lists a process ranking.
func (c *Console) Processes(records []hostmetrics.ProcessRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(records) == 0 {
		return
	}
	fmt.Fprintln(c.out, "Top processes (CPU):")
	for _, p := range records {
		fmt.Fprintf(c.out, "  %6d %-25s: %.1f%% CPU, %.1f%% MEM\n", p.PID, p.Name, p.CPUPercent, p.MemoryPercent)
	}
}

// AnalysisStarted opens the analysis section.
func (c *Console) AnalysisStarted(req analysis.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analysisOpen = true
	fmt.Fprintln(c.out)
	c.heading.Fprintln(c.out, "LLM analysis:")
	fmt.Fprintln(c.out, strings.Repeat("-", ruleWidth))
}

// ReasoningStarted prints the reasoning banner.
func (c *Console) ReasoningStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.muted.Fprint(c.out, "\nModel thinking...\n\n")
}

// ReasoningDelta writes reasoning text as received.
func (c *Console) ReasoningDelta(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.muted.Fprint(c.out, text)
}

// ReasoningEnded separates reasoning from the answer.
func (c *Console) ReasoningEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, "\n\n")
}

// AnswerDelta writes answer text as received.
func (c *Console) AnswerDelta(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, text)
}

// AnalysisFinished prints the statistics and closes the analysis section.
func (c *Console) AnalysisFinished(result analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	if lines := FormatStats(result.Stats); len(lines) > 0 {
		fmt.Fprintln(c.out)
		c.heading.Fprintln(c.out, "Query statistics:")
		for _, line := range lines {
			fmt.Fprintf(c.out, "  %s\n", line)
		}
	}
	c.closeAnalysis()
}

// Error reports a caught failure. An open analysis section is closed.
func (c *Console) Error(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.analysisOpen {
		fmt.Fprintln(c.out)
	}
	c.failure.Fprintf(c.out, "  Error [%s] %s: %v\n", pulseerrors.Kind(err), op, err)
	if c.analysisOpen {
		c.closeAnalysis()
	}
}

// Hint prints a follow-up suggestion after an error.
func (c *Console) Hint(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "  %s\n", text)
}

func (c *Console) closeAnalysis() {
	c.analysisOpen = false
	fmt.Fprintln(c.out, strings.Repeat("-", ruleWidth))
	fmt.Fprintln(c.out)
}

// Summary prints the end-of-run summary.
func (c *Console) Summary(summary monitor.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintf(c.out, "\n%s\n", rule)
	c.heading.Fprintln(c.out, "SESSION SUMMARY")
	fmt.Fprintln(c.out, rule)

	if summary.NoData {
		fmt.Fprintln(c.out, "No data collected")
		return
	}

	fmt.Fprintf(c.out, "Samples: %d\n", summary.Count)
	fmt.Fprintf(c.out, "Anomalies detected: %d\n", summary.Anomalies)
	writeStat(c.out, "CPU", summary.CPU)
	writeStat(c.out, "Memory", summary.Memory)
}

func writeStat(w io.Writer, label string, st monitor.Stat) {
	fmt.Fprintf(w, "\n%s:\n", label)
	fmt.Fprintf(w, "  Mean: %.1f%%\n", st.Mean)
	fmt.Fprintf(w, "  Min: %.1f%% | Max: %.1f%%\n", st.Min, st.Max)
}

// FormatStats renders the reported statistics, one line each. Unreported
// counters are omitted; durations are omitted unless positive.
func FormatStats(stats providers.Stats) []string {
	var lines []string
	if stats.PromptTokens != nil {
		lines = append(lines, fmt.Sprintf("Prompt tokens: %d", *stats.PromptTokens))
	}
	if stats.CompletionTokens != nil {
		lines = append(lines, fmt.Sprintf("Completion tokens: %d", *stats.CompletionTokens))
	}
	if total, ok := stats.TotalTokens(); ok {
		lines = append(lines, fmt.Sprintf("Total tokens: %d", total))
	}
	if d := stats.TotalDuration; d != nil && *d > 0 {
		lines = append(lines, fmt.Sprintf("Total time: %.2fs", d.Seconds()))
	}
	if d := stats.EvalDuration; d != nil && *d > 0 {
		lines = append(lines, fmt.Sprintf("Generation time: %.2fs", d.Seconds()))
	}
	if d := stats.LoadDuration; d != nil && *d > 0 {
		lines = append(lines, fmt.Sprintf("Model load time: %.2fs", d.Seconds()))
	}
	return lines
}

// jsonSummary is the machine-readable end-of-run report.
type jsonSummary struct {
	RunID   string               `json:"runId,omitempty"`
	Summary monitor.Summary      `json:"summary"`
	Samples []hostmetrics.Sample `json:"samples"`
}

// WriteJSON writes the summary and the recorded samples as indented JSON.
func WriteJSON(w io.Writer, runID string, summary monitor.Summary, samples []hostmetrics.Sample) error {
	if samples == nil {
		samples = []hostmetrics.Sample{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonSummary{RunID: runID, Summary: summary, Samples: samples}); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
