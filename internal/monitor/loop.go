package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rcourtman/pulse-anomaly/internal/ai/analysis"
	"github.com/rcourtman/pulse-anomaly/internal/ai/prompt"
	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	"github.com/rcourtman/pulse-anomaly/internal/anomaly"
	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
	"github.com/rcourtman/pulse-anomaly/internal/logging"
	"github.com/rcourtman/pulse-anomaly/internal/metrics"
	"github.com/rs/zerolog"
)

// LoopConfig is the policy of one monitoring run.
type LoopConfig struct {
	Duration   time.Duration
	Interval   time.Duration
	Thresholds anomaly.Thresholds

	Model        string
	ShowThinking bool
	Stream       bool
	Template     string

	// TopProcesses is how many ranked processes go into the prompt; 0 skips ranking.
	TopProcesses    int
	SampleDelay     time.Duration
	Exclude         []string
	AnalysisTimeout time.Duration

	// Once runs a single tick regardless of Duration.
	Once bool
	// ForceAnalysis analyzes every sample, anomalous or not.
	ForceAnalysis bool
}

// Sampler produces host samples.
type Sampler interface {
	Collect(ctx context.Context) (hostmetrics.Sample, error)
}

// Ranker produces the top-process ranking for a prompt.
type Ranker interface {
	RankProcesses(ctx context.Context, opts hostmetrics.RankOptions) ([]hostmetrics.ProcessRecord, error)
}

// Reporter receives everything a run has to show, in order.
type Reporter interface {
	analysis.Sink

	Sample(sample hostmetrics.Sample, anomalous bool, reasons []string)
	Processes(records []hostmetrics.ProcessRecord)
	AnalysisStarted(req analysis.Request)
	AnalysisFinished(result analysis.Result)
	Error(op string, err error)
	Summary(summary Summary)
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Sampler   Sampler
	Ranker    Ranker
	Generator providers.Generator
	Reporter  Reporter
}

// Loop runs one monitoring session.
type Loop struct {
	cfg      LoopConfig
	deps     Deps
	session  *Session
	template prompt.Template
	analyzer *analysis.Analyzer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop validates the prompt template and wires a loop with its own Session.
func NewLoop(cfg LoopConfig, deps Deps) (*Loop, error) {
	if deps.Sampler == nil {
		deps.Sampler = hostmetrics.Provider{}
	}
	if deps.Ranker == nil {
		deps.Ranker = hostmetrics.Provider{}
	}
	if deps.Generator == nil {
		return nil, errors.New("monitor: generator is required")
	}
	if deps.Reporter == nil {
		return nil, errors.New("monitor: reporter is required")
	}

	tmpl, err := prompt.Lookup(cfg.Template)
	if err != nil {
		return nil, err
	}

	return &Loop{
		cfg:      cfg,
		deps:     deps,
		session:  NewSession(),
		template: tmpl,
		analyzer: analysis.NewAnalyzer(deps.Generator, analysis.Options{
			Model:         cfg.Model,
			Stream:        cfg.Stream,
			ShowReasoning: cfg.ShowThinking,
			Timeout:       cfg.AnalysisTimeout,
		}),
		now:   time.Now,
		sleep: sleepContext,
	}, nil
}

// Session returns the run's accumulator.
func (l *Loop) Session() *Session {
	return l.session
}

// Run samples until Duration has elapsed or ctx is cancelled, then reports
// and returns the summary. The interval is not corrected for the time a tick
// takes. Only a provider failure on the very first collection is returned as
// an error; everything else is reported and the loop moves on. A run ID
// already on ctx is reused.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	ctx, runID := logging.WithRunID(ctx, logging.RunIDFromContext(ctx))
	logger := logging.ForComponent("monitor").With().Str("run_id", runID).Logger()

	logger.Info().
		Dur("duration", l.cfg.Duration).
		Dur("interval", l.cfg.Interval).
		Float64("cpu_threshold", l.cfg.Thresholds.CPU).
		Float64("memory_threshold", l.cfg.Thresholds.Memory).
		Str("model", l.cfg.Model).
		Bool("once", l.cfg.Once).
		Msg("Monitoring started")

	start := l.now()
	for tick := 0; ; tick++ {
		if ctx.Err() != nil {
			break
		}
		if !l.cfg.Once && l.now().Sub(start) >= l.cfg.Duration {
			break
		}

		if err := l.tick(ctx, logger, tick); err != nil {
			summary := l.finish(logger)
			return summary, err
		}

		if l.cfg.Once {
			break
		}
		if err := l.sleep(ctx, l.cfg.Interval); err != nil {
			break
		}
	}

	return l.finish(logger), nil
}

func (l *Loop) tick(ctx context.Context, logger zerolog.Logger, tick int) error {
	sample, err := l.deps.Sampler.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		metrics.RecordSampleFailure()
		l.deps.Reporter.Error("collect", err)
		if tick == 0 && errors.Is(err, pulseerrors.ErrProviderUnavailable) {
			logger.Error().Err(err).Msg("Metrics provider unavailable")
			return err
		}
		logger.Warn().Err(err).Int("tick", tick).Msg("Sample collection failed, skipping tick")
		return nil
	}

	anomalous := anomaly.IsAnomaly(sample, l.cfg.Thresholds)
	reasons := anomaly.Reasons(sample, l.cfg.Thresholds)
	l.session.Record(sample, anomalous)
	metrics.RecordSample(sample.CPUPercent, sample.MemoryPercent, reasons)
	l.deps.Reporter.Sample(sample, anomalous, reasons)

	logger.Debug().
		Int("tick", tick).
		Float64("cpu", sample.CPUPercent).
		Float64("memory", sample.MemoryPercent).
		Bool("anomalous", anomalous).
		Msg("Sample recorded")

	if anomalous || l.cfg.ForceAnalysis {
		l.analyze(ctx, logger, sample)
	}
	return nil
}

// analyze makes a single best-effort backend call. Failures are reported and
// logged, never returned.
func (l *Loop) analyze(ctx context.Context, logger zerolog.Logger, sample hostmetrics.Sample) {
	var processes []hostmetrics.ProcessRecord
	if l.cfg.TopProcesses > 0 {
		ranked, err := l.deps.Ranker.RankProcesses(ctx, hostmetrics.RankOptions{
			Limit:       l.cfg.TopProcesses,
			SampleDelay: l.cfg.SampleDelay,
			Exclude:     l.cfg.Exclude,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.deps.Reporter.Error("rank_processes", err)
			logger.Warn().Err(err).Msg("Process ranking failed, analyzing without it")
		} else {
			processes = ranked
			l.deps.Reporter.Processes(ranked)
			if logging.IsLevelEnabled(zerolog.DebugLevel) {
				names := make([]string, 0, len(ranked))
				for _, p := range ranked {
					names = append(names, p.Name)
				}
				logger.Debug().Strs("processes", names).Msg("Ranked processes")
			}
		}
	}

	text, err := l.template.Render(sample, processes)
	if err != nil {
		l.deps.Reporter.Error("render_prompt", err)
		logger.Error().Err(err).Str("template", l.template.Name).Msg("Prompt rendering failed")
		return
	}

	req := analysis.NewRequest(sample, processes, text)
	reqLogger := logger.With().Str("analysis_id", req.ID).Logger()
	l.deps.Reporter.AnalysisStarted(req)

	started := l.now()
	result, err := l.analyzer.Analyze(ctx, req, l.deps.Reporter)
	elapsed := l.now().Sub(started)
	metrics.RecordAnalysis(err, elapsed, result.Stats)

	if err != nil {
		l.deps.Reporter.Error("analyze", err)
		reqLogger.Warn().
			Err(err).
			Str("kind", pulseerrors.Kind(err)).
			Dur("elapsed", elapsed).
			Msg("Analysis failed")
		return
	}

	l.deps.Reporter.AnalysisFinished(result)
	reqLogger.Info().
		Dur("elapsed", elapsed).
		Int("answer_chars", len(result.Answer)).
		Msg("Analysis completed")
}

func (l *Loop) finish(logger zerolog.Logger) Summary {
	summary := l.session.Summarize()
	l.deps.Reporter.Summary(summary)
	logger.Info().
		Int("samples", summary.Count).
		Int("anomalies", summary.Anomalies).
		Msg("Monitoring finished")
	return summary
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
