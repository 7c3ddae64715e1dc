package analysis

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rcourtman/pulse-anomaly/internal/ai/providers"
	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 5 * time.Minute

// Request is everything sent to the backend for one anomalous sample.
type Request struct {
	ID        string
	Sample    hostmetrics.Sample
	Processes []hostmetrics.ProcessRecord
	Prompt    string
}

// NewRequest stamps a request with a time-sortable ID.
func NewRequest(sample hostmetrics.Sample, processes []hostmetrics.ProcessRecord, prompt string) Request {
	return Request{
		ID:        ulid.Make().String(),
		Sample:    sample,
		Processes: processes,
		Prompt:    prompt,
	}
}

// Options configures an Analyzer.
type Options struct {
	Model         string
	Stream        bool
	ShowReasoning bool
	Timeout       time.Duration // <= 0 uses DefaultTimeout
}

// Analyzer submits requests to a generator and aggregates the reply.
type Analyzer struct {
	gen  providers.Generator
	opts Options
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(gen providers.Generator, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Analyzer{gen: gen, opts: opts}
}

// Analyze makes one best-effort backend call for req, streaming text to sink.
// Cancelling ctx or exceeding the timeout aborts the in-flight stream.
func (a *Analyzer) Analyze(ctx context.Context, req Request, sink Sink) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	agg := NewAggregator(a.opts.ShowReasoning, sink)
	err := a.gen.Generate(ctx, providers.GenerateRequest{
		Model:  a.opts.Model,
		Prompt: req.Prompt,
		Stream: a.opts.Stream,
		Think:  a.opts.ShowReasoning,
	}, agg.Handle)
	if err != nil {
		return Result{}, err
	}
	return agg.Result()
}
