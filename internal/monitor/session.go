// Package monitor runs the sample, classify and analyze cycle and keeps the
// per-run history it summarizes at the end.
package monitor

import (
	"math"
	"sync"

	"github.com/rcourtman/pulse-anomaly/internal/hostmetrics"
)

// Stat is the mean, minimum and maximum of one metric over a run.
type Stat struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary is a projection of every sample recorded in a session.
type Summary struct {
	Count     int  `json:"count"`
	Anomalies int  `json:"anomalies"`
	CPU       Stat `json:"cpu"`
	Memory    Stat `json:"memory"`
	// NoData is set when nothing was recorded; the stats are zero and meaningless.
	NoData bool `json:"noData"`
}

// Session accumulates the samples of one monitoring run. It is never reset;
// a new run constructs a new Session.
type Session struct {
	mu        sync.RWMutex
	samples   []hostmetrics.Sample
	anomalies int
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{}
}

// Record appends a sample and counts it when it was anomalous.
func (s *Session) Record(sample hostmetrics.Sample, wasAnomaly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if wasAnomaly {
		s.anomalies++
	}
}

// Samples returns a copy of the recorded samples in recording order.
func (s *Session) Samples() []hostmetrics.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]hostmetrics.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Summarize computes the run summary over the full history.
func (s *Session) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{
		Count:     len(s.samples),
		Anomalies: s.anomalies,
	}
	if len(s.samples) == 0 {
		summary.NoData = true
		return summary
	}

	summary.CPU = statOf(s.samples, func(sample hostmetrics.Sample) float64 { return sample.CPUPercent })
	summary.Memory = statOf(s.samples, func(sample hostmetrics.Sample) float64 { return sample.MemoryPercent })
	return summary
}

func statOf(samples []hostmetrics.Sample, value func(hostmetrics.Sample) float64) Stat {
	st := Stat{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, sample := range samples {
		v := value(sample)
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = sum / float64(len(samples))
	return st
}
