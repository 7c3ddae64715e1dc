// Package anomaly classifies host samples against utilisation thresholds.
package anomaly

import "github.com/rcourtman/pulse-anomaly/internal/hostmetrics"

// Default thresholds, in percent.
const (
	DefaultCPUThreshold    = 80.0
	DefaultMemoryThreshold = 85.0
)

// Reason labels for a tripped threshold.
const (
	ReasonCPU    = "cpu"
	ReasonMemory = "memory"
)

// Thresholds holds the per-call classification limits.
type Thresholds struct {
	CPU    float64
	Memory float64
}

// DefaultThresholds returns the stock CPU and memory limits.
func DefaultThresholds() Thresholds {
	return Thresholds{CPU: DefaultCPUThreshold, Memory: DefaultMemoryThreshold}
}

// IsAnomaly reports whether sample exceeds either threshold. A value equal to
// its threshold is not anomalous.
func IsAnomaly(sample hostmetrics.Sample, t Thresholds) bool {
	return sample.CPUPercent > t.CPU || sample.MemoryPercent > t.Memory
}

// Reasons lists which thresholds sample exceeds, CPU first.
func Reasons(sample hostmetrics.Sample, t Thresholds) []string {
	var reasons []string
	if sample.CPUPercent > t.CPU {
		reasons = append(reasons, ReasonCPU)
	}
	if sample.MemoryPercent > t.Memory {
		reasons = append(reasons, ReasonMemory)
	}
	return reasons
}
