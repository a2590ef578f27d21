package settlement

import "time"

// MetricsCollector receives pipeline measurements.
type MetricsCollector interface {
	RecordOutcome(outcome string)
	RecordStageDuration(stage string, d time.Duration)
	RecordRiskScore(score float64)
	RecordLedgerCall(op, result string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOutcome(string)                      {}
func (n *NoopMetricsCollector) RecordStageDuration(string, time.Duration) {}
func (n *NoopMetricsCollector) RecordRiskScore(float64)                   {}
func (n *NoopMetricsCollector) RecordLedgerCall(string, string)           {}
