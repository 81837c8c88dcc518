package usecase

import "time"

// Metrics receives pipeline measurements. Implementations must be safe for concurrent use.
type Metrics interface {
	ListingWalked(league string, pages int, stopReason string)
	DetailRetrieved(degraded bool, attempts int)
	SinkWritten(sink string, elapsed time.Duration, err error)
	RunFinished(summary RunSummary, err error)
}

type NopMetrics struct{}

func (NopMetrics) ListingWalked(string, int, string)        {}
func (NopMetrics) DetailRetrieved(bool, int)                {}
func (NopMetrics) SinkWritten(string, time.Duration, error) {}
func (NopMetrics) RunFinished(RunSummary, error)            {}
