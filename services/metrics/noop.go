package metrics

import "time"

// Noop discards every observation.
type Noop struct{}

var _ Recorder = (*Noop)(nil)

func NewNoop() Recorder {
	return &Noop{}
}

func (n *Noop) RecordRefresh(provider, outcome string, duration time.Duration) {}
func (n *Noop) RecordRetry(provider, errorType string) {}
func (n *Noop) RecordRateLimited(scope string) {}
func (n *Noop) RecordLockTimeout(provider string) {}
func (n *Noop) RecordScheduled(queue string) {}
func (n *Noop) RecordScanResult(scheduled, skipped, failed int) {}
func (n *Noop) RecordNotification(errorType string, sent bool) {}
func (n *Noop) RecordJob(name, status string) {}
