// Package metrics records conversation and upstream call metrics.
package metrics

import "time"

// Upstream operations.
const (
	OpResolve      = "resolve_variants"
	OpDeviceLookup = "lookup_device"
	OpBuildLink    = "build_cart_link"
)

// Recorder defines the interface for recording bot metrics.
type Recorder interface {
	// ObserveUpstream records one data-access call. code is "" on success.
	ObserveUpstream(op, code string, duration time.Duration)

	// IncConversation counts a conversation outcome (started, completed, failed, restarted).
	IncConversation(outcome string)

	// IncLinks counts generated cart links per policy.
	IncLinks(policy string, n int)

	// IncAccessDenied counts events rejected by the access guard.
	IncAccessDenied()
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveUpstream does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveUpstream(_, _ string, _ time.Duration) {}

// IncConversation does nothing in the no-op recorder.
func (n *NoopRecorder) IncConversation(_ string) {}

// IncLinks does nothing in the no-op recorder.
func (n *NoopRecorder) IncLinks(_ string, _ int) {}

// IncAccessDenied does nothing in the no-op recorder.
func (n *NoopRecorder) IncAccessDenied() {}
