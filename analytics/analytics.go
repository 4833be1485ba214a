// Package analytics delivers usage events to the backend. Delivery is
// fire-and-forget: a slow or failing analytics pipeline must never block or
// fail the binding, PIN or handoff flows.
package analytics

// Sink receives one event at a time. Implementations must not block.
type Sink interface {
	LogEvent(name string, attrs map[string]any)
}

// NopSink discards every event.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) LogEvent(string, map[string]any) {}
