package metrics

import "sync/atomic"

// Metrics is a process-wide sink of counters and gauges for the live
// session engine. Exposed as JSON on the health endpoint.
type Metrics struct {
	ActiveConnections atomic.Int64
	MessagesIn        atomic.Int64
	MessagesOut       atomic.Int64
	WritesAccepted    atomic.Int64
	WritesRejected    atomic.Int64
}

// New creates an empty metrics sink
func New() *Metrics {
	return &Metrics{}
}

// Snapshot returns the current values keyed by metric name
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"active_connections": m.ActiveConnections.Load(),
		"messages_in":        m.MessagesIn.Load(),
		"messages_out":       m.MessagesOut.Load(),
		"writes_accepted":    m.WritesAccepted.Load(),
		"writes_rejected":    m.WritesRejected.Load(),
	}
}
