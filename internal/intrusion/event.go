package intrusion

import (
	"sync"
	"time"

	"riskwatch/internal/logger"
)

// Severity of a detector event.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Kind identifies which rule produced an event.
type Kind string

const (
	KindFailedLogin       Kind = "failed_login"
	KindBruteForce        Kind = "brute_force"
	KindLoginReset        Kind = "login_reset"
	KindUnusualAccessTime Kind = "unusual_access_time"
	KindClockSkew         Kind = "clock_skew"
)

// Event is the structured side channel of the detectors.
type Event struct {
	Severity  Severity  `json:"severity"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Identity  string    `json:"identity,omitempty"`
	Timestamp time.Time `json:"ts"`
	Attempts  int       `json:"attempts,omitempty"`
}

// Sink consumes detector events. Emit is called while the identity's state is
// locked, so it must not block or call back into the Monitor.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Tee fans each event out to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// Collector buffers events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Drain returns and clears the buffered events.
func (c *Collector) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// LogSink writes events to the process logger at their severity.
var LogSink Sink = SinkFunc(func(e Event) {
	kv := []interface{}{"kind", string(e.Kind), "ts", e.Timestamp}
	if e.Identity != "" {
		kv = append(kv, "identity", e.Identity)
	}
	if e.Attempts > 0 {
		kv = append(kv, "attempts", e.Attempts)
	}
	switch e.Severity {
	case SeverityWarning:
		logger.Warnw(e.Message, kv...)
	case SeverityInfo:
		logger.Infow(e.Message, kv...)
	default:
		logger.Debugw(e.Message, kv...)
	}
})
