// Package intrusion detects login abuse: repeated authentication failures
// inside a sliding window and access during suspicious hours.
package intrusion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"riskwatch/internal/logger"
)

// HourRange is an inclusive range of local wall-clock hours.
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour lies in [Start, End].
func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour <= r.End
}

// Config controls the detectors. Validation is the caller's job; NewMonitor
// only fills in zero values.
type Config struct {
	Window           time.Duration
	FailureThreshold int
	SuspiciousHours  HourRange
	// IdleTTL evicts identities with no pending failures after this much
	// inactivity. Zero keeps them forever.
	IdleTTL  time.Duration
	Location *time.Location
}

// DefaultConfig returns a 60s window, 3 failures and hours 0 through 6.
func DefaultConfig() Config {
	return Config{
		Window:           60 * time.Second,
		FailureThreshold: 3,
		SuspiciousHours:  HourRange{Start: 0, End: 6},
		Location:         time.Local,
	}
}

// Verdict is the outcome of Inspect for one event.
type Verdict struct {
	Identity    string
	BruteForce  bool
	UnusualTime bool
	Attempts    int
	Events      []Event
}

// Suspicious reports whether any detector fired.
func (v Verdict) Suspicious() bool {
	return v.BruteForce || v.UnusualTime
}

type identityState struct {
	mu       sync.Mutex
	failures []time.Time
	lastSeen time.Time
	dead     bool
}

// Monitor owns the failure log of every identity it has seen. Each identity
// has its own lock; calls for different identities never wait on each other.
type Monitor struct {
	cfg     Config
	sink    Sink
	states  sync.Map // normalized identity -> *identityState
	tracked atomic.Int64
}

// NewMonitor creates a monitor emitting to sink. A nil sink discards events.
func NewMonitor(cfg Config, sink Sink) *Monitor {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if sink == nil {
		sink = Discard
	}
	return &Monitor{cfg: cfg, sink: sink}
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// CheckLogin records one authentication result for identity and reports
// whether the identity has now failed FailureThreshold times within Window.
// A successful login clears the identity's failures.
func (m *Monitor) CheckLogin(identity string, credentialsValid bool, now time.Time) bool {
	suspicious, _ := m.checkLogin(NormalizeIdentity(identity), credentialsValid, now, m.sink.Emit)
	return suspicious
}

// CheckAccessTime reports whether now falls in the suspicious hour range.
func (m *Monitor) CheckAccessTime(now time.Time) bool {
	return m.checkAccessTime("", now, m.sink.Emit)
}

// Inspect runs both detectors for one event. A nil credentialsValid marks an
// access-only event and skips the failure log. Events are sent to the sink
// and also returned in the verdict.
func (m *Monitor) Inspect(identity string, credentialsValid *bool, now time.Time) Verdict {
	key := NormalizeIdentity(identity)
	v := Verdict{Identity: key}
	emit := func(e Event) {
		v.Events = append(v.Events, e)
		m.sink.Emit(e)
	}

	if credentialsValid != nil {
		v.BruteForce, v.Attempts = m.checkLogin(key, *credentialsValid, now, emit)
	}
	v.UnusualTime = m.checkAccessTime(key, now, emit)
	return v
}

// Failures returns the identity's failure count within the window at now.
func (m *Monitor) Failures(identity string, now time.Time) int {
	v, ok := m.states.Load(NormalizeIdentity(identity))
	if !ok {
		return 0
	}
	st := v.(*identityState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.dead {
		return 0
	}
	m.prune(st, "", now, nil)
	return len(st.failures)
}

// Len returns the number of identities currently tracked.
func (m *Monitor) Len() int {
	return int(m.tracked.Load())
}

// Sweep evicts identities that have no failures left in the window and were
// last seen at least IdleTTL before now. It returns the number evicted.
func (m *Monitor) Sweep(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	evicted := 0
	m.states.Range(func(k, v interface{}) bool {
		st := v.(*identityState)
		st.mu.Lock()
		m.prune(st, "", now, nil)
		if !st.dead && len(st.failures) == 0 && now.Sub(st.lastSeen) >= m.cfg.IdleTTL {
			st.dead = true
			m.states.CompareAndDelete(k, st)
			m.tracked.Add(-1)
			evicted++
		}
		st.mu.Unlock()
		return true
	})
	return evicted
}

// Run sweeps idle identities every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m.cfg.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				logger.Debugf("Evicted %d idle identities (tracked=%d)", n, m.Len())
			}
		}
	}
}

func (m *Monitor) checkLogin(key string, credentialsValid bool, now time.Time, emit func(Event)) (bool, int) {
	st := m.acquire(key)
	defer st.mu.Unlock()

	if now.After(st.lastSeen) {
		st.lastSeen = now
	}
	m.prune(st, key, now, emit)

	if credentialsValid {
		if cleared := len(st.failures); cleared > 0 {
			st.failures = nil
			emit(Event{
				Severity:  SeverityDebug,
				Kind:      KindLoginReset,
				Message:   fmt.Sprintf("%s logged in, cleared %d failed attempts", key, cleared),
				Identity:  key,
				Timestamp: now,
			})
		}
		return false, 0
	}

	st.failures = append(st.failures, now)
	n := len(st.failures)
	if n >= m.cfg.FailureThreshold {
		emit(Event{
			Severity:  SeverityWarning,
			Kind:      KindBruteForce,
			Message:   fmt.Sprintf("intrusion detected: %s has %d failed login attempts within %s", key, n, m.cfg.Window),
			Identity:  key,
			Timestamp: now,
			Attempts:  n,
		})
		return true, n
	}
	emit(Event{
		Severity:  SeverityInfo,
		Kind:      KindFailedLogin,
		Message:   fmt.Sprintf("%s has %d failed login attempts", key, n),
		Identity:  key,
		Timestamp: now,
		Attempts:  n,
	})
	return false, n
}

func (m *Monitor) checkAccessTime(key string, now time.Time, emit func(Event)) bool {
	local := now.In(m.cfg.Location)
	if !m.cfg.SuspiciousHours.Contains(local.Hour()) {
		return false
	}
	emit(Event{
		Severity:  SeverityWarning,
		Kind:      KindUnusualAccessTime,
		Message:   fmt.Sprintf("intrusion detected: unusual access time at %s", local.Format("15:04")),
		Identity:  key,
		Timestamp: now,
	})
	return true
}

// acquire returns the locked state for key, creating it if needed.
func (m *Monitor) acquire(key string) *identityState {
	for {
		v, ok := m.states.Load(key)
		if !ok {
			var loaded bool
			v, loaded = m.states.LoadOrStore(key, &identityState{})
			if !loaded {
				m.tracked.Add(1)
			}
		}
		st := v.(*identityState)
		st.mu.Lock()
		if st.dead {
			// Evicted between lookup and lock.
			st.mu.Unlock()
			continue
		}
		return st
	}
}

// prune drops failures with now-ts >= Window. Timestamps after now (the clock
// went backwards) are kept. Caller holds st.mu.
func (m *Monitor) prune(st *identityState, key string, now time.Time, emit func(Event)) {
	kept := st.failures[:0]
	skewed := 0
	for _, ts := range st.failures {
		elapsed := now.Sub(ts)
		if elapsed < 0 {
			skewed++
			kept = append(kept, ts)
			continue
		}
		if elapsed >= m.cfg.Window {
			continue
		}
		kept = append(kept, ts)
	}
	st.failures = kept

	if skewed > 0 && emit != nil {
		emit(Event{
			Severity:  SeverityDebug,
			Kind:      KindClockSkew,
			Message:   fmt.Sprintf("%d failure timestamps for %s are later than %s; kept", skewed, key, now.Format(time.RFC3339Nano)),
			Identity:  key,
			Timestamp: now,
		})
	}
}

// NormalizeIdentity returns the state key for identity: trimmed, lower-cased,
// and "unknown" when empty.
func NormalizeIdentity(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return "unknown"
	}
	return identity
}
