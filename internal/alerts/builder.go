package alerts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskwatch/internal/intrusion"
	"riskwatch/pkg/models"
)

// Config controls alert building.
type Config struct {
	// Window is the monitor's sliding window, used to stamp WindowStart.
	Window time.Duration
	// Cooldown suppresses repeat alerts of one kind for one identity.
	Cooldown time.Duration
}

// Builder turns monitor verdicts into alerts.
type Builder struct {
	mu     sync.Mutex
	cfg    Config
	last   map[string]time.Time
	builds int
	now    func() time.Time
}

const pruneEvery = 1024

// NewBuilder creates a new builder.
func NewBuilder(cfg Config) *Builder {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Builder{
		cfg:  cfg,
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Build returns the alerts for one inspected event and the number of alerts
// held back by the cooldown.
func (b *Builder) Build(ev *models.AccessEvent, v intrusion.Verdict) ([]*models.Alert, int) {
	if ev == nil {
		return nil, 0
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = b.now()
	}

	var candidates []*models.Alert
	if v.BruteForce {
		a := b.newAlert(ev, v, models.AlertKindBruteForce, "high", ts)
		a.Attempts = v.Attempts
		a.WindowStart = ts.Add(-b.cfg.Window)
		a.Message = eventMessage(v, intrusion.KindBruteForce,
			fmt.Sprintf("%s has %d failed login attempts within %s", v.Identity, v.Attempts, b.cfg.Window))
		candidates = append(candidates, a)
	}
	if v.UnusualTime {
		a := b.newAlert(ev, v, models.AlertKindUnusualAccessTime, "medium", ts)
		a.Message = eventMessage(v, intrusion.KindUnusualAccessTime,
			fmt.Sprintf("unusual access time at %s", ts.Format("15:04")))
		candidates = append(candidates, a)
	}
	if len(ev.RuleTags) > 0 {
		top := highestTag(ev.RuleTags)
		a := b.newAlert(ev, v, models.AlertKindRuleMatch, strings.ToLower(top.Severity), ts)
		a.Message = fmt.Sprintf("rule matched: %s", top.Name)
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.builds++
	if b.builds%pruneEvery == 0 {
		b.prune(ts)
	}

	out := candidates[:0]
	suppressed := 0
	for _, a := range candidates {
		key := a.Kind + "|" + a.Identity
		if last, ok := b.last[key]; ok && ts.Sub(last) < b.cfg.Cooldown {
			suppressed++
			continue
		}
		b.last[key] = ts
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, suppressed
	}
	return out, suppressed
}

func (b *Builder) newAlert(ev *models.AccessEvent, v intrusion.Verdict, kind, severity string, ts time.Time) *models.Alert {
	return &models.Alert{
		AlertID:     uuid.NewString(),
		Kind:        kind,
		Severity:    severity,
		Identity:    v.Identity,
		Hostname:    ev.Hostname,
		SourceIP:    ev.SourceIP,
		EventID:     ev.EventID,
		WindowStart: ts,
		WindowEnd:   ts,
		RuleTags:    ev.RuleTags,
	}
}

func (b *Builder) prune(now time.Time) {
	for key, last := range b.last {
		if now.Sub(last) >= b.cfg.Cooldown {
			delete(b.last, key)
		}
	}
}

func eventMessage(v intrusion.Verdict, kind intrusion.Kind, fallback string) string {
	for _, e := range v.Events {
		if e.Kind == kind {
			return e.Message
		}
	}
	return fallback
}

func highestTag(tags []models.RuleTag) models.RuleTag {
	best := tags[0]
	for _, tag := range tags[1:] {
		if severityWeight(tag.Severity) > severityWeight(best.Severity) {
			best = tag
		}
	}
	return best
}

func severityWeight(level string) int {
	switch strings.ToLower(level) {
	case "critical":
		return 7
	case "high":
		return 5
	case "medium":
		return 3
	case "low":
		return 1
	default:
		return 1
	}
}
