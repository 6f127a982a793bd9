package alerts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskwatch/internal/intrusion"
	"riskwatch/pkg/models"
)

var base = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

func bruteForceVerdict(identity string, attempts int) intrusion.Verdict {
	return intrusion.Verdict{
		Identity:   identity,
		BruteForce: true,
		Attempts:   attempts,
		Events: []intrusion.Event{{
			Severity: intrusion.SeverityWarning,
			Kind:     intrusion.KindBruteForce,
			Message:  "intrusion detected: alice has 3 failed login attempts within 1m0s",
		}},
	}
}

func TestBuildNothingForQuietVerdict(t *testing.T) {
	b := NewBuilder(Config{})
	out, suppressed := b.Build(&models.AccessEvent{Timestamp: base}, intrusion.Verdict{Identity: "alice"})
	assert.Empty(t, out)
	assert.Zero(t, suppressed)

	out, _ = b.Build(nil, bruteForceVerdict("alice", 3))
	assert.Empty(t, out)
}

func TestBuildBruteForceAlert(t *testing.T) {
	b := NewBuilder(Config{Window: time.Minute})
	ev := &models.AccessEvent{EventID: "e1", Timestamp: base, Hostname: "bastion", SourceIP: "198.51.100.7"}

	out, suppressed := b.Build(ev, bruteForceVerdict("alice", 3))
	require.Len(t, out, 1)
	assert.Zero(t, suppressed)

	a := out[0]
	assert.Equal(t, models.AlertKindBruteForce, a.Kind)
	assert.Equal(t, "high", a.Severity)
	assert.Equal(t, "alice", a.Identity)
	assert.Equal(t, 3, a.Attempts)
	assert.Equal(t, base.Add(-time.Minute), a.WindowStart)
	assert.Equal(t, base, a.WindowEnd)
	assert.Equal(t, "bastion", a.Hostname)
	assert.Contains(t, a.Message, "3 failed login attempts")
	_, err := uuid.Parse(a.AlertID)
	assert.NoError(t, err)
}

func TestBuildAppliesCooldownPerKindAndIdentity(t *testing.T) {
	b := NewBuilder(Config{Cooldown: time.Minute})

	out, _ := b.Build(&models.AccessEvent{Timestamp: base}, bruteForceVerdict("alice", 3))
	require.Len(t, out, 1)

	out, suppressed := b.Build(&models.AccessEvent{Timestamp: base.Add(10 * time.Second)}, bruteForceVerdict("alice", 4))
	assert.Empty(t, out)
	assert.Equal(t, 1, suppressed)

	out, _ = b.Build(&models.AccessEvent{Timestamp: base.Add(10 * time.Second)}, bruteForceVerdict("bob", 3))
	assert.Len(t, out, 1, "other identity is not suppressed")

	out, _ = b.Build(&models.AccessEvent{Timestamp: base.Add(time.Minute)}, bruteForceVerdict("alice", 5))
	assert.Len(t, out, 1, "cooldown elapsed")
}

func TestBuildUnusualTimeAndRuleMatch(t *testing.T) {
	b := NewBuilder(Config{})
	night := time.Date(2024, 3, 4, 3, 15, 0, 0, time.UTC)
	ev := &models.AccessEvent{
		Timestamp: night,
		RuleTags: []models.RuleTag{
			{ID: "r1", Name: "low rule", Severity: "low"},
			{ID: "r2", Name: "denylisted source", Severity: "High"},
		},
	}
	v := intrusion.Verdict{Identity: "carol", UnusualTime: true}

	out, suppressed := b.Build(ev, v)
	require.Len(t, out, 2)
	assert.Zero(t, suppressed)

	assert.Equal(t, models.AlertKindUnusualAccessTime, out[0].Kind)
	assert.Equal(t, "unusual access time at 03:15", out[0].Message)
	assert.Equal(t, night, out[0].WindowStart)

	assert.Equal(t, models.AlertKindRuleMatch, out[1].Kind)
	assert.Equal(t, "high", out[1].Severity)
	assert.Equal(t, "rule matched: denylisted source", out[1].Message)
	assert.Len(t, out[1].RuleTags, 2)
}

func TestBuildFillsMissingTimestamp(t *testing.T) {
	b := NewBuilder(Config{})
	b.now = func() time.Time { return base }
	out, _ := b.Build(&models.AccessEvent{}, bruteForceVerdict("alice", 3))
	require.Len(t, out, 1)
	assert.Equal(t, base, out[0].WindowEnd)
}

func TestPruneDropsExpiredCooldowns(t *testing.T) {
	b := NewBuilder(Config{Cooldown: time.Minute})
	b.last["brute_force|alice"] = base
	b.last["brute_force|bob"] = base.Add(50 * time.Second)

	b.prune(base.Add(time.Minute))
	assert.NotContains(t, b.last, "brute_force|alice")
	assert.Contains(t, b.last, "brute_force|bob")
}
