// Package analyzer correlates stored alerts into multi-step findings.
package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"riskwatch/pkg/models"
)

// Config controls correlation limits.
type Config struct {
	MaxFindings int
}

// SequenceStep is one matched alert.
type SequenceStep struct {
	AlertID string    `json:"alert_id"`
	Kind    string    `json:"kind"`
	Name    string    `json:"name"`
	TS      time.Time `json:"ts"`
}

// Finding describes a matched alert sequence for one identity.
type Finding struct {
	RuleID   string         `json:"rule_id"`
	Identity string         `json:"identity"`
	Severity string         `json:"severity"`
	StartTS  time.Time      `json:"start_ts"`
	EndTS    time.Time      `json:"end_ts"`
	Sequence []SequenceStep `json:"sequence"`
}

type alertEvent struct {
	alert *models.Alert
	names []string
}

type partialSequence struct {
	matched []alertEvent
	start   time.Time
	last    time.Time
}

// LoadAlertsJSONL reads alerts from JSONL. Malformed lines are skipped.
func LoadAlertsJSONL(path string) ([]*models.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	alerts := make([]*models.Alert, 0, 1024)
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal([]byte(line), &alert); err != nil {
			continue
		}
		alerts = append(alerts, &alert)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return alerts, nil
}

// AnalyzeRuleSet matches every enabled rule against each identity's alerts in
// time order. Steps must be in order and the whole sequence must fit in the
// rule's window.
func AnalyzeRuleSet(alerts []*models.Alert, rs *RuleSet, cfg Config) []Finding {
	if rs == nil {
		return nil
	}
	byIdentity := buildEventsByIdentity(alerts)

	findings := make([]Finding, 0, 64)
	for _, rule := range rs.Rules {
		if !rule.Enabled || len(rule.Sequence) == 0 {
			continue
		}
		for _, f := range matchRule(byIdentity, rule) {
			findings = append(findings, f)
			if cfg.MaxFindings > 0 && len(findings) >= cfg.MaxFindings {
				return findings
			}
		}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].EndTS.Before(findings[j].EndTS)
	})
	return findings
}

func buildEventsByIdentity(alerts []*models.Alert) map[string][]alertEvent {
	byIdentity := make(map[string][]alertEvent, 128)
	for _, a := range alerts {
		if a == nil || a.WindowEnd.IsZero() {
			continue
		}
		identity := normalizeName(a.Identity)
		if identity == "" {
			identity = "unknown"
		}
		byIdentity[identity] = append(byIdentity[identity], alertEvent{alert: a, names: alertNames(a)})
	}
	for identity := range byIdentity {
		events := byIdentity[identity]
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].alert.WindowEnd.Before(events[j].alert.WindowEnd)
		})
	}
	return byIdentity
}

func matchRule(byIdentity map[string][]alertEvent, rule Rule) []Finding {
	seq := make([]string, 0, len(rule.Sequence))
	for _, item := range rule.Sequence {
		if v := normalizeName(item); v != "" {
			seq = append(seq, v)
		}
	}
	if len(seq) == 0 {
		return nil
	}

	identities := make([]string, 0, len(byIdentity))
	for id := range byIdentity {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	out := make([]Finding, 0, 16)
	for _, identity := range identities {
		// buckets[i] holds partial matches of the first i steps.
		buckets := make([][]partialSequence, len(seq)+1)
		for _, ev := range byIdentity[identity] {
			ts := ev.alert.WindowEnd
			for idx := 1; idx < len(seq); idx++ {
				buckets[idx] = prunePartialsByWindow(buckets[idx], ts, rule.Window)
			}

			for idx := len(seq) - 1; idx >= 1; idx-- {
				if len(buckets[idx]) == 0 || !hasName(ev, seq[idx]) {
					continue
				}
				for _, p := range buckets[idx] {
					if ts.Before(p.last) || ev.alert == p.matched[len(p.matched)-1].alert {
						continue
					}
					if rule.Window > 0 && ts.Sub(p.start) > rule.Window {
						continue
					}
					next := partialSequence{
						matched: append(append(make([]alertEvent, 0, len(p.matched)+1), p.matched...), ev),
						start:   p.start,
						last:    ts,
					}
					if idx+1 == len(seq) {
						out = append(out, toFinding(rule, identity, seq, next.matched))
						if rule.MaxCandidates > 0 && len(out) >= rule.MaxCandidates {
							return out
						}
						continue
					}
					buckets[idx+1] = appendBoundedPartial(buckets[idx+1], next, rule.MaxCandidates)
				}
			}

			if hasName(ev, seq[0]) {
				p := partialSequence{matched: []alertEvent{ev}, start: ts, last: ts}
				if len(seq) == 1 {
					out = append(out, toFinding(rule, identity, seq, p.matched))
					continue
				}
				buckets[1] = appendBoundedPartial(buckets[1], p, rule.MaxCandidates)
			}
		}
	}
	return out
}

func appendBoundedPartial(parts []partialSequence, p partialSequence, limit int) []partialSequence {
	parts = append(parts, p)
	if limit <= 0 || len(parts) <= limit {
		return parts
	}
	trimmed := make([]partialSequence, 0, limit)
	trimmed = append(trimmed, parts[len(parts)-limit:]...)
	return trimmed
}

func prunePartialsByWindow(parts []partialSequence, now time.Time, window time.Duration) []partialSequence {
	if window <= 0 || len(parts) == 0 {
		return parts
	}
	out := parts[:0]
	for _, p := range parts {
		if now.Sub(p.start) <= window {
			out = append(out, p)
		}
	}
	return out
}

func hasName(ev alertEvent, expected string) bool {
	for _, n := range ev.names {
		if n == expected {
			return true
		}
	}
	return false
}

func toFinding(rule Rule, identity string, seq []string, matched []alertEvent) Finding {
	steps := make([]SequenceStep, 0, len(matched))
	for i, ev := range matched {
		steps = append(steps, SequenceStep{
			AlertID: ev.alert.AlertID,
			Kind:    ev.alert.Kind,
			Name:    seq[i],
			TS:      ev.alert.WindowEnd,
		})
	}
	return Finding{
		RuleID:   rule.ID,
		Identity: identity,
		Severity: rule.Severity,
		StartTS:  steps[0].TS,
		EndTS:    steps[len(steps)-1].TS,
		Sequence: steps,
	}
}

// alertNames lists every name a rule step can match for a.
func alertNames(a *models.Alert) []string {
	names := []string{normalizeName(a.Kind)}
	for _, tag := range a.RuleTags {
		for _, v := range []string{tag.Name, tag.ID, tag.Technique} {
			if n := normalizeName(v); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}

func normalizeName(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
