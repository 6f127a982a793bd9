package analyzer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleSet defines alert sequence rules for offline correlation.
type RuleSet struct {
	Version  int          `yaml:"version"`
	Defaults RuleDefaults `yaml:"defaults"`
	Rules    []Rule       `yaml:"rules"`
}

// RuleDefaults are fallback options for rules.
type RuleDefaults struct {
	Window        time.Duration `yaml:"window"`
	MaxCandidates int           `yaml:"max_candidates"`
	Severity      string        `yaml:"severity"`
}

// Rule defines one ordered sequence of alert names for a single identity.
// A name matches an alert's kind, or the name or technique of one of its
// rule tags.
type Rule struct {
	ID            string        `yaml:"id"`
	Enabled       bool          `yaml:"enabled"`
	Description   string        `yaml:"description"`
	Sequence      []string      `yaml:"sequence"`
	Window        time.Duration `yaml:"window"`
	MaxCandidates int           `yaml:"max_candidates"`
	Severity      string        `yaml:"severity"`
}

// DefaultRuleSet flags a brute-force burst followed by off-hours access.
func DefaultRuleSet() *RuleSet {
	rs := &RuleSet{
		Version: 1,
		Rules: []Rule{{
			ID:          "bruteforce-then-night-access",
			Enabled:     true,
			Description: "failed login burst followed by access at an unusual hour",
			Sequence:    []string{"brute_force", "unusual_access_time"},
			Severity:    "critical",
		}},
	}
	applyRuleDefaults(rs)
	return rs
}

// LoadRuleSet reads sequence rules from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	applyRuleDefaults(&rs)
	return &rs, nil
}

func applyRuleDefaults(rs *RuleSet) {
	if rs.Defaults.Window <= 0 {
		rs.Defaults.Window = 30 * time.Minute
	}
	if rs.Defaults.MaxCandidates <= 0 {
		rs.Defaults.MaxCandidates = 2000
	}
	if rs.Defaults.Severity == "" {
		rs.Defaults.Severity = "high"
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if r.Window == 0 {
			r.Window = rs.Defaults.Window
		}
		if r.MaxCandidates <= 0 {
			r.MaxCandidates = rs.Defaults.MaxCandidates
		}
		if r.Severity == "" {
			r.Severity = rs.Defaults.Severity
		}
		if len(r.Sequence) > 0 {
			clean := make([]string, 0, len(r.Sequence))
			for _, s := range r.Sequence {
				s = strings.TrimSpace(s)
				if s != "" {
					clean = append(clean, s)
				}
			}
			r.Sequence = clean
		}
	}
}
