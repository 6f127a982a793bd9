package models

import "time"

// Alert kinds produced by the detection pipeline.
const (
	AlertKindBruteForce        = "brute_force"
	AlertKindUnusualAccessTime = "unusual_access_time"
	AlertKindRuleMatch         = "rule_match"
)

// Alert describes one suspicious authentication or access finding.
type Alert struct {
	AlertID     string    `json:"alert_id"`
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	Identity    string    `json:"identity,omitempty"`
	Hostname    string    `json:"host,omitempty"`
	SourceIP    string    `json:"source_ip,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Message     string    `json:"message"`
	RuleTags    []RuleTag `json:"rule_tags,omitempty"`
}
