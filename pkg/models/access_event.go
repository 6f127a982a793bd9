package models

import (
	"fmt"
	"time"
)

// AccessEvent is one normalized authentication or access event.
type AccessEvent struct {
	EventID          string                 `json:"event_id,omitempty"`
	Timestamp        time.Time              `json:"@timestamp"`
	Identity         string                 `json:"identity"`
	CredentialsValid *bool                  `json:"credentials_valid,omitempty"`
	Action           string                 `json:"action,omitempty"`
	SourceIP         string                 `json:"source_ip,omitempty"`
	UserAgent        string                 `json:"user_agent,omitempty"`
	Hostname         string                 `json:"hostname,omitempty"`
	Fields           map[string]interface{} `json:"fields,omitempty"`
	RuleTags         []RuleTag              `json:"rule_tags,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// IsLoginAttempt reports whether the event carries an authentication result.
// Events without one are plain access events.
func (e *AccessEvent) IsLoginAttempt() bool {
	return e != nil && e.CredentialsValid != nil
}

// Outcome returns "success", "failure" or "" for access-only events.
func (e *AccessEvent) Outcome() string {
	if !e.IsLoginAttempt() {
		return ""
	}
	if *e.CredentialsValid {
		return "success"
	}
	return "failure"
}

// Field returns a field value.
func (e *AccessEvent) Field(name string) string {
	if e == nil || e.Fields == nil {
		return ""
	}
	if v, ok := e.Fields[name]; ok {
		switch val := v.(type) {
		case string:
			return val
		case fmt.Stringer:
			return val.String()
		case int:
			return fmt.Sprintf("%d", val)
		case int64:
			return fmt.Sprintf("%d", val)
		case float64:
			if val == float64(int64(val)) {
				return fmt.Sprintf("%d", int64(val))
			}
			return fmt.Sprintf("%f", val)
		case bool:
			if val {
				return "true"
			}
			return "false"
		default:
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}

// RuleTag is a Sigma rule match attached to an access event.
type RuleTag struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Tactic    string `json:"tactic,omitempty"`
	Technique string `json:"technique,omitempty"`
}
