// Package authlog normalizes authentication log records into AccessEvents.
//
// Two shapes are accepted: a flat record
//
//	{"@timestamp": "...", "identity": "alice", "success": false, "source_ip": "10.0.0.1"}
//
// and an ECS-style record
//
//	{"@timestamp": "...", "user": {"name": "alice"}, "event": {"outcome": "failure"}, "source": {"ip": "10.0.0.1"}}
package authlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"riskwatch/pkg/models"
)

// Parse converts one JSON record into an AccessEvent. A record without any
// authentication result yields an access-only event.
func Parse(data []byte) (*models.AccessEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	event := &models.AccessEvent{
		Fields: make(map[string]interface{}),
		Raw:    raw,
	}

	event.Timestamp = parseTimestamp(raw)
	event.EventID = getString(raw, "event_id", "event.id", "id")
	event.Identity = strings.TrimSpace(getString(raw, "identity", "user.name", "username", "user"))
	event.Action = getString(raw, "action", "event.action")
	event.SourceIP = getString(raw, "source_ip", "source.ip", "ip")
	event.UserAgent = getString(raw, "user_agent.original", "user_agent")
	event.Hostname = getString(raw, "host.name", "host.hostname", "hostname", "host")

	if ok, found := getBool(raw, "credentials_valid", "success"); found {
		event.CredentialsValid = &ok
	} else {
		switch strings.ToLower(getString(raw, "event.outcome", "outcome")) {
		case "success":
			v := true
			event.CredentialsValid = &v
		case "failure":
			v := false
			event.CredentialsValid = &v
		}
	}

	if v, ok := getPath(raw, "fields"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			event.Fields = m
		}
	}
	return event, nil
}

func parseTimestamp(raw map[string]interface{}) time.Time {
	if ts := getString(raw, "@timestamp", "timestamp", "time"); ts != "" {
		if t, ok := parseTime(ts); ok {
			return t
		}
	}
	if v, ok := getPath(raw, "ts"); ok {
		if f, ok := v.(float64); ok && f > 0 {
			sec := int64(f)
			return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
		}
	}
	return time.Time{}
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return val
			case float64:
				if val == float64(int64(val)) {
					return fmt.Sprintf("%d", int64(val))
				}
				return fmt.Sprintf("%f", val)
			}
		}
	}
	return ""
}

func getBool(root map[string]interface{}, paths ...string) (bool, bool) {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case bool:
				return val, true
			case string:
				switch strings.ToLower(strings.TrimSpace(val)) {
				case "true", "1", "yes":
					return true, true
				case "false", "0", "no":
					return false, true
				}
			case float64:
				return val != 0, true
			}
		}
	}
	return false, false
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
