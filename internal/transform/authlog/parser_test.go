package authlog

import (
	"testing"
	"time"
)

func TestParseFlatRecord(t *testing.T) {
	ev, err := Parse([]byte(`{"@timestamp":"2026-03-04T02:15:00Z","identity":" alice ","success":false,"source_ip":"10.0.0.7","user_agent":"curl/8","hostname":"web-1","event_id":42,"fields":{"method":"password"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Identity != "alice" {
		t.Fatalf("expected trimmed identity, got %q", ev.Identity)
	}
	if !ev.IsLoginAttempt() || *ev.CredentialsValid {
		t.Fatalf("expected a failed login attempt")
	}
	if ev.Outcome() != "failure" {
		t.Fatalf("unexpected outcome %q", ev.Outcome())
	}
	if !ev.Timestamp.Equal(time.Date(2026, 3, 4, 2, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", ev.Timestamp)
	}
	if ev.SourceIP != "10.0.0.7" || ev.UserAgent != "curl/8" || ev.Hostname != "web-1" || ev.EventID != "42" {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if ev.Field("method") != "password" {
		t.Fatalf("expected fields map to be kept")
	}
}

func TestParseECSRecord(t *testing.T) {
	ev, err := Parse([]byte(`{"@timestamp":"2026-03-04T10:00:00.5Z","user":{"name":"bob"},"event":{"outcome":"success","action":"ssh_login","id":"e-1"},"source":{"ip":"192.0.2.1"},"user_agent":{"original":"OpenSSH"},"host":{"name":"bastion"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Identity != "bob" || ev.Action != "ssh_login" || ev.EventID != "e-1" {
		t.Fatalf("unexpected identity/action: %+v", ev)
	}
	if !ev.IsLoginAttempt() || !*ev.CredentialsValid {
		t.Fatalf("expected successful login")
	}
	if ev.SourceIP != "192.0.2.1" || ev.UserAgent != "OpenSSH" || ev.Hostname != "bastion" {
		t.Fatalf("unexpected nested fields: %+v", ev)
	}
}

func TestParseAccessOnlyRecord(t *testing.T) {
	ev, err := Parse([]byte(`{"identity":"carol","action":"open_report","ts":1772589600.25}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.IsLoginAttempt() || ev.Outcome() != "" {
		t.Fatalf("expected access-only event")
	}
	if ev.Timestamp.Unix() != 1772589600 || ev.Timestamp.Nanosecond() != 250000000 {
		t.Fatalf("unexpected epoch timestamp %v", ev.Timestamp)
	}
}

func TestParseStringBooleansAndMissingTime(t *testing.T) {
	ev, err := Parse([]byte(`{"username":"dave","credentials_valid":"no","timestamp":"not a time"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.CredentialsValid == nil || *ev.CredentialsValid {
		t.Fatalf("expected failed login from string boolean")
	}
	if !ev.Timestamp.IsZero() {
		t.Fatalf("expected zero timestamp for unparsable time, got %v", ev.Timestamp)
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, in := range []string{`[1,2]`, `not json`, `"alice"`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}
