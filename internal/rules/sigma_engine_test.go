package rules

import (
	"os"
	"path/filepath"
	"testing"

	"riskwatch/pkg/models"
)

const denylistedSourceRule = `title: Failed login from denylisted source
id: 0b8f9d2c-5e51-4c39-9d3e-0c7d2f1a4b11
status: experimental
logsource:
  category: authentication
detection:
  selection:
    IpAddress: 203.0.113.66
    Outcome: failure
  condition: selection
level: high
tags:
  - attack.credential_access
  - attack.t1110.001
`

const processRule = `title: Not an auth rule
id: 6d1f0a4e-1111-4c39-9d3e-0c7d2f1a4b22
logsource:
  category: process_creation
  product: windows
detection:
  selection:
    Image: cmd.exe
  condition: selection
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write rule %s: %v", name, err)
		}
	}
	return dir
}

func TestNewSigmaEngineLoadsOnlyAuthRules(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"deny.yml":    denylistedSourceRule,
		"process.yml": processRule,
		"broken.yaml": "title: [unterminated\n",
		"notes.txt":   "ignored",
	})

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Fatalf("expected 3 yaml files, got %d", stats.TotalFiles)
	}
	if stats.Loaded != 1 || stats.SkippedDatasource != 1 || stats.SkippedInvalid != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(engine.rules) != 1 {
		t.Fatalf("expected 1 compiled rule, got %d", len(engine.rules))
	}
}

func TestSigmaEngineApplyTagsMatchingEvent(t *testing.T) {
	engine, _, err := NewSigmaEngine(writeRules(t, map[string]string{"deny.yml": denylistedSourceRule}))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	failed := false
	hit := &models.AccessEvent{Identity: "alice", SourceIP: "203.0.113.66", CredentialsValid: &failed}
	tags := engine.Apply(hit)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}
	tag := tags[0]
	if tag.Severity != "high" || tag.Tactic != "credential-access" || tag.Technique != "T1110/001" {
		t.Fatalf("unexpected tag: %+v", tag)
	}
	if tag.ID != "0b8f9d2c-5e51-4c39-9d3e-0c7d2f1a4b11" || tag.Name != "Failed login from denylisted source" {
		t.Fatalf("unexpected tag identity: %+v", tag)
	}

	ok := true
	miss := &models.AccessEvent{Identity: "alice", SourceIP: "203.0.113.66", CredentialsValid: &ok}
	if tags := engine.Apply(miss); tags != nil {
		t.Fatalf("expected no tags for successful login, got %+v", tags)
	}
}

func TestNewSigmaEngineRejectsNonYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.txt")
	if err := os.WriteFile(path, []byte(denylistedSourceRule), 0644); err != nil {
		t.Fatalf("write rule: %v", err)
	}
	if _, _, err := NewSigmaEngine(path); err == nil {
		t.Fatalf("expected error for non-yaml rule file")
	}
}

func TestSigmaEventFromUsesAuthFieldNames(t *testing.T) {
	failed := false
	ev := &models.AccessEvent{
		Identity:         "bob",
		SourceIP:         "192.0.2.9",
		Hostname:         "bastion",
		Action:           "ssh_login",
		CredentialsValid: &failed,
		Fields:           map[string]interface{}{"LogonType": 10},
	}
	m := sigmaEventFrom(ev)
	for key, want := range map[string]interface{}{
		"User": "bob", "TargetUserName": "bob", "IpAddress": "192.0.2.9",
		"Computer": "bastion", "Action": "ssh_login", "Outcome": "failure", "LogonType": 10,
	} {
		if m[key] != want {
			t.Fatalf("field %s: expected %v, got %v", key, want, m[key])
		}
	}
	if _, ok := m["UserAgent"]; ok {
		t.Fatalf("empty user agent must not be exposed")
	}
}

func TestNilEngineApply(t *testing.T) {
	var engine *SigmaEngine
	if tags := engine.Apply(&models.AccessEvent{}); tags != nil {
		t.Fatalf("expected nil tags from nil engine")
	}
	if tags := (&NoopEngine{}).Apply(&models.AccessEvent{}); tags != nil {
		t.Fatalf("expected nil tags from noop engine")
	}
}

func TestNewSigmaEngineRecordsComplexRuleReason(t *testing.T) {
	const keywords = `title: Failed password keyword
id: 3a9e1c7b-2222-4c39-9d3e-0c7d2f1a4b33
logsource:
  service: sshd
detection:
  keywords:
    - 'Failed password'
  condition: keywords
`
	dir := writeRules(t, map[string]string{"keywords.yml": keywords})
	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if engine.Len() != 0 || stats.SkippedComplex != 1 {
		t.Fatalf("expected keyword rule to be skipped, got %+v", stats)
	}
	if reason := stats.Reasons[filepath.Join(dir, "keywords.yml")]; reason == "" {
		t.Fatalf("expected a skip reason, got %v", stats.Reasons)
	}
}
