package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskwatch.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "riskwatch: {}\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	m := cfg.Riskwatch.Monitor
	if m.Window != 60*time.Second || m.FailureThreshold != 3 {
		t.Fatalf("unexpected monitor defaults: %+v", m)
	}
	if *m.SuspiciousHours.Start != 0 || *m.SuspiciousHours.End != 6 {
		t.Fatalf("unexpected hour defaults: %d..%d", *m.SuspiciousHours.Start, *m.SuspiciousHours.End)
	}
	if *cfg.Riskwatch.Attack.Threshold != 0.8 {
		t.Fatalf("expected decision threshold 0.8, got %v", *cfg.Riskwatch.Attack.Threshold)
	}
	if cfg.Riskwatch.Input.Mode != "redis" || cfg.Riskwatch.Alerts.Output.Mode != "file" {
		t.Fatalf("unexpected modes: input=%s alerts=%s", cfg.Riskwatch.Input.Mode, cfg.Riskwatch.Alerts.Output.Mode)
	}
	if cfg.Riskwatch.Incidents.Addr != cfg.Riskwatch.Input.Redis.Addr {
		t.Fatalf("expected incident store to default to the input redis address")
	}
}

func TestLoadConfigReadsYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
riskwatch:
  monitor:
    window: 2m
    failure_threshold: 5
    suspicious_hours: {start: 0, end: 0}
    timezone: UTC
  attack:
    threshold: 0
    sweep: [0.1, 0.2]
  input:
    mode: kafka
    kafka:
      brokers: [k1:9092, k2:9092]
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	m := cfg.Riskwatch.Monitor
	if m.Window != 2*time.Minute || m.FailureThreshold != 5 {
		t.Fatalf("unexpected monitor config: %+v", m)
	}
	if *m.SuspiciousHours.End != 0 {
		t.Fatalf("explicit end hour 0 must survive defaults, got %d", *m.SuspiciousHours.End)
	}
	if *cfg.Riskwatch.Attack.Threshold != 0 {
		t.Fatalf("explicit threshold 0 must survive defaults")
	}
	if len(cfg.Riskwatch.Input.Kafka.Brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", cfg.Riskwatch.Input.Kafka.Brokers)
	}
	loc, err := m.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	var cfg Config
	cfg.Riskwatch.Monitor.Window = time.Minute
	env := map[string]string{
		"RISKWATCH_MONITOR_WINDOW":            "90s",
		"RISKWATCH_MONITOR_FAILURE_THRESHOLD": "4",
		"RISKWATCH_MONITOR_SUSPICIOUS_END":    "5",
		"RISKWATCH_ATTACK_THRESHOLD":          "0.65",
		"RISKWATCH_KAFKA_BROKERS":             "a:1, b:2,",
		"RISKWATCH_LOG_LEVEL":                 " debug ",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	if err := ApplyEnv(&cfg, lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	rw := cfg.Riskwatch
	if rw.Monitor.Window != 90*time.Second || rw.Monitor.FailureThreshold != 4 {
		t.Fatalf("unexpected monitor overrides: %+v", rw.Monitor)
	}
	if rw.Monitor.SuspiciousHours.End == nil || *rw.Monitor.SuspiciousHours.End != 5 {
		t.Fatalf("expected end hour 5")
	}
	if rw.Monitor.SuspiciousHours.Start != nil {
		t.Fatalf("start hour was not set and must stay nil")
	}
	if *rw.Attack.Threshold != 0.65 {
		t.Fatalf("expected threshold 0.65, got %v", *rw.Attack.Threshold)
	}
	if strings.Join(rw.Input.Kafka.Brokers, "|") != "a:1|b:2" {
		t.Fatalf("unexpected brokers %v", rw.Input.Kafka.Brokers)
	}
	if rw.Logging.Level != "debug" {
		t.Fatalf("expected trimmed level, got %q", rw.Logging.Level)
	}
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	var cfg Config
	env := map[string]string{
		"RISKWATCH_MONITOR_WINDOW":         "soon",
		"RISKWATCH_MONITOR_SUSPICIOUS_END": "six",
	}
	err := ApplyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil {
		t.Fatalf("expected error for unparsable env values")
	}
	if !strings.Contains(err.Error(), "RISKWATCH_MONITOR_WINDOW") || !strings.Contains(err.Error(), "RISKWATCH_MONITOR_SUSPICIOUS_END") {
		t.Fatalf("expected both keys in error, got %v", err)
	}
	if cfg.Riskwatch.Monitor.SuspiciousHours.End != nil {
		t.Fatalf("bad value must not be stored")
	}
}

func TestValidateRejectsBadMonitorConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"negative window":    func(c *Config) { c.Riskwatch.Monitor.Window = -time.Second },
		"negative threshold": func(c *Config) { c.Riskwatch.Monitor.FailureThreshold = -1 },
		"hour out of range":  func(c *Config) { c.Riskwatch.Monitor.SuspiciousHours.End = intPtr(24) },
		"inverted hours":     func(c *Config) { c.Riskwatch.Monitor.SuspiciousHours.Start = intPtr(7) },
		"bad timezone":       func(c *Config) { c.Riskwatch.Monitor.Timezone = "Mars/Olympus" },
		"threshold above 1":  func(c *Config) { c.Riskwatch.Attack.Threshold = floatPtr(1.5) },
		"bad sweep":          func(c *Config) { c.Riskwatch.Attack.Sweep = []float64{-0.1} },
		"unknown input mode": func(c *Config) { c.Riskwatch.Input.Mode = "carrier-pigeon" },
		"kafka w/o brokers":  func(c *Config) { c.Riskwatch.Input.Mode = "kafka" },
		"http w/o url":       func(c *Config) { c.Riskwatch.Alerts.Output.Mode = "http" },
		"clickhouse w/o url": func(c *Config) { c.Riskwatch.Alerts.Output.Mode = "clickhouse" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var cfg Config
			mutate(&cfg)
			ApplyDefaults(&cfg)
			err := Validate(&cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	var cfg Config
	if err := ApplyEnv(&cfg, noEnv); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file must be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RISKWATCH_TEST_ONLY_KEY=from-file\n"), 0644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("RISKWATCH_TEST_ONLY_KEY") })
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("RISKWATCH_TEST_ONLY_KEY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}
