package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Riskwatch RiskwatchConfig `yaml:"riskwatch"`
}

// RiskwatchConfig is the project configuration.
type RiskwatchConfig struct {
	Monitor   MonitorConfig   `yaml:"monitor"`
	Attack    AttackConfig    `yaml:"attack"`
	Input     InputConfig     `yaml:"input"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Rules     RulesConfig     `yaml:"rules"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Incidents IncidentsConfig `yaml:"incidents"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MonitorConfig controls the intrusion detectors.
type MonitorConfig struct {
	Window           time.Duration `yaml:"window"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuspiciousHours  HourRange     `yaml:"suspicious_hours"`
	IdleTTL          time.Duration `yaml:"idle_ttl"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	Timezone         string        `yaml:"timezone"`
}

// HourRange is an inclusive range of local hours. Nil bounds take defaults.
type HourRange struct {
	Start *int `yaml:"start"`
	End   *int `yaml:"end"`
}

// AttackConfig controls membership inference audits.
type AttackConfig struct {
	Threshold *float64  `yaml:"threshold"`
	Epsilon   *float64  `yaml:"epsilon"`
	Sweep     []float64 `yaml:"sweep"`
}

// InputConfig controls the event feed.
type InputConfig struct {
	Mode  string      `yaml:"mode"` // redis|kafka
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// RedisConfig controls Redis input.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// KafkaConfig controls Kafka input.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Group   string   `yaml:"group"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RulesConfig controls Sigma rule tagging.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertsConfig controls alert building and output.
type AlertsConfig struct {
	Cooldown time.Duration     `yaml:"cooldown"`
	Output   AlertOutputConfig `yaml:"output"`
}

// AlertOutputConfig controls the alert sink.
type AlertOutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|http|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// IncidentsConfig controls the Redis incident-state store.
type IncidentsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads a YAML config file, overlays RISKWATCH_* environment
// variables, fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	rw := &cfg.Riskwatch
	var errs []error

	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setIntPtr := func(key string, dst **int) {
		var n int
		if _, ok := lookup(key); !ok {
			return
		}
		before := len(errs)
		setInt(key, &n)
		if len(errs) == before {
			*dst = &n
		}
	}
	setFloatPtr := func(key string, dst **float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = &f
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	setDuration("RISKWATCH_MONITOR_WINDOW", &rw.Monitor.Window)
	setInt("RISKWATCH_MONITOR_FAILURE_THRESHOLD", &rw.Monitor.FailureThreshold)
	setIntPtr("RISKWATCH_MONITOR_SUSPICIOUS_START", &rw.Monitor.SuspiciousHours.Start)
	setIntPtr("RISKWATCH_MONITOR_SUSPICIOUS_END", &rw.Monitor.SuspiciousHours.End)
	setDuration("RISKWATCH_MONITOR_IDLE_TTL", &rw.Monitor.IdleTTL)
	setString("RISKWATCH_MONITOR_TIMEZONE", &rw.Monitor.Timezone)
	setFloatPtr("RISKWATCH_ATTACK_THRESHOLD", &rw.Attack.Threshold)
	setFloatPtr("RISKWATCH_ATTACK_EPSILON", &rw.Attack.Epsilon)
	setString("RISKWATCH_INPUT_MODE", &rw.Input.Mode)
	setString("RISKWATCH_REDIS_ADDR", &rw.Input.Redis.Addr)
	setString("RISKWATCH_REDIS_PASSWORD", &rw.Input.Redis.Password)
	setString("RISKWATCH_REDIS_KEY", &rw.Input.Redis.Key)
	setString("RISKWATCH_KAFKA_TOPIC", &rw.Input.Kafka.Topic)
	if v, ok := lookup("RISKWATCH_KAFKA_BROKERS"); ok {
		rw.Input.Kafka.Brokers = splitList(v)
	}
	setString("RISKWATCH_ALERTS_MODE", &rw.Alerts.Output.Mode)
	setString("RISKWATCH_METRICS_ADDR", &rw.Metrics.Addr)
	setString("RISKWATCH_LOG_LEVEL", &rw.Logging.Level)

	return errors.Join(errs...)
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	rw := &cfg.Riskwatch

	if rw.Monitor.Window == 0 {
		rw.Monitor.Window = 60 * time.Second
	}
	if rw.Monitor.FailureThreshold == 0 {
		rw.Monitor.FailureThreshold = 3
	}
	if rw.Monitor.SuspiciousHours.Start == nil {
		rw.Monitor.SuspiciousHours.Start = intPtr(0)
	}
	if rw.Monitor.SuspiciousHours.End == nil {
		rw.Monitor.SuspiciousHours.End = intPtr(6)
	}
	if rw.Monitor.SweepInterval <= 0 {
		rw.Monitor.SweepInterval = time.Minute
	}
	if rw.Monitor.Timezone == "" {
		rw.Monitor.Timezone = "Local"
	}

	if rw.Attack.Threshold == nil {
		rw.Attack.Threshold = floatPtr(0.8)
	}
	if rw.Attack.Epsilon == nil {
		rw.Attack.Epsilon = floatPtr(1.0)
	}
	if len(rw.Attack.Sweep) == 0 {
		rw.Attack.Sweep = []float64{0.5, 0.6, 0.7, 0.8, 0.9}
	}

	if rw.Input.Mode == "" {
		rw.Input.Mode = "redis"
	}
	if rw.Input.Redis.Addr == "" {
		rw.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if rw.Input.Redis.Key == "" {
		rw.Input.Redis.Key = "auth_events"
	}
	if rw.Input.Redis.BlockTimeout == 0 {
		rw.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if rw.Input.Kafka.Topic == "" {
		rw.Input.Kafka.Topic = "auth-events"
	}

	if rw.Pipeline.Workers <= 0 {
		rw.Pipeline.Workers = 8
	}
	if rw.Pipeline.BatchSize <= 0 {
		rw.Pipeline.BatchSize = 500
	}
	if rw.Pipeline.FlushInterval <= 0 {
		rw.Pipeline.FlushInterval = 2 * time.Second
	}

	if rw.Alerts.Cooldown == 0 {
		rw.Alerts.Cooldown = 2 * time.Minute
	}
	if rw.Alerts.Output.Mode == "" {
		rw.Alerts.Output.Mode = "file"
	}
	if rw.Alerts.Output.File.Path == "" {
		rw.Alerts.Output.File.Path = "output/alerts.jsonl"
	}
	if rw.Alerts.Output.ClickHouse.Database == "" {
		rw.Alerts.Output.ClickHouse.Database = "riskwatch"
	}
	if rw.Alerts.Output.ClickHouse.Table == "" {
		rw.Alerts.Output.ClickHouse.Table = "alerts"
	}

	if rw.Incidents.Addr == "" {
		rw.Incidents.Addr = rw.Input.Redis.Addr
	}
	if rw.Incidents.KeyPrefix == "" {
		rw.Incidents.KeyPrefix = "riskwatch:incidents"
	}

	if rw.Metrics.Addr == "" {
		rw.Metrics.Addr = ":9108"
	}

	if rw.Logging.Level == "" {
		rw.Logging.Level = "info"
	}
}

// Validate rejects configurations the detectors cannot run with.
func Validate(cfg *Config) error {
	rw := &cfg.Riskwatch
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if rw.Monitor.Window <= 0 {
		invalid("monitor.window must be positive, got %s", rw.Monitor.Window)
	}
	if rw.Monitor.FailureThreshold < 1 {
		invalid("monitor.failure_threshold must be at least 1, got %d", rw.Monitor.FailureThreshold)
	}
	if rw.Monitor.IdleTTL < 0 {
		invalid("monitor.idle_ttl must not be negative, got %s", rw.Monitor.IdleTTL)
	}
	if h := rw.Monitor.SuspiciousHours; h.Start != nil && h.End != nil {
		if *h.Start < 0 || *h.Start > 23 || *h.End < 0 || *h.End > 23 {
			invalid("monitor.suspicious_hours must lie in 0..23, got %d..%d", *h.Start, *h.End)
		} else if *h.Start > *h.End {
			invalid("monitor.suspicious_hours start %d is after end %d", *h.Start, *h.End)
		}
	}
	if _, err := rw.Monitor.Location(); err != nil {
		invalid("monitor.timezone: %v", err)
	}

	if th := rw.Attack.Threshold; th != nil && (*th < 0 || *th > 1) {
		invalid("attack.threshold must lie in [0,1], got %v", *th)
	}
	if eps := rw.Attack.Epsilon; eps != nil && *eps < 0 {
		invalid("attack.epsilon must not be negative, got %v", *eps)
	}
	for _, th := range rw.Attack.Sweep {
		if th < 0 || th > 1 {
			invalid("attack.sweep value %v outside [0,1]", th)
		}
	}

	switch rw.Input.Mode {
	case "redis":
	case "kafka":
		if len(rw.Input.Kafka.Brokers) == 0 {
			invalid("input.kafka.brokers is required in kafka mode")
		}
	default:
		invalid("unknown input.mode %q", rw.Input.Mode)
	}

	switch rw.Alerts.Output.Mode {
	case "file":
	case "http":
		if rw.Alerts.Output.HTTP.URL == "" {
			invalid("alerts.output.http.url is required in http mode")
		}
	case "clickhouse":
		if rw.Alerts.Output.ClickHouse.URL == "" {
			invalid("alerts.output.clickhouse.url is required in clickhouse mode")
		}
	default:
		invalid("unknown alerts.output.mode %q", rw.Alerts.Output.Mode)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone; "" and "Local" mean the process zone.
func (m MonitorConfig) Location() (*time.Location, error) {
	if m.Timezone == "" || strings.EqualFold(m.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(m.Timezone)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
