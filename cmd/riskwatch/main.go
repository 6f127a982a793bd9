package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"riskwatch/config"
	"riskwatch/internal/alerts"
	"riskwatch/internal/incidentstate"
	inputkafka "riskwatch/internal/input/kafka"
	inputredis "riskwatch/internal/input/redis"
	"riskwatch/internal/intrusion"
	"riskwatch/internal/logger"
	"riskwatch/internal/metrics"
	"riskwatch/internal/output/alertclickhouse"
	"riskwatch/internal/output/alerthttp"
	"riskwatch/internal/output/alertjson"
	"riskwatch/internal/pipeline"
	"riskwatch/internal/rules"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("riskwatch.yml"); err == nil {
		return "riskwatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "riskwatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "riskwatch.yml"
}

func loadConfig(configArg string) (*config.Config, string, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, "", err
	}
	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func initLogger(cfg *config.Config) {
	lc := cfg.Riskwatch.Logging
	if err := logger.Init(lc.Enabled, lc.Level, lc.File, lc.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

func monitorConfig(cfg *config.Config) intrusion.Config {
	mc := cfg.Riskwatch.Monitor
	loc, _ := mc.Location()
	return intrusion.Config{
		Window:           mc.Window,
		FailureThreshold: mc.FailureThreshold,
		SuspiciousHours:  intrusion.HourRange{Start: *mc.SuspiciousHours.Start, End: *mc.SuspiciousHours.End},
		IdleTTL:          mc.IdleTTL,
		Location:         loc,
	}
}

func newSource(cfg *config.Config) (pipeline.Source, error) {
	in := cfg.Riskwatch.Input
	switch in.Mode {
	case "kafka":
		logger.Infof("Input mode: kafka (%s @ %s)", in.Kafka.Topic, strings.Join(in.Kafka.Brokers, ","))
		return inputkafka.NewConsumer(inputkafka.Config{
			Brokers: in.Kafka.Brokers,
			Topic:   in.Kafka.Topic,
			Group:   in.Kafka.Group,
		})
	default:
		logger.Infof("Input mode: redis (%s key=%s)", in.Redis.Addr, in.Redis.Key)
		return inputredis.NewConsumer(inputredis.Config{
			Addr:         in.Redis.Addr,
			Password:     in.Redis.Password,
			DB:           in.Redis.DB,
			Key:          in.Redis.Key,
			BlockTimeout: in.Redis.BlockTimeout,
		})
	}
}

func newRulesEngine(cfg *config.Config) rules.Engine {
	rc := cfg.Riskwatch.Rules
	if !rc.Enabled {
		return rules.NoopEngine{}
	}
	if strings.TrimSpace(rc.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; rule tagging disabled")
		return rules.NoopEngine{}
	}
	sigmaEngine, stats, err := rules.NewSigmaEngine(rc.Path)
	if err != nil {
		logger.Errorf("Failed to load Sigma rules from %s: %v", rc.Path, err)
		log.Fatalf("Failed to load Sigma rules: %v", err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedDatasource,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	for file, reason := range stats.Reasons {
		logger.Debugf("Sigma rule skipped: file=%s reason=%s", file, reason)
	}
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; rule tagging is effectively disabled")
	}
	return sigmaEngine
}

func newAlertWriter(cfg *config.Config) (pipeline.AlertWriter, error) {
	out := cfg.Riskwatch.Alerts.Output
	switch out.Mode {
	case "http":
		logger.Infof("Alert output mode: http (%s)", out.HTTP.URL)
		return alerthttp.NewWriter(alerthttp.Config{
			URL:     out.HTTP.URL,
			Timeout: out.HTTP.Timeout,
			Headers: out.HTTP.Headers,
		})
	case "clickhouse":
		logger.Infof("Alert output mode: clickhouse (%s/%s.%s)", out.ClickHouse.URL, out.ClickHouse.Database, out.ClickHouse.Table)
		return alertclickhouse.NewWriter(alertclickhouse.Config{
			URL:      out.ClickHouse.URL,
			Database: out.ClickHouse.Database,
			Table:    out.ClickHouse.Table,
			Username: out.ClickHouse.Username,
			Password: out.ClickHouse.Password,
			Timeout:  out.ClickHouse.Timeout,
			Headers:  out.ClickHouse.Headers,
		})
	default:
		logger.Infof("Alert output mode: file (%s)", out.File.Path)
		return alertjson.NewWriter(out.File.Path)
	}
}

func newIncidentStore(cfg *config.Config) (*incidentstate.RedisStore, error) {
	ic := cfg.Riskwatch.Incidents
	return incidentstate.NewRedisStore(incidentstate.RedisConfig{
		Addr:      ic.Addr,
		Password:  ic.Password,
		DB:        ic.DB,
		KeyPrefix: ic.KeyPrefix,
	})
}

func runMonitor(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	cfg, configPath, err := loadConfig(configArg)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	initLogger(cfg)
	defer logger.Sync()

	logger.Infof("Riskwatch monitor starting")
	logger.Infof("Config loaded from: %s", configPath)

	source, err := newSource(cfg)
	if err != nil {
		logger.Errorf("Failed to create input source: %v", err)
		return 1
	}

	m := metrics.New()
	monitor := intrusion.NewMonitor(monitorConfig(cfg), intrusion.Tee(intrusion.LogSink, m.Sink()))
	m.TrackIdentities(monitor.Len)

	builder := alerts.NewBuilder(alerts.Config{
		Window:   cfg.Riskwatch.Monitor.Window,
		Cooldown: cfg.Riskwatch.Alerts.Cooldown,
	})

	alertWriter, err := newAlertWriter(cfg)
	if err != nil {
		logger.Errorf("Failed to create alert writer: %v", err)
		source.Close()
		return 1
	}
	if cfg.Riskwatch.Incidents.Enabled {
		store, err := newIncidentStore(cfg)
		if err != nil {
			logger.Errorf("Failed to open incident store: %v", err)
			alertWriter.Close()
			source.Close()
			return 1
		}
		alertWriter = pipeline.FanOut{alertWriter, store}
		logger.Infof("Incident state: redis (%s prefix=%s)", cfg.Riskwatch.Incidents.Addr, cfg.Riskwatch.Incidents.KeyPrefix)
	}

	pipe := pipeline.NewAuthPipeline(
		source,
		newRulesEngine(cfg),
		monitor,
		builder,
		alertWriter,
		m,
		cfg.Riskwatch.Pipeline.Workers,
		cfg.Riskwatch.Pipeline.BatchSize,
		cfg.Riskwatch.Pipeline.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Riskwatch.Metrics.Enabled {
		go func() {
			logger.Infof("Metrics listening on %s", cfg.Riskwatch.Metrics.Addr)
			if err := metrics.Serve(ctx, cfg.Riskwatch.Metrics.Addr, m.Handler()); err != nil {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}
	if cfg.Riskwatch.Monitor.IdleTTL > 0 {
		go monitor.Run(ctx, cfg.Riskwatch.Monitor.SweepInterval)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Infof("Shutting down")
	case <-done:
		logger.Infof("Input exhausted, shutting down")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warnf("Pipeline did not stop within 10s")
	}

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("Riskwatch monitor stopped")
	return 0
}

func runIncidents(args []string) int {
	fs := flag.NewFlagSet("incidents", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	since := fs.Duration("since", 24*time.Hour, "Only list identities updated within this duration")
	limit := fs.Int64("limit", 100, "Maximum number of identities to read")
	output := fs.String("output", "", "Optional JSONL output path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	initLogger(cfg)

	store, err := newIncidentStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open incident store: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	incidents, err := store.FetchDirtySince(ctx, time.Now().Add(-*since), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read incidents: %v\n", err)
		return 1
	}
	ranked := incidentstate.Rank(incidents)

	fmt.Printf("%-24s %6s %6s %6s %6s %-20s\n", "identity", "alerts", "brute", "night", "rules", "last_alert")
	for _, inc := range ranked {
		last := "-"
		if !inc.LastAlertTimestamp.IsZero() {
			last = inc.LastAlertTimestamp.Format(time.RFC3339)
		}
		fmt.Printf("%-24s %6d %6d %6d %6d %-20s\n",
			inc.Identity, inc.AlertCount, inc.BruteForceCount, inc.UnusualTimeCount, inc.RuleMatchCount, last)
	}

	if strings.TrimSpace(*output) != "" {
		if err := writeJSONLines(*output, ranked); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write incidents: %v\n", err)
			return 1
		}
	}
	return 0
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: riskwatch <command> [arguments]

commands:
  monitor [config]   run the intrusion monitor pipeline
  audit              evaluate a membership inference attack
  sweep              evaluate the attack over several thresholds
  incidents          list identities with recent alerts
  analyze            correlate stored alerts into multi-step findings
`)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "monitor":
			os.Exit(runMonitor(os.Args[2:]))
		case "audit":
			os.Exit(runAudit(os.Args[2:]))
		case "sweep":
			os.Exit(runSweep(os.Args[2:]))
		case "incidents":
			os.Exit(runIncidents(os.Args[2:]))
		case "analyze":
			os.Exit(runAnalyze(os.Args[2:]))
		case "-h", "--help", "help":
			usage()
			return
		default:
			// Bare config path runs the monitor.
			os.Exit(runMonitor(os.Args[1:]))
		}
	}

	os.Exit(runMonitor(nil))
}
