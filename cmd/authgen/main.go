package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"riskwatch/config"
	inputkafka "riskwatch/internal/input/kafka"
	inputredis "riskwatch/internal/input/redis"
	"riskwatch/internal/synth"
)

type pusher interface {
	Push(ctx context.Context, payloads ...[]byte) error
	Close() error
}

func main() {
	configArg := flag.String("config", "riskwatch.yml", "Config file with the input feed settings")
	users := flag.Int("users", 20, "Number of synthetic users")
	logins := flag.Int("logins", 200, "Number of daytime login attempts")
	bursts := flag.Int("bursts", 3, "Number of brute-force bursts")
	burstSize := flag.Int("burst-size", 5, "Failed attempts per burst")
	night := flag.Int("night", 5, "Number of off-hours accesses")
	seed := flag.Uint64("seed", 1, "Random seed")
	day := flag.String("day", "", "Day to place events on (YYYY-MM-DD, default today)")
	batch := flag.Int("batch", 100, "Events per push")
	dryRun := flag.Bool("dry-run", false, "Print JSON lines to stdout instead of pushing")
	flag.Parse()

	genDay := time.Now()
	if strings.TrimSpace(*day) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *day, time.Local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -day: %v\n", err)
			os.Exit(2)
		}
		genDay = parsed
	}

	records := synth.NewGenerator(synth.Config{
		Seed:             *seed,
		Users:            *users,
		Day:              genDay,
		Logins:           *logins,
		BruteForceBursts: *bursts,
		BurstSize:        *burstSize,
		NightAccess:      *night,
	}).Generate()

	payloads := make([][]byte, 0, len(records))
	for _, r := range records {
		p, err := r.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode event: %v\n", err)
			os.Exit(1)
		}
		payloads = append(payloads, p)
	}

	if *dryRun {
		w := bufio.NewWriter(os.Stdout)
		for _, p := range payloads {
			w.Write(p)
			w.WriteByte('\n')
		}
		w.Flush()
		return
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(*configArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	out, err := newPusher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect input feed: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *batch <= 0 {
		*batch = 100
	}
	for start := 0; start < len(payloads); start += *batch {
		end := min(start+*batch, len(payloads))
		if err := out.Push(ctx, payloads[start:end]...); err != nil {
			fmt.Fprintf(os.Stderr, "failed to push events: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("pushed events=%d mode=%s\n", len(payloads), cfg.Riskwatch.Input.Mode)
}

func newPusher(cfg *config.Config) (pusher, error) {
	in := cfg.Riskwatch.Input
	if in.Mode == "kafka" {
		return inputkafka.NewProducer(inputkafka.Config{
			Brokers: in.Kafka.Brokers,
			Topic:   in.Kafka.Topic,
		})
	}
	return inputredis.NewConsumer(inputredis.Config{
		Addr:     in.Redis.Addr,
		Password: in.Redis.Password,
		DB:       in.Redis.DB,
		Key:      in.Redis.Key,
	})
}
