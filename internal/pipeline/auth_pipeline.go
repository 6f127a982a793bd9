package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"riskwatch/internal/alerts"
	"riskwatch/internal/intrusion"
	"riskwatch/internal/logger"
	"riskwatch/internal/metrics"
	"riskwatch/internal/rules"
	"riskwatch/internal/transform/authlog"
	"riskwatch/pkg/models"
)

// Source yields raw access-event payloads. Pop returns nil, nil when nothing
// arrived in time and io.EOF when the feed is exhausted.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// AuthPipeline consumes access events, runs the intrusion detectors and
// writes alerts.
type AuthPipeline struct {
	source        Source
	engine        rules.Engine
	monitor       *intrusion.Monitor
	builder       *alerts.Builder
	writer        AlertWriter
	metrics       *metrics.Metrics
	workers       int
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time
}

// NewAuthPipeline creates a pipeline. A nil metrics value gets a private
// registry.
func NewAuthPipeline(source Source, engine rules.Engine, monitor *intrusion.Monitor, builder *alerts.Builder, writer AlertWriter, m *metrics.Metrics, workers, batchSize int, flushInterval time.Duration) *AuthPipeline {
	if m == nil {
		m = metrics.New()
	}
	return &AuthPipeline{
		source:        source,
		engine:        engine,
		monitor:       monitor,
		builder:       builder,
		writer:        writer,
		metrics:       m,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
	}
}

// Run starts the pipeline and blocks until ctx is cancelled or the source is
// exhausted. Pending alerts are flushed before it returns.
func (p *AuthPipeline) Run(ctx context.Context) error {
	logger.Infof("Auth pipeline started")

	if p.workers <= 0 {
		p.workers = 8
	}
	if p.batchSize <= 0 {
		p.batchSize = 500
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	// One channel per worker keeps each identity's events in feed order.
	shards := make([]chan *models.AccessEvent, p.workers)
	for i := range shards {
		shards[i] = make(chan *models.AccessEvent, 64)
	}
	alertCh := make(chan []*models.Alert, p.workers*4)

	go func() {
		p.readLoop(ctx, shards)
		for _, ch := range shards {
			close(ch)
		}
	}()

	var workers sync.WaitGroup
	for _, ch := range shards {
		workers.Add(1)
		go func(in <-chan *models.AccessEvent) {
			defer workers.Done()
			p.workerLoop(in, alertCh)
		}(ch)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.writeLoop(ctx, alertCh)
	}()

	workers.Wait()
	close(alertCh)
	<-done

	logger.Infof("Auth pipeline stopped")
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *AuthPipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *AuthPipeline) readLoop(ctx context.Context, shards []chan *models.AccessEvent) {
	for {
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				logger.Infof("Input feed exhausted")
				return
			}
			logger.Errorf("Failed to pop input message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}
		p.metrics.EventsConsumed.Inc()

		event, err := authlog.Parse(payload)
		if err != nil {
			p.metrics.ParseErrors.Inc()
			logger.Warnf("Failed to parse access event: %v", err)
			continue
		}

		shard := shards[shardFor(event.Identity, len(shards))]
		select {
		case shard <- event:
		case <-ctx.Done():
			return
		}
	}
}

func shardFor(identity string, n int) int {
	return int(xxhash.Sum64String(intrusion.NormalizeIdentity(identity)) % uint64(n))
}

func (p *AuthPipeline) workerLoop(in <-chan *models.AccessEvent, out chan<- []*models.Alert) {
	for event := range in {
		if alertsOut := p.process(event); len(alertsOut) > 0 {
			out <- alertsOut
		}
	}
}

func (p *AuthPipeline) process(event *models.AccessEvent) []*models.Alert {
	if p.engine != nil {
		event.RuleTags = p.engine.Apply(event)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	p.metrics.ObserveLogin(event.CredentialsValid)
	verdict := p.monitor.Inspect(event.Identity, event.CredentialsValid, event.Timestamp)
	if p.builder == nil {
		return nil
	}

	alertsOut, suppressed := p.builder.Build(event, verdict)
	if suppressed > 0 {
		p.metrics.AlertsSuppressed.Add(float64(suppressed))
	}
	for _, a := range alertsOut {
		p.metrics.AlertsEmitted.WithLabelValues(a.Kind).Inc()
	}
	return alertsOut
}

// writeLoop drains in until it is closed. Writes are retried every second
// while ctx is live; once ctx is done a failing batch is dropped.
func (p *AuthPipeline) writeLoop(ctx context.Context, in <-chan []*models.Alert) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.Alert

	flush := func() {
		if p.writer == nil || len(batch) == 0 {
			batch = nil
			return
		}
		for {
			err := p.writer.WriteAlerts(batch)
			if err == nil {
				batch = nil
				return
			}
			p.metrics.WriteErrors.Inc()
			logger.Errorf("Failed to write alerts: %v", err)
			if ctx.Err() != nil {
				logger.Warnf("Dropping %d alerts on shutdown", len(batch))
				batch = nil
				return
			}
			select {
			case <-ctx.Done():
			case <-time.After(1 * time.Second):
			}
		}
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case items, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, items...)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}
