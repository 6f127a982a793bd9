// Package metrics exposes pipeline and detector counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskwatch/internal/intrusion"
)

const namespace = "riskwatch"

// Metrics holds every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	EventsConsumed   prometheus.Counter
	ParseErrors      prometheus.Counter
	LoginChecks      *prometheus.CounterVec
	DetectorEvents   *prometheus.CounterVec
	AlertsEmitted    *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	WriteErrors      prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Access events read from the input feed.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Feed payloads that could not be parsed.",
		}),
		LoginChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_checks_total",
			Help:      "Access events inspected by outcome.",
		}, []string{"outcome"}),
		DetectorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_events_total",
			Help:      "Events emitted by the intrusion monitor.",
		}, []string{"kind", "severity"}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alerts handed to the output writer.",
		}, []string{"kind"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts dropped by the per-identity cooldown.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Failed alert batch writes.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsConsumed,
		m.ParseErrors,
		m.LoginChecks,
		m.DetectorEvents,
		m.AlertsEmitted,
		m.AlertsSuppressed,
		m.WriteErrors,
	)
	return m
}

// TrackIdentities exports the number of identities held by the monitor.
func (m *Metrics) TrackIdentities(count func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_identities",
		Help:      "Identities with sliding-window state in the monitor.",
	}, func() float64 { return float64(count()) }))
}

// ObserveLogin counts one inspected access event. A nil outcome means the
// event carried no credential result.
func (m *Metrics) ObserveLogin(credentialsValid *bool) {
	outcome := "access"
	if credentialsValid != nil {
		if *credentialsValid {
			outcome = "success"
		} else {
			outcome = "failure"
		}
	}
	m.LoginChecks.WithLabelValues(outcome).Inc()
}

// Sink returns an intrusion sink that counts detector events.
func (m *Metrics) Sink() intrusion.Sink {
	return intrusion.SinkFunc(func(e intrusion.Event) {
		m.DetectorEvents.WithLabelValues(string(e.Kind), string(e.Severity)).Inc()
	})
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
