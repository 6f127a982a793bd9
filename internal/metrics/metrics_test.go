package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"riskwatch/internal/intrusion"
)

func boolPtr(v bool) *bool { return &v }

func TestObserveLoginLabelsOutcome(t *testing.T) {
	m := New()
	m.ObserveLogin(boolPtr(false))
	m.ObserveLogin(boolPtr(false))
	m.ObserveLogin(boolPtr(true))
	m.ObserveLogin(nil)

	if got := testutil.ToFloat64(m.LoginChecks.WithLabelValues("failure")); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoginChecks.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.LoginChecks.WithLabelValues("access")); got != 1 {
		t.Fatalf("expected 1 access-only event, got %v", got)
	}
}

func TestSinkCountsDetectorEvents(t *testing.T) {
	m := New()
	sink := m.Sink()
	sink.Emit(intrusion.Event{Kind: intrusion.KindBruteForce, Severity: intrusion.SeverityWarning})
	sink.Emit(intrusion.Event{Kind: intrusion.KindBruteForce, Severity: intrusion.SeverityWarning})
	sink.Emit(intrusion.Event{Kind: intrusion.KindFailedLogin, Severity: intrusion.SeverityInfo})

	if got := testutil.ToFloat64(m.DetectorEvents.WithLabelValues("brute_force", "warning")); got != 2 {
		t.Fatalf("expected 2 brute force events, got %v", got)
	}
	if got := testutil.CollectAndCount(m.DetectorEvents); got != 2 {
		t.Fatalf("expected 2 label sets, got %d", got)
	}
}

func TestHandlerExposesTrackedIdentities(t *testing.T) {
	m := New()
	m.TrackIdentities(func() int { return 7 })
	m.EventsConsumed.Add(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	if !strings.Contains(out, "riskwatch_tracked_identities 7") {
		t.Fatalf("expected tracked identities gauge, got:\n%s", out)
	}
	if !strings.Contains(out, "riskwatch_events_consumed_total 3") {
		t.Fatalf("expected consumed counter, got:\n%s", out)
	}
}
