package alerthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"riskwatch/pkg/models"
)

func TestWriterPostsEnvelope(t *testing.T) {
	var got envelope
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t0k"}})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	alerts := []*models.Alert{{AlertID: "a1", Identity: "alice"}, {AlertID: "a2", Identity: "bob"}}
	if err := w.WriteAlerts(alerts); err != nil {
		t.Fatalf("write: %v", err)
	}
	if token != "Bearer t0k" {
		t.Fatalf("expected custom header, got %q", token)
	}
	if got.Source != "riskwatch" || got.Count != 2 || len(got.Alerts) != 2 || got.Alerts[1].Identity != "bob" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestWriterReportsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w, _ := NewWriter(Config{URL: srv.URL})
	err := w.WriteAlerts([]*models.Alert{{AlertID: "a1"}})
	if err == nil || !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("expected error with body, got %v", err)
	}
}

func TestWriterSkipsEmptyBatch(t *testing.T) {
	if _, err := NewWriter(Config{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	w, _ := NewWriter(Config{URL: "http://127.0.0.1:1"})
	if err := w.WriteAlerts(nil); err != nil {
		t.Fatalf("expected no request for empty batch, got %v", err)
	}
}
