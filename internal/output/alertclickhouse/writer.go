package alertclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"riskwatch/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05.000"

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer sends alerts to ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the flattened table layout; ClickHouse DateTime64 columns do not
// accept RFC 3339 by default.
type row struct {
	AlertID     string   `json:"alert_id"`
	Kind        string   `json:"kind"`
	Severity    string   `json:"severity"`
	Identity    string   `json:"identity"`
	Host        string   `json:"host"`
	SourceIP    string   `json:"source_ip"`
	EventID     string   `json:"event_id"`
	Attempts    int      `json:"attempts"`
	WindowStart string   `json:"window_start"`
	WindowEnd   string   `json:"window_end"`
	Message     string   `json:"message"`
	RuleIDs     []string `json:"rule_ids"`
	Techniques  []string `json:"techniques"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "alerts"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	base := strings.TrimRight(cfg.URL, "/")
	endpoint := base + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts sends a batch of alerts.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, alert := range alerts {
		if alert == nil {
			continue
		}
		if err := enc.Encode(toRow(alert)); err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}

func toRow(a *models.Alert) row {
	r := row{
		AlertID:     a.AlertID,
		Kind:        a.Kind,
		Severity:    a.Severity,
		Identity:    a.Identity,
		Host:        a.Hostname,
		SourceIP:    a.SourceIP,
		EventID:     a.EventID,
		Attempts:    a.Attempts,
		WindowStart: a.WindowStart.UTC().Format(timeLayout),
		WindowEnd:   a.WindowEnd.UTC().Format(timeLayout),
		Message:     a.Message,
		RuleIDs:     []string{},
		Techniques:  []string{},
	}
	for _, tag := range a.RuleTags {
		r.RuleIDs = append(r.RuleIDs, tag.ID)
		if tag.Technique != "" {
			r.Techniques = append(r.Techniques, tag.Technique)
		}
	}
	return r
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
