package attack

import (
	"fmt"
	"io"
	"time"
)

// Report is one audit record as written to the JSONL report.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Members     int         `json:"members"`
	NonMembers  int         `json:"non_members"`
	Metrics     Metrics     `json:"metrics"`
	Risk        RiskSummary `json:"risk"`
	Sweep       []Metrics   `json:"sweep,omitempty"`

	Classification *Classification `json:"classification,omitempty"`
}

// FormatResults writes a human-readable block for m.
func FormatResults(w io.Writer, m Metrics) error {
	_, err := fmt.Fprintf(w,
		"Attack Results (threshold %.2f):\n"+
			"  True Positives:  %d\n"+
			"  False Positives: %d\n"+
			"  False Negatives: %d\n"+
			"  True Negatives:  %d\n"+
			"  Recall:    %.2f\n"+
			"  Precision: %.2f\n"+
			"  Accuracy:  %.2f\n",
		m.Threshold,
		m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives,
		m.Recall, m.Precision, m.Accuracy,
	)
	return err
}

// FormatSweep writes one line per threshold.
func FormatSweep(w io.Writer, sweep []Metrics) error {
	if _, err := fmt.Fprintf(w, "%-9s %4s %4s %4s %4s %7s %9s %8s\n",
		"threshold", "tp", "fp", "fn", "tn", "recall", "precision", "accuracy"); err != nil {
		return err
	}
	for _, m := range sweep {
		if _, err := fmt.Fprintf(w, "%-9.2f %4d %4d %4d %4d %7.2f %9.2f %8.2f\n",
			m.Threshold, m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives,
			m.Recall, m.Precision, m.Accuracy); err != nil {
			return err
		}
	}
	return nil
}
