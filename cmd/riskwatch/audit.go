package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"riskwatch/config"
	"riskwatch/internal/attack"
)

type auditOptions struct {
	scores     attack.Scores
	threshold  float64
	epsilon    float64
	thresholds []float64
}

// loadAuditOptions resolves scores and attack settings. Flags override the
// config file, which overrides built-in defaults.
func loadAuditOptions(fs *flag.FlagSet, configArg, scoresPath string, threshold, epsilon float64, thresholds string) (auditOptions, error) {
	opts := auditOptions{
		threshold: attack.DefaultThreshold,
		epsilon:   1.0,
	}

	if configArg != "" {
		cfg, err := config.LoadConfig(configArg)
		if err != nil {
			return opts, err
		}
		opts.threshold = *cfg.Riskwatch.Attack.Threshold
		opts.epsilon = *cfg.Riskwatch.Attack.Epsilon
		opts.thresholds = cfg.Riskwatch.Attack.Sweep
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["threshold"] {
		opts.threshold = threshold
	}
	if set["epsilon"] {
		opts.epsilon = epsilon
	}
	if set["thresholds"] {
		parsed, err := parseThresholds(thresholds)
		if err != nil {
			return opts, err
		}
		opts.thresholds = parsed
	}
	if len(opts.thresholds) == 0 {
		opts.thresholds = []float64{0.5, 0.6, 0.7, 0.8, 0.9}
	}
	if opts.threshold < 0 || opts.threshold > 1 {
		return opts, fmt.Errorf("threshold %v outside [0,1]", opts.threshold)
	}

	if strings.TrimSpace(scoresPath) == "" {
		opts.scores = attack.DemoScores()
		return opts, nil
	}
	scores, err := attack.LoadScores(scoresPath)
	if err != nil {
		return opts, err
	}
	opts.scores = scores
	return opts, nil
}

func parseThresholds(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", v, err)
		}
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("threshold %v outside [0,1]", f)
		}
		out = append(out, f)
	}
	return out, nil
}

func buildReport(opts auditOptions, withSweep bool) (attack.Report, error) {
	s := opts.scores
	m := attack.Evaluate(s.Member, s.NonMember, opts.threshold)
	report := attack.Report{
		GeneratedAt: time.Now().UTC(),
		Members:     len(s.Member),
		NonMembers:  len(s.NonMember),
		Metrics:     m,
		Risk:        attack.SummarizeRisk(m, opts.epsilon),
	}
	if withSweep {
		report.Sweep = attack.Sweep(s.Member, s.NonMember, opts.thresholds)
	}
	if len(s.Labels) > 0 {
		c, err := attack.ClassificationReport(s.Labels, s.Predictions)
		if err != nil {
			return report, err
		}
		report.Classification = &c
	}
	return report, nil
}

func printReport(w io.Writer, report attack.Report) error {
	if c := report.Classification; c != nil {
		if _, err := fmt.Fprintf(w, "Target Model (%d samples, %d classes):\n  Accuracy:  %.2f\n  Precision: %.2f\n  Recall:    %.2f\n\n",
			c.Samples, len(c.Classes), c.Accuracy, c.Precision, c.Recall); err != nil {
			return err
		}
	}
	if err := attack.FormatResults(w, report.Metrics); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPrivacy Risk (epsilon %.2f): %s\n  %s\n", report.Risk.Epsilon, report.Risk.Level, report.Risk.Summary)
	return err
}

func runAudit(args []string) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	configArg := fs.String("config", "", "Optional config file for attack defaults")
	scoresPath := fs.String("scores", "", "YAML/JSON score file (default: bundled shadow-model fixture)")
	threshold := fs.Float64("threshold", attack.DefaultThreshold, "Decision threshold for membership")
	epsilon := fs.Float64("epsilon", 1.0, "Differential privacy epsilon the model was trained with")
	output := fs.String("output", "", "Optional JSONL report output path")
	withSweep := fs.Bool("sweep", false, "Include a threshold sweep in the report")
	thresholds := fs.String("thresholds", "", "Comma-separated sweep thresholds")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts, err := loadAuditOptions(fs, *configArg, *scoresPath, *threshold, *epsilon, *thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare audit: %v\n", err)
		return 1
	}
	report, err := buildReport(opts, *withSweep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to evaluate: %v\n", err)
		return 1
	}

	if err := printReport(os.Stdout, report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print report: %v\n", err)
		return 1
	}
	if strings.TrimSpace(*output) != "" {
		if err := writeJSONLines(*output, []attack.Report{report}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			return 1
		}
		fmt.Printf("\nreport written to %s\n", *output)
	}
	return 0
}

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	configArg := fs.String("config", "", "Optional config file for attack defaults")
	scoresPath := fs.String("scores", "", "YAML/JSON score file (default: bundled shadow-model fixture)")
	thresholds := fs.String("thresholds", "", "Comma-separated thresholds (default 0.5,0.6,0.7,0.8,0.9)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts, err := loadAuditOptions(fs, *configArg, *scoresPath, 0, 0, *thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare sweep: %v\n", err)
		return 1
	}
	sweep := attack.Sweep(opts.scores.Member, opts.scores.NonMember, opts.thresholds)
	if err := attack.FormatSweep(os.Stdout, sweep); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print sweep: %v\n", err)
		return 1
	}
	return 0
}
