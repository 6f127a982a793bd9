package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"riskwatch/internal/analyzer"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	input := fs.String("input", "output/alerts.jsonl", "Alert JSONL input path")
	output := fs.String("output", "output/findings.jsonl", "Findings JSONL output path")
	rulesFile := fs.String("rules-file", "", "YAML file that defines alert sequence rules (default: built-in takeover rule)")
	maxFindings := fs.Int("max-findings", 10000, "Maximum number of findings to emit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	alerts, err := analyzer.LoadAlertsJSONL(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load alerts: %v\n", err)
		return 1
	}

	rs := analyzer.DefaultRuleSet()
	if strings.TrimSpace(*rulesFile) != "" {
		rs, err = analyzer.LoadRuleSet(*rulesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load rules file: %v\n", err)
			return 1
		}
	}

	findings := analyzer.AnalyzeRuleSet(alerts, rs, analyzer.Config{MaxFindings: *maxFindings})
	if err := writeJSONLines(*output, findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write findings: %v\n", err)
		return 1
	}

	fmt.Printf("analyzed alerts=%d findings=%d output=%s\n", len(alerts), len(findings), *output)
	return 0
}
