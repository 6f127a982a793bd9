package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"riskwatch/pkg/models"
)

var techniqueTagRegex = regexp.MustCompile(`^attack\.t\d{4}(?:\.\d{3})?$`)

// authServices are the logsource services an access event can satisfy.
var authServices = map[string]bool{
	"":               true,
	"auth":           true,
	"authentication": true,
	"sshd":           true,
	"login":          true,
	"security":       true,
}

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
	// Reasons maps a skipped complex rule's file to why it was skipped.
	Reasons map[string]string
}

type compiledSigmaRule struct {
	eval *sigmaevaluator.RuleEvaluator
	tag  models.RuleTag
}

// SigmaEngine evaluates single-event Sigma rules against access events.
type SigmaEngine struct {
	rules []compiledSigmaRule
}

// NewSigmaEngine loads Sigma rules from a file or directory. Rules for other
// log sources or rules needing correlation across events are skipped and
// counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	stats := SigmaLoadStats{Reasons: make(map[string]string)}

	files, err := collectRuleFiles(path)
	if err != nil {
		return nil, stats, err
	}
	stats.TotalFiles = len(files)

	engine := &SigmaEngine{rules: make([]compiledSigmaRule, 0, len(files))}
	for _, file := range files {
		rule, err := parseSigmaRuleFile(file)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isAuthRule(rule) {
			stats.SkippedDatasource++
			continue
		}
		if reason := unsupportedReason(rule); reason != "" {
			stats.SkippedComplex++
			stats.Reasons[file] = reason
			continue
		}
		engine.rules = append(engine.rules, compiledSigmaRule{
			eval: sigmaevaluator.ForRule(rule),
			tag:  tagFromRule(rule),
		})
		stats.Loaded++
	}
	return engine, stats, nil
}

// Len returns the number of compiled rules.
func (e *SigmaEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Apply evaluates all loaded Sigma rules and returns tags for matched rules.
func (e *SigmaEngine) Apply(event *models.AccessEvent) []models.RuleTag {
	if e.Len() == 0 || event == nil {
		return nil
	}

	fields := sigmaEventFrom(event)
	var out []models.RuleTag
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(context.Background(), fields)
		if err != nil || !res.Match {
			continue
		}
		out = append(out, rule.tag)
	}
	return out
}

func collectRuleFiles(path string) ([]string, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat rule path: %w", err)
	}
	if !info.IsDir() {
		if !isYAMLFile(resolved) {
			return nil, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		return []string{resolved}, nil
	}

	var files []string
	err = filepath.WalkDir(resolved, func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() && isYAMLFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rule directory: %w", err)
	}
	return files, nil
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// isAuthRule accepts rules written for authentication logs, or rules with no
// logsource constraint at all.
func isAuthRule(rule sigma.Rule) bool {
	category := strings.ToLower(strings.TrimSpace(rule.Logsource.Category))
	if category != "" && category != "authentication" {
		return false
	}
	return authServices[strings.ToLower(strings.TrimSpace(rule.Logsource.Service))]
}

// unsupportedReason returns why a rule cannot be evaluated on one event, or
// "" when it can.
func unsupportedReason(rule sigma.Rule) string {
	if rule.Detection.Timeframe > 0 {
		return "timeframe"
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return "aggregation"
		}
		if !plainExpression(cond.Search) {
			return "complex condition"
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return "keyword search"
		}
		if len(search.EventMatchers) == 0 {
			return "empty search"
		}
	}
	return ""
}

// plainExpression reports whether expr only combines named searches with
// and, or and not.
func plainExpression(expr sigma.SearchExpr) bool {
	var children []sigma.SearchExpr
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.Not:
		return plainExpression(e.Expr)
	case sigma.And:
		children = e
	case sigma.Or:
		children = e
	default:
		return false
	}
	for _, child := range children {
		if !plainExpression(child) {
			return false
		}
	}
	return true
}

// sigmaEventFrom exposes an event under the field names common in
// authentication Sigma rules.
func sigmaEventFrom(event *models.AccessEvent) map[string]interface{} {
	buf := make(map[string]interface{}, len(event.Fields)+12)
	for k, v := range event.Fields {
		buf[k] = v
	}
	set := func(value string, keys ...string) {
		if value == "" {
			return
		}
		for _, k := range keys {
			buf[k] = value
		}
	}
	set(event.Identity, "User", "TargetUserName", "identity")
	set(event.SourceIP, "IpAddress", "source_ip")
	set(event.UserAgent, "UserAgent")
	set(event.Hostname, "Computer", "Hostname")
	set(event.Action, "Action")
	set(event.Outcome(), "Outcome")
	set(event.EventID, "EventID")
	return buf
}

func tagFromRule(rule sigma.Rule) models.RuleTag {
	name := strings.TrimSpace(rule.Title)
	id := strings.TrimSpace(rule.ID)
	if id == "" {
		id = name
	}
	severity := strings.ToLower(strings.TrimSpace(rule.Level))
	if severity == "" {
		severity = "medium"
	}

	tag := models.RuleTag{ID: id, Name: name, Severity: severity}
	for _, raw := range rule.Tags {
		label := strings.ToLower(strings.TrimSpace(raw))
		suffix, ok := strings.CutPrefix(label, "attack.")
		if !ok {
			continue
		}
		switch {
		case techniqueTagRegex.MatchString(label):
			if tag.Technique == "" {
				tag.Technique = strings.ToUpper(strings.ReplaceAll(suffix, ".", "/"))
			}
		case !strings.HasPrefix(suffix, "t") && tag.Tactic == "":
			tag.Tactic = strings.ReplaceAll(suffix, "_", "-")
		}
	}
	return tag
}
