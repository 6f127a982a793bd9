package rules

import "riskwatch/pkg/models"

// Engine tags access events with matching rules.
type Engine interface {
	Apply(event *models.AccessEvent) []models.RuleTag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns no tags.
func (NoopEngine) Apply(event *models.AccessEvent) []models.RuleTag {
	return nil
}
