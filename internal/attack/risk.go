package attack

// RiskLevel grades the privacy exposure of a trained model.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RiskSummary combines attack accuracy with the differential privacy budget.
type RiskSummary struct {
	Level    RiskLevel `json:"level"`
	Accuracy float64   `json:"accuracy"`
	Epsilon  float64   `json:"epsilon"`
	Summary  string    `json:"summary"`
}

// SummarizeRisk grades m against the DP epsilon the model was trained with.
// A small epsilon does not make an accurate attack harmless; both conditions
// must hold for the higher grades.
func SummarizeRisk(m Metrics, epsilon float64) RiskSummary {
	s := RiskSummary{Accuracy: m.Accuracy, Epsilon: epsilon}
	switch {
	case m.Accuracy > 0.7 && epsilon < 1.0:
		s.Level = RiskHigh
		s.Summary = "High privacy risk: membership inference attack is successful and DP epsilon is low."
	case m.Accuracy > 0.5 && epsilon < 5.0:
		s.Level = RiskModerate
		s.Summary = "Moderate privacy risk: membership inference attack has some success and DP epsilon is moderate."
	default:
		s.Level = RiskLow
		s.Summary = "Low privacy risk: membership inference attack is not very successful or DP epsilon is high."
	}
	return s
}
