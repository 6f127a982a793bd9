// Package attack simulates a confidence-threshold membership inference attack
// and derives confusion-matrix metrics from it.
//
// Every function in this package is pure and safe for concurrent use.
package attack

// DefaultThreshold is the decision boundary used when callers do not sweep
// their own.
const DefaultThreshold = 0.8

// Metrics is the confusion-matrix profile of one attack run.
type Metrics struct {
	Threshold      float64 `json:"threshold" yaml:"threshold"`
	TruePositives  int     `json:"true_positives" yaml:"true_positives"`
	FalsePositives int     `json:"false_positives" yaml:"false_positives"`
	FalseNegatives int     `json:"false_negatives" yaml:"false_negatives"`
	TrueNegatives  int     `json:"true_negatives" yaml:"true_negatives"`
	Recall         float64 `json:"recall" yaml:"recall"`
	Precision      float64 `json:"precision" yaml:"precision"`
	Accuracy       float64 `json:"accuracy" yaml:"accuracy"`
}

// Evaluate classifies every score against threshold. A score strictly above
// the threshold is predicted "member". Ratios with a zero denominator are 0,
// so empty inputs yield zero metrics instead of an error. NaN scores never
// exceed the threshold.
func Evaluate(memberScores, nonMemberScores []float64, threshold float64) Metrics {
	m := Metrics{Threshold: threshold}

	for _, score := range memberScores {
		if score > threshold {
			m.TruePositives++
		} else {
			m.FalseNegatives++
		}
	}
	for _, score := range nonMemberScores {
		if score > threshold {
			m.FalsePositives++
		} else {
			m.TrueNegatives++
		}
	}

	m.Recall = ratio(m.TruePositives, len(memberScores))
	m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Accuracy = ratio(m.TruePositives+m.TrueNegatives, len(memberScores)+len(nonMemberScores))
	return m
}

// EvaluateDefault runs Evaluate with DefaultThreshold.
func EvaluateDefault(memberScores, nonMemberScores []float64) Metrics {
	return Evaluate(memberScores, nonMemberScores, DefaultThreshold)
}

// Sweep evaluates the same scores at each threshold, in the given order.
func Sweep(memberScores, nonMemberScores []float64, thresholds []float64) []Metrics {
	out := make([]Metrics, 0, len(thresholds))
	for _, th := range thresholds {
		out = append(out, Evaluate(memberScores, nonMemberScores, th))
	}
	return out
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
