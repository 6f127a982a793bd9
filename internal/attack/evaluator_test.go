package attack

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateShadowModelFixture(t *testing.T) {
	s := DemoScores()
	m := Evaluate(s.Member, s.NonMember, 0.8)

	assert.Equal(t, 4, m.TruePositives)
	assert.Equal(t, 0, m.FalsePositives)
	assert.Equal(t, 0, m.FalseNegatives)
	assert.Equal(t, 4, m.TrueNegatives)
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.Precision)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 0.8, m.Threshold)
}

func TestEvaluateDefaultUsesDefaultThreshold(t *testing.T) {
	m := EvaluateDefault([]float64{0.8, 0.81}, []float64{0.79, 0.85})
	assert.Equal(t, DefaultThreshold, m.Threshold)
	assert.Equal(t, 1, m.TruePositives, "score equal to the threshold is not a member")
	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.TrueNegatives)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)
}

func TestEvaluateEmptyInputsYieldZeroMetrics(t *testing.T) {
	m := Evaluate(nil, nil, 0.8)
	assert.Equal(t, Metrics{Threshold: 0.8}, m)
}

func TestEvaluateZeroDenominators(t *testing.T) {
	// No members and nothing above the bar: recall and precision have no denominator.
	m := Evaluate(nil, []float64{0.1, 0.2}, 0.8)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.Precision)
	assert.Equal(t, 1.0, m.Accuracy)

	// Members only, all missed.
	m = Evaluate([]float64{0.1, 0.3}, nil, 0.8)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Accuracy)
	assert.Equal(t, 2, m.FalseNegatives)
}

func TestEvaluateNaNIsNeverAboveThreshold(t *testing.T) {
	m := Evaluate([]float64{math.NaN()}, []float64{math.NaN()}, 0.5)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 1, m.TrueNegatives)
}

func TestEvaluateInvariantsOnRandomScores(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		member := randomScores(rng, rng.Intn(20))
		nonMember := randomScores(rng, rng.Intn(20))
		th := rng.Float64()

		m := Evaluate(member, nonMember, th)
		require.Equal(t, len(member), m.TruePositives+m.FalseNegatives)
		require.Equal(t, len(nonMember), m.FalsePositives+m.TrueNegatives)
		for _, v := range []float64{m.Recall, m.Precision, m.Accuracy} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestRaisingThresholdNeverAddsPositives(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	member := randomScores(rng, 50)
	nonMember := randomScores(rng, 50)

	thresholds := []float64{0, 0.1, 0.25, 0.5, 0.5, 0.75, 0.9, 1}
	sweep := Sweep(member, nonMember, thresholds)
	require.Len(t, sweep, len(thresholds))
	for i := 1; i < len(sweep); i++ {
		assert.LessOrEqual(t, sweep[i].TruePositives, sweep[i-1].TruePositives)
		assert.LessOrEqual(t, sweep[i].FalsePositives, sweep[i-1].FalsePositives)
		assert.Equal(t, thresholds[i], sweep[i].Threshold)
	}
	assert.Zero(t, sweep[len(sweep)-1].TruePositives+sweep[len(sweep)-1].FalsePositives)
}

func TestSweepWithoutThresholds(t *testing.T) {
	assert.Empty(t, Sweep([]float64{0.9}, nil, nil))
}

func randomScores(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()
	}
	return out
}
