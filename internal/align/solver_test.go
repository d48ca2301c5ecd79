package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// obsFromShifts builds a fully connected, noise-free observation set
// whose pairwise lags are implied by the given true shifts and whose
// amplitude ratios are implied by the given true amplitudes.
func obsFromShifts(shifts, amps []float64) []Observation {
	var obs []Observation
	for i := 0; i < len(shifts); i++ {
		for j := i + 1; j < len(shifts); j++ {
			obs = append(obs, Observation{
				I: i, J: j,
				Lag:      shifts[j] - shifts[i],
				Weight:   1,
				Polarity: 1,
				AmpRatio: amps[j] / amps[i],
			})
		}
	}
	return obs
}

func members(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// relative returns x with x[0] subtracted, removing the arbitrary
// reference offset of a gauge-fixed solution.
func relative(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - x[0]
	}
	return out
}

func TestSolveThreeRecordScenario(t *testing.T) {
	// Observed lags 1-2: +0.5, 2-3: +0.3, 1-3: +0.8 solve to relative
	// shifts (0, 0.5, 0.8) up to a constant reference offset.
	obs := []Observation{
		{I: 0, J: 1, Lag: 0.5, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 1, J: 2, Lag: 0.3, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 0, J: 2, Lag: 0.8, Weight: 1, Polarity: 1, AmpRatio: 1},
	}
	sol, err := SolveCluster(members(3), obs)
	require.NoError(t, err)

	rel := relative(sol.Shift)
	assert.InDelta(t, 0.0, rel[0], 1e-9)
	assert.InDelta(t, 0.5, rel[1], 1e-9)
	assert.InDelta(t, 0.8, rel[2], 1e-9)
	assert.InDelta(t, 0.0, sol.Residual, 1e-9)
}

func TestSolveRoundTrip(t *testing.T) {
	// Synthetic records shifted by known offsets with no noise: the
	// solver recovers every offset and every amplitude.
	shifts := []float64{0, 0.42, -0.17, 1.05, 0.63}
	amps := []float64{1, 2, 0.5, 1.5, 0.8}

	sol, err := SolveCluster(members(5), obsFromShifts(shifts, amps))
	require.NoError(t, err)

	rel := relative(sol.Shift)
	for i, want := range shifts {
		assert.InDelta(t, want, rel[i], 1e-9, "shift %d", i)
	}
	for i, want := range amps {
		ratio := sol.Amp[i] / sol.Amp[0]
		assert.InDelta(t, want/amps[0], ratio, 1e-9, "amplitude %d", i)
	}
	assert.InDelta(t, 0.0, sol.Residual, 1e-9)
}

func TestSolveZeroMeanGauge(t *testing.T) {
	sol, err := SolveCluster(members(4), obsFromShifts(
		[]float64{0, 1, 2, 3}, []float64{1, 1, 1, 1}))
	require.NoError(t, err)

	var sum float64
	for _, s := range sol.Shift {
		sum += s
	}
	assert.InDelta(t, 0.0, sum, 1e-9)
}

func TestSolveInconsistentLagsResidual(t *testing.T) {
	// A lag triangle that cannot close must leave a nonzero residual.
	obs := []Observation{
		{I: 0, J: 1, Lag: 1.0, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 1, J: 2, Lag: 1.0, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 0, J: 2, Lag: 0.0, Weight: 1, Polarity: 1, AmpRatio: 1},
	}
	sol, err := SolveCluster(members(3), obs)
	require.NoError(t, err)
	assert.Greater(t, sol.Residual, 0.1)
}

func TestSolveUnderdetermined(t *testing.T) {
	_, err := SolveCluster([]int{7}, nil)
	assert.ErrorIs(t, err, ErrUnderdetermined)

	_, err = SolveCluster(nil, nil)
	assert.ErrorIs(t, err, ErrUnderdetermined)

	// Two members but no usable observation is equally unsolvable.
	_, err = SolveCluster([]int{0, 1}, []Observation{{I: 0, J: 1, Weight: 0}})
	assert.ErrorIs(t, err, ErrUnderdetermined)
}

func TestSolvePolarityPropagation(t *testing.T) {
	obs := []Observation{
		{I: 0, J: 1, Lag: 0.1, Weight: 1, Polarity: -1, AmpRatio: 1},
		{I: 1, J: 2, Lag: 0.1, Weight: 1, Polarity: -1, AmpRatio: 1},
		{I: 0, J: 2, Lag: 0.2, Weight: 1, Polarity: 1, AmpRatio: 1},
	}
	sol, err := SolveCluster(members(3), obs)
	require.NoError(t, err)

	assert.Equal(t, []int{1, -1, 1}, sol.Polarity)
}

func TestPreenRemovesOutlier(t *testing.T) {
	shifts := []float64{0, 1, 2, 3}
	amps := []float64{1, 1, 1, 1}
	obs := obsFromShifts(shifts, amps)

	// Corrupt record 3's lags so they disagree among themselves.
	for i := range obs {
		if obs[i].J == 3 {
			switch obs[i].I {
			case 0:
				obs[i].Lag += 0.6
			case 1:
				obs[i].Lag -= 0.6
			}
		}
	}

	sol, removed, err := Preen(members(4), obs, 0.05, 3)
	require.NoError(t, err)
	require.Equal(t, []int{3}, removed)
	assert.Len(t, sol.Members, 3)
	assert.InDelta(t, 0.0, sol.Residual, 1e-9)

	rel := relative(sol.Shift)
	assert.InDelta(t, 1.0, rel[1], 1e-9)
	assert.InDelta(t, 2.0, rel[2], 1e-9)
}

func TestPreenRespectsMinRecords(t *testing.T) {
	// Inconsistent triangle, but the cluster may not shrink below 3.
	obs := []Observation{
		{I: 0, J: 1, Lag: 1.0, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 1, J: 2, Lag: 1.0, Weight: 1, Polarity: 1, AmpRatio: 1},
		{I: 0, J: 2, Lag: 0.0, Weight: 1, Polarity: 1, AmpRatio: 1},
	}
	sol, removed, err := Preen(members(3), obs, 0.05, 3)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, sol.Members, 3)
	assert.Greater(t, sol.Residual, 0.0)
}

func TestPreenCleanClusterUntouched(t *testing.T) {
	sol, removed, err := Preen(members(4), obsFromShifts(
		[]float64{0, 0.5, 1.0, 1.5}, []float64{1, 1, 1, 1}), 0.05, 2)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, sol.Members, 4)
}

func TestGaussSolve(t *testing.T) {
	a := [][]float64{
		{2, 1, 0},
		{1, 3, 1},
		{0, 1, 2},
	}
	b := []float64{3, 8, 5}
	x, err := gaussSolve(a, b)
	require.NoError(t, err)

	// Verify against the known solution of this SPD system.
	want := []float64{0.5, 2, 1.5}
	for i := range want {
		assert.InDelta(t, want[i], x[i], 1e-9)
	}
}
