// Package align solves for self-consistent per-record time shifts and
// amplitude scales from pairwise correlation measurements, cluster by
// cluster. Each cluster yields one overdetermined linear system: one
// equation per correlated pair, one unknown per record, gauge-fixed to
// a zero-mean solution.
package align

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnderdetermined marks a cluster too small to solve. It is reported
// per cluster, never fatal to the run.
var ErrUnderdetermined = errors.New("align: cluster has fewer than two records")

// errSingular indicates a disconnected or degenerate pair graph.
var errSingular = errors.New("align: singular system, pair graph disconnected")

// Observation is one pairwise measurement between records I and J
// (global indices). Lag is the time by which J arrives later than I;
// Weight is the correlation coefficient; AmpRatio is rms(J)/rms(I);
// Polarity is +1 or -1 for a flipped pair.
type Observation struct {
	I, J     int
	Lag      float64
	Weight   float64
	Polarity int
	AmpRatio float64
}

// Solution holds the per-record corrections for one cluster, indexed
// parallel to the member list the solver was given.
type Solution struct {
	Members  []int // global record indices
	Shift    []float64
	Amp      []float64
	Polarity []int
	// Residual is the weighted RMS misfit over all pair equations.
	Residual float64
	// RecordMisfit is the mean absolute pair residual per member, used
	// by the preen pass to find outliers.
	RecordMisfit []float64
}

// SolveCluster solves the weighted least-squares system for one cluster.
// members lists the global record indices in the cluster; obs must only
// contain pairs whose both ends are members. Observations with zero
// weight are ignored.
func SolveCluster(members []int, obs []Observation) (*Solution, error) {
	k := len(members)
	if k < 2 {
		return nil, fmt.Errorf("%w: %d records", ErrUnderdetermined, k)
	}

	local := make(map[int]int, k)
	for i, m := range members {
		local[m] = i
	}

	used := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.Weight <= 0 {
			continue
		}
		if _, ok := local[o.I]; !ok {
			continue
		}
		if _, ok := local[o.J]; !ok {
			continue
		}
		used = append(used, o)
	}
	if len(used) == 0 {
		return nil, fmt.Errorf("%w: no usable pair observations", ErrUnderdetermined)
	}

	shift, err := solveGauge(k, used, local, func(o Observation) float64 { return o.Lag })
	if err != nil {
		return nil, err
	}
	logAmp, err := solveGauge(k, used, local, func(o Observation) float64 {
		return math.Log(math.Max(o.AmpRatio, 1e-12))
	})
	if err != nil {
		return nil, err
	}

	sol := &Solution{
		Members:      members,
		Shift:        shift,
		Amp:          make([]float64, k),
		Polarity:     propagatePolarity(k, used, local),
		RecordMisfit: make([]float64, k),
	}
	for i := range logAmp {
		sol.Amp[i] = math.Exp(logAmp[i])
	}

	// Weighted RMS residual of the time system, plus per-record misfits.
	var wsum, rsum float64
	counts := make([]int, k)
	for _, o := range used {
		li, lj := local[o.I], local[o.J]
		r := shift[lj] - shift[li] - o.Lag
		rsum += o.Weight * r * r
		wsum += o.Weight
		sol.RecordMisfit[li] += math.Abs(r)
		sol.RecordMisfit[lj] += math.Abs(r)
		counts[li]++
		counts[lj]++
	}
	sol.Residual = math.Sqrt(rsum / wsum)
	for i := range sol.RecordMisfit {
		if counts[i] > 0 {
			sol.RecordMisfit[i] /= float64(counts[i])
		}
	}
	return sol, nil
}

// solveGauge solves min sum w*(x_j - x_i - rhs)^2 subject to the
// zero-mean gauge. The normal matrix is the weighted graph Laplacian;
// adding the rank-one term ones*ones^T removes its null space without
// disturbing the zero-mean solution.
func solveGauge(k int, obs []Observation, local map[int]int, rhs func(Observation) float64) ([]float64, error) {
	a := make([][]float64, k)
	for i := range a {
		a[i] = make([]float64, k)
		for j := range a[i] {
			a[i][j] = 1
		}
	}
	b := make([]float64, k)

	for _, o := range obs {
		li, lj := local[o.I], local[o.J]
		w := o.Weight
		r := rhs(o)
		a[li][li] += w
		a[lj][lj] += w
		a[li][lj] -= w
		a[lj][li] -= w
		b[li] -= w * r
		b[lj] += w * r
	}

	return gaussSolve(a, b)
}

// gaussSolve solves a*x = b in place by Gaussian elimination with
// partial pivoting. Cluster sizes are small; dense O(k^3) is fine.
func gaussSolve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			f := a[row][col] / a[col][col]
			for c := col; c < n; c++ {
				a[row][c] -= f * a[col][c]
			}
			b[row] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for c := row + 1; c < n; c++ {
			sum -= a[row][c] * x[c]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// propagatePolarity assigns each member an orientation by walking the
// pair graph from the first member, multiplying pair polarities along
// the way. Observations are visited in order, strongest evidence first
// would be nicer but order-of-input keeps the result deterministic.
func propagatePolarity(k int, obs []Observation, local map[int]int) []int {
	pol := make([]int, k)
	pol[0] = 1
	for changed := true; changed; {
		changed = false
		for _, o := range obs {
			li, lj := local[o.I], local[o.J]
			p := o.Polarity
			if p == 0 {
				p = 1
			}
			switch {
			case pol[li] != 0 && pol[lj] == 0:
				pol[lj] = pol[li] * p
				changed = true
			case pol[lj] != 0 && pol[li] == 0:
				pol[li] = pol[lj] * p
				changed = true
			}
		}
	}
	// Disconnected members default to normal orientation.
	for i := range pol {
		if pol[i] == 0 {
			pol[i] = 1
		}
	}
	return pol
}
