// Package cluster groups records into coherent clusters by hierarchical
// agglomerative linkage over pairwise waveform dissimilarities.
package cluster

import (
	"errors"
	"fmt"
	"math"

	"github.com/seistools/phasealign/internal/model"
)

// Method is the linkage update rule.
type Method int

const (
	Single Method = iota
	Average
	Complete
)

var ErrBadMethod = errors.New("cluster: unknown linkage method")

// ParseMethod maps a configuration string onto a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "single":
		return Single, nil
	case "average":
		return Average, nil
	case "complete":
		return Complete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadMethod, s)
	}
}

// Merge records one agglomeration step. A and B are cluster ids: ids
// 0..n-1 are the original records, id n+k is the cluster formed by step
// k. Size is the member count of the merged cluster.
type Merge struct {
	A, B     int
	Distance float64
	Size     int
}

// Dissimilarity builds the n x n dissimilarity matrix 1 - coeff from
// the first-peak coefficient column of a correlation set. Pairs with no
// usable peak get the maximum dissimilarity 1.
func Dissimilarity(set *model.CorrSet, n int) [][]float64 {
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for p, pair := range set.Pairs {
		v := 1.0
		if len(set.Coeff[p]) > 0 && set.Polarity[p][0] != 0 {
			v = 1 - set.Coeff[p][0]
		}
		d[pair[0]][pair[1]] = v
		d[pair[1]][pair[0]] = v
	}
	return d
}

// Linkage builds the agglomeration sequence over n records from their
// dissimilarity matrix. The merge order is deterministic: among equal
// minimum distances the pair with the smallest ids wins.
func Linkage(dissim [][]float64, method Method) ([]Merge, error) {
	switch method {
	case Single, Average, Complete:
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadMethod, method)
	}
	n := len(dissim)
	if n < 2 {
		return nil, nil
	}

	// Active clusters keyed by id; distances in a mutable copy.
	type clust struct {
		id   int
		size int
	}
	active := make([]clust, n)
	for i := range active {
		active[i] = clust{id: i, size: 1}
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		copy(dist[i], dissim[i])
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; len(active) > 1; step++ {
		// Find the closest active pair (positional indices bi < bj).
		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}

		a, b := active[bi], active[bj]
		lo, hi := a.id, b.id
		if lo > hi {
			lo, hi = hi, lo
		}
		merged := clust{id: n + step, size: a.size + b.size}
		merges = append(merges, Merge{A: lo, B: hi, Distance: best, Size: merged.size})

		// Update distances from every other cluster to the merged one,
		// writing into slot bi and dropping slot bj.
		for k := 0; k < len(active); k++ {
			if k == bi || k == bj {
				continue
			}
			var d float64
			switch method {
			case Single:
				d = math.Min(dist[k][bi], dist[k][bj])
			case Complete:
				d = math.Max(dist[k][bi], dist[k][bj])
			case Average:
				d = (float64(a.size)*dist[k][bi] + float64(b.size)*dist[k][bj]) /
					float64(a.size+b.size)
			}
			dist[k][bi] = d
			dist[bi][k] = d
		}
		active[bi] = merged

		last := len(active) - 1
		active[bj] = active[last]
		active = active[:last]
		for k := 0; k < len(active); k++ {
			dist[k][bj] = dist[k][last]
			dist[bj][k] = dist[last][k]
		}
	}
	return merges, nil
}

// Cut flattens the tree at the given distance: every merge with
// Distance <= cutoff joins its members. Cluster ids are contiguous
// integers starting at 1, numbered by each cluster's first record in
// input order; every record gets exactly one id and singletons are
// valid.
func Cut(merges []Merge, n int, cutoff float64) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for k, m := range merges {
		if m.Distance > cutoff {
			// Later merges only sit higher in the tree, but keep the
			// synthetic node linked to itself so find stays valid.
			continue
		}
		ra, rb := find(m.A), find(m.B)
		parent[ra] = n + k
		parent[rb] = n + k
	}

	ids := make([]int, n)
	next := 1
	roots := make(map[int]int, n)
	for i := 0; i < n; i++ {
		r := find(i)
		id, ok := roots[r]
		if !ok {
			id = next
			next++
			roots[r] = id
		}
		ids[i] = id
	}
	return ids
}
