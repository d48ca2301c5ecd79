package align

// Preen iteratively removes the worst-fitting record from a cluster and
// re-solves until the RMS residual stops improving by at least tol
// (relative) or the cluster would shrink below minRecords. It returns
// the final solution and the global indices of the removed records.
func Preen(members []int, obs []Observation, tol float64, minRecords int) (*Solution, []int, error) {
	if minRecords < 2 {
		minRecords = 2
	}

	current := make([]int, len(members))
	copy(current, members)
	var removed []int

	sol, err := SolveCluster(current, obs)
	if err != nil {
		return nil, nil, err
	}

	// Residuals at or below lag-quantization noise are already converged.
	const converged = 1e-6

	for len(current) > minRecords && sol.Residual > converged {
		worst := 0
		for i, m := range sol.RecordMisfit {
			if m > sol.RecordMisfit[worst] {
				worst = i
			}
		}

		trimmed := make([]int, 0, len(current)-1)
		for i, m := range current {
			if i != worst {
				trimmed = append(trimmed, m)
			}
		}

		next, err := SolveCluster(trimmed, obs)
		if err != nil {
			// Removing the record disconnected the pair graph; keep the
			// current solution.
			break
		}
		if (sol.Residual-next.Residual)/sol.Residual < tol {
			break
		}
		removed = append(removed, current[worst])
		current = trimmed
		sol = next
	}

	return sol, removed, nil
}
