// Package assign solves minimum-cost bipartite assignment on dense,
// possibly rectangular cost matrices. The solver is the shortest augmenting
// path formulation of the Hungarian method with dual potentials, O(n^2 m)
// for an n x m matrix, which is plenty for the small matrices this pipeline
// produces (at most a few dozen rows).
package assign

import (
	"fmt"
	"math"
)

// Solve returns an optimal assignment for the given cost matrix. The result
// maps each row to its assigned column, or -1 for rows left unmatched when
// there are more rows than columns; exactly min(rows, cols) pairs are matched.
// An empty matrix yields an empty result. Non-finite costs are rejected with
// an error so callers can skip the offending sample.
func Solve(cost [][]float64) ([]int, error) {
	n := len(cost)
	if n == 0 {
		return []int{}, nil
	}
	m := len(cost[0])
	for i, row := range cost {
		if len(row) != m {
			return nil, fmt.Errorf("ragged cost matrix: row %d has %d columns, want %d", i, len(row), m)
		}
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("non-finite cost at (%d, %d): %v", i, j, c)
			}
		}
	}
	if m == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = -1
		}
		return out, nil
	}

	if n <= m {
		return solveWide(cost, n, m), nil
	}

	// More rows than columns: solve the transpose and invert the mapping.
	t := make([][]float64, m)
	for j := 0; j < m; j++ {
		t[j] = make([]float64, n)
		for i := 0; i < n; i++ {
			t[j][i] = cost[i][j]
		}
	}
	colToRow := solveWide(t, m, n)
	rowToCol := make([]int, n)
	for i := range rowToCol {
		rowToCol[i] = -1
	}
	for j, i := range colToRow {
		rowToCol[i] = j
	}
	return rowToCol, nil
}

// solveWide runs the augmenting-path Hungarian method for n <= m, matching
// every row. Internally 1-indexed; index 0 is the algorithm's virtual slot.
func solveWide(cost [][]float64, n, m int) []int {
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)   // p[j] = row currently assigned to column j (0 = none)
	way := make([]int, m+1) // way[j] = previous column on the alternating path

	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		// Unwind the alternating path, flipping assignments along it.
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowToCol := make([]int, n)
	for j := 1; j <= m; j++ {
		if p[j] > 0 {
			rowToCol[p[j]-1] = j - 1
		}
	}
	return rowToCol
}

// TotalCost sums the matched-pair costs of an assignment produced by Solve.
func TotalCost(cost [][]float64, rowToCol []int) float64 {
	total := 0.0
	for i, j := range rowToCol {
		if j >= 0 {
			total += cost[i][j]
		}
	}
	return total
}
