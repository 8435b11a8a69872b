package eval

import (
	"math"

	"github.com/vddddds/decent-clustering/datasets"
)

// This file implements the clustering-quality metrics computed over the raw
// agents after they are relabeled by nearest predicted center: silhouette,
// normalized mutual information, adjusted Rand index, Davies-Bouldin and
// Calinski-Harabasz. Each returns NaN when the metric is undefined for the
// given label configuration.

// groupByLabel returns point indices grouped per distinct label value.
func groupByLabel(labels []int) map[int][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

func pointDist(a, b datasets.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// silhouette is the mean silhouette coefficient over all points. Undefined
// unless the label count k satisfies 2 <= k <= n-1. Points in singleton
// clusters score 0.
func silhouette(points []datasets.Point, labels []int) float64 {
	n := len(points)
	groups := groupByLabel(labels)
	k := len(groups)
	if k < 2 || k > n-1 {
		return math.NaN()
	}

	total := 0.0
	for i := 0; i < n; i++ {
		own := groups[labels[i]]
		if len(own) == 1 {
			continue // s = 0 for singleton clusters
		}

		// a: mean distance to the other members of i's cluster.
		a := 0.0
		for _, j := range own {
			if j != i {
				a += pointDist(points[i], points[j])
			}
		}
		a /= float64(len(own) - 1)

		// b: smallest mean distance to any other cluster.
		b := math.Inf(1)
		for l, members := range groups {
			if l == labels[i] {
				continue
			}
			d := 0.0
			for _, j := range members {
				d += pointDist(points[i], points[j])
			}
			d /= float64(len(members))
			if d < b {
				b = d
			}
		}

		denom := math.Max(a, b)
		if denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}

// contingency builds the joint count table of two labelings along with the
// per-side marginals.
func contingency(a, b []int) (joint map[[2]int]float64, rowSum, colSum map[int]float64) {
	joint = make(map[[2]int]float64)
	rowSum = make(map[int]float64)
	colSum = make(map[int]float64)
	for i := range a {
		joint[[2]int{a[i], b[i]}]++
		rowSum[a[i]]++
		colSum[b[i]]++
	}
	return joint, rowSum, colSum
}

func entropy(counts map[int]float64, n float64) float64 {
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / n
			h -= p * math.Log(p)
		}
	}
	return h
}

// normalizedMutualInfo is MI(a, b) normalized by the arithmetic mean of the
// two label entropies. Undefined when both labelings are constant.
func normalizedMutualInfo(a, b []int) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	n := float64(len(a))
	joint, rowSum, colSum := contingency(a, b)

	mi := 0.0
	for cell, c := range joint {
		pij := c / n
		pi := rowSum[cell[0]] / n
		pj := colSum[cell[1]] / n
		if pij > 0 {
			mi += pij * math.Log(pij/(pi*pj))
		}
	}

	denom := (entropy(rowSum, n) + entropy(colSum, n)) / 2
	if denom == 0 {
		return math.NaN()
	}
	// Clamp tiny negative values caused by floating-point log accumulation.
	if mi < 0 {
		mi = 0
	}
	return mi / denom
}

func comb2(x float64) float64 {
	return x * (x - 1) / 2
}

// adjustedRandIndex is the chance-corrected Rand index between two labelings.
// Undefined for degenerate configurations where the correction term equals
// the maximum.
func adjustedRandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	joint, rowSum, colSum := contingency(a, b)

	sumCells := 0.0
	for _, c := range joint {
		sumCells += comb2(c)
	}
	sumRows := 0.0
	for _, c := range rowSum {
		sumRows += comb2(c)
	}
	sumCols := 0.0
	for _, c := range colSum {
		sumCols += comb2(c)
	}

	total := comb2(float64(len(a)))
	expected := sumRows * sumCols / total
	maxIndex := (sumRows + sumCols) / 2
	if maxIndex == expected {
		return math.NaN()
	}
	return (sumCells - expected) / (maxIndex - expected)
}

// centroid of the given member indices.
func centroid(points []datasets.Point, members []int) datasets.Point {
	var sx, sy float64
	for _, i := range members {
		sx += float64(points[i].X)
		sy += float64(points[i].Y)
	}
	n := float64(len(members))
	return datasets.Point{X: float32(sx / n), Y: float32(sy / n)}
}

// daviesBouldin is the mean over clusters of the worst ratio of within-cluster
// scatter sums to centroid separation. Lower is better. Undefined with fewer
// than two non-empty clusters or coincident centroids.
func daviesBouldin(points []datasets.Point, labels []int) float64 {
	groups := groupByLabel(labels)
	if len(groups) < 2 {
		return math.NaN()
	}

	ids := make([]int, 0, len(groups))
	for l := range groups {
		ids = append(ids, l)
	}
	centroids := make([]datasets.Point, len(ids))
	scatter := make([]float64, len(ids))
	for c, l := range ids {
		members := groups[l]
		centroids[c] = centroid(points, members)
		s := 0.0
		for _, i := range members {
			s += pointDist(points[i], centroids[c])
		}
		scatter[c] = s / float64(len(members))
	}

	total := 0.0
	for i := range ids {
		worst := 0.0
		for j := range ids {
			if i == j {
				continue
			}
			d := pointDist(centroids[i], centroids[j])
			if d == 0 {
				return math.NaN()
			}
			r := (scatter[i] + scatter[j]) / d
			if r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(len(ids))
}

// calinskiHarabasz is the between/within dispersion ratio. Higher is better.
// Undefined when the within-cluster dispersion is zero or the cluster count
// does not satisfy 2 <= k < n.
func calinskiHarabasz(points []datasets.Point, labels []int) float64 {
	n := len(points)
	groups := groupByLabel(labels)
	k := len(groups)
	if k < 2 || n <= k {
		return math.NaN()
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	grand := centroid(points, all)

	between := 0.0
	within := 0.0
	for _, members := range groups {
		c := centroid(points, members)
		d := pointDist(c, grand)
		between += float64(len(members)) * d * d
		for _, i := range members {
			w := pointDist(points[i], c)
			within += w * w
		}
	}
	if within == 0 {
		return math.NaN()
	}
	return (between / float64(k-1)) / (within / float64(n-k))
}
