// Package eval scores predicted cluster sets against ground-truth episodes.
// Predictions and ground truth are matched by minimum-cost assignment
// (Euclidean distance plus absolute weight difference); the matched pairs
// yield regression metrics, and a nearest-center relabeling of the raw agents
// yields clustering-quality metrics. A metric that is mathematically undefined
// for the sample's configuration is reported as NaN without affecting the
// others.
package eval

import (
	"log"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vddddds/decent-clustering/assign"
	"github.com/vddddds/decent-clustering/datasets"
	"github.com/vddddds/decent-clustering/setpred"
)

// Metric keys present in every Result.
const (
	MetricCoordMAE         = "coord_mae"
	MetricWeightMAE        = "weight_mae"
	MetricWeightMSE        = "weight_mse"
	MetricWeightedAccuracy = "weighted_accuracy"
	MetricProportionError  = "proportion_error"
	MetricKLDivergence     = "kl_divergence"
	MetricSilhouette       = "silhouette"
	MetricNMI              = "nmi"
	MetricARI              = "ari"
	MetricDaviesBouldin    = "davies_bouldin"
	MetricCalinskiHarabasz = "calinski_harabasz"
)

// MetricKeys lists every metric key in a stable order, for CSV headers and
// aggregation.
var MetricKeys = []string{
	MetricCoordMAE,
	MetricWeightMAE,
	MetricWeightMSE,
	MetricWeightedAccuracy,
	MetricProportionError,
	MetricKLDivergence,
	MetricSilhouette,
	MetricNMI,
	MetricARI,
	MetricDaviesBouldin,
	MetricCalinskiHarabasz,
}

// Result is the flat per-sample metrics record. NaN marks a metric that is
// undefined for this sample.
type Result struct {
	NumPred    int
	NumGT      int
	NumMatched int
	Metrics    map[string]float64
}

// klEpsilon regularizes both weight distributions before the KL divergence so
// zero-weight slots don't produce log(0).
const klEpsilon = 1e-10

// relWeightTolerance is the relative weight error below which a matched pair
// counts as accurately weighted.
const relWeightTolerance = 0.1

func undefinedMetrics() map[string]float64 {
	m := make(map[string]float64, len(MetricKeys))
	for _, k := range MetricKeys {
		m[k] = math.NaN()
	}
	return m
}

// Evaluate scores one prediction set against one episode.
func Evaluate(preds []setpred.Triple, ep *datasets.Episode) Result {
	res := Result{
		NumPred: len(preds),
		Metrics: undefinedMetrics(),
	}

	// Gather valid ground-truth clusters.
	var gtCenters []datasets.Point
	var gtWeights []float64
	for i, valid := range ep.Mask {
		if valid {
			gtCenters = append(gtCenters, ep.Centers[i])
			gtWeights = append(gtWeights, float64(ep.Weights[i]))
		}
	}
	res.NumGT = len(gtCenters)
	if res.NumGT == 0 {
		return res
	}

	// Minimum-cost matching on plain Euclidean distance plus absolute weight
	// difference.
	cost := make([][]float64, len(preds))
	for i, p := range preds {
		row := make([]float64, len(gtCenters))
		for j, c := range gtCenters {
			d := math.Hypot(float64(p.X-c.X), float64(p.Y-c.Y))
			row[j] = d + math.Abs(float64(p.W)-gtWeights[j])
		}
		cost[i] = row
	}
	rowToCol, err := assign.Solve(cost)
	if err != nil {
		log.Printf("eval: assignment failed, reporting unmatched sample: %v", err)
		return res
	}

	var predW, gtW []float64
	var coordAbs, weightAbs, weightSq float64
	accurate := 0
	for i, j := range rowToCol {
		if j < 0 {
			continue
		}
		res.NumMatched++
		p := preds[i]
		c := gtCenters[j]
		coordAbs += math.Abs(float64(p.X-c.X)) + math.Abs(float64(p.Y-c.Y))
		dw := float64(p.W) - gtWeights[j]
		weightAbs += math.Abs(dw)
		weightSq += dw * dw
		if relWeightError(float64(p.W), gtWeights[j]) < relWeightTolerance {
			accurate++
		}
		predW = append(predW, float64(p.W))
		gtW = append(gtW, gtWeights[j])
	}
	if res.NumMatched == 0 {
		return res
	}

	n := float64(res.NumMatched)
	res.Metrics[MetricCoordMAE] = coordAbs / (2 * n)
	res.Metrics[MetricWeightMAE] = weightAbs / n
	res.Metrics[MetricWeightMSE] = weightSq / n
	res.Metrics[MetricWeightedAccuracy] = float64(accurate) / n
	res.Metrics[MetricProportionError] = proportionError(predW, gtW)
	res.Metrics[MetricKLDivergence] = weightDivergence(gtW, predW)

	// Clustering-quality metrics from relabeling the raw agents by their
	// nearest unique predicted center.
	centers := uniqueCenters(preds)
	if len(centers) >= 2 && len(ep.Agents) >= 2 {
		predLabels := nearestCenterLabels(ep.Agents, centers)
		res.Metrics[MetricSilhouette] = silhouette(ep.Agents, predLabels)
		res.Metrics[MetricNMI] = normalizedMutualInfo(ep.Labels, predLabels)
		res.Metrics[MetricARI] = adjustedRandIndex(ep.Labels, predLabels)
		res.Metrics[MetricDaviesBouldin] = daviesBouldin(ep.Agents, predLabels)
		res.Metrics[MetricCalinskiHarabasz] = calinskiHarabasz(ep.Agents, predLabels)
	}
	return res
}

// relWeightError is |pred-gt|/gt, with a zero ground-truth weight treated as
// an exact-match-only target.
func relWeightError(pred, gt float64) float64 {
	if gt == 0 {
		if pred == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(pred-gt) / gt
}

// proportionError is the mean absolute difference between the two sides'
// weights after each side is normalized to sum to one.
func proportionError(pred, gt []float64) float64 {
	p, okP := normalize(pred)
	q, okQ := normalize(gt)
	if !okP || !okQ {
		return math.NaN()
	}
	sum := 0.0
	for i := range p {
		sum += math.Abs(p[i] - q[i])
	}
	return sum / float64(len(p))
}

// weightDivergence is the KL divergence between the normalized ground-truth
// and predicted weight distributions, both regularized with a small epsilon.
// Identical proportions give exactly 0.
func weightDivergence(gt, pred []float64) float64 {
	p, okP := normalize(gt)
	q, okQ := normalize(pred)
	if !okP || !okQ {
		return math.NaN()
	}
	for i := range p {
		p[i] += klEpsilon
		q[i] += klEpsilon
	}
	p, _ = normalize(p)
	q, _ = normalize(q)
	return stat.KullbackLeibler(p, q)
}

// normalize returns the slice scaled to sum to one; ok is false when the sum
// is not positive.
func normalize(xs []float64) ([]float64, bool) {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	if sum <= 0 {
		return nil, false
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x / sum
	}
	return out, true
}

// uniqueCenters deduplicates the predicted centers, keeping first occurrence
// order.
func uniqueCenters(preds []setpred.Triple) []datasets.Point {
	seen := make(map[datasets.Point]bool, len(preds))
	out := make([]datasets.Point, 0, len(preds))
	for _, p := range preds {
		pt := datasets.Point{X: p.X, Y: p.Y}
		if !seen[pt] {
			seen[pt] = true
			out = append(out, pt)
		}
	}
	return out
}

// nearestCenterLabels assigns every agent the index of its nearest center
// (1-nearest-neighbor linear scan).
func nearestCenterLabels(agents []datasets.Point, centers []datasets.Point) []int {
	labels := make([]int, len(agents))
	for i, a := range agents {
		best := 0
		bestDist := math.Inf(1)
		for c, ctr := range centers {
			d := math.Hypot(float64(a.X-ctr.X), float64(a.Y-ctr.Y))
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		labels[i] = best
	}
	return labels
}
