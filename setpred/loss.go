package setpred

import (
	"log"
	"math"

	"github.com/vddddds/decent-clustering/assign"
)

// smoothL1Beta is the threshold where the training cost switches from
// quadratic to linear.
const smoothL1Beta = 1.0

// smoothL1 is the robust regression cost: quadratic within beta of zero,
// linear beyond.
func smoothL1(d float64) float64 {
	a := math.Abs(d)
	if a < smoothL1Beta {
		return 0.5 * d * d / smoothL1Beta
	}
	return a - 0.5*smoothL1Beta
}

// smoothL1Grad is the derivative of smoothL1 with respect to d.
func smoothL1Grad(d float64) float64 {
	if math.Abs(d) < smoothL1Beta {
		return d / smoothL1Beta
	}
	if d > 0 {
		return 1
	}
	return -1
}

// validTargets extracts the mask-valid rows of a flat [x, y, w]... target
// slice as [t][3] rows.
func validTargets(targets []float32, mask []bool) [][3]float32 {
	out := make([][3]float32, 0, len(mask))
	for s, v := range mask {
		if v {
			out = append(out, [3]float32{targets[s*3], targets[s*3+1], targets[s*3+2]})
		}
	}
	return out
}

// pairCost is the differentiable assignment cost between one prediction and
// one target: the smooth-L1 coordinate residuals summed over both dimensions,
// weighted by cw, plus the smooth-L1 weight residual weighted by ww.
func pairCost(p Triple, t [3]float32, cw, ww float64) float64 {
	c := smoothL1(float64(p.X-t[0])) + smoothL1(float64(p.Y-t[1]))
	return cw*c + ww*smoothL1(float64(p.W-t[2]))
}

// trainCostMatrix builds the [len(preds)][len(targets)] assignment cost matrix.
func trainCostMatrix(preds []Triple, targets [][3]float32, cw, ww float64) [][]float64 {
	cost := make([][]float64, len(preds))
	for i, p := range preds {
		row := make([]float64, len(targets))
		for j, t := range targets {
			row[j] = pairCost(p, t, cw, ww)
		}
		cost[i] = row
	}
	return cost
}

// sampleLoss matches one sample's predictions against its valid targets and
// returns the mean matched-pair cost together with the assignment. ok is false
// when the sample contributes nothing (no valid targets, or the solver
// rejected the cost matrix).
func sampleLoss(preds []Triple, targets [][3]float32, cw, ww float64) (loss float64, rowToCol []int, ok bool) {
	if len(targets) == 0 {
		return 0, nil, false
	}
	cost := trainCostMatrix(preds, targets, cw, ww)
	rowToCol, err := assign.Solve(cost)
	if err != nil {
		log.Printf("setpred: skipping sample, assignment failed: %v", err)
		return 0, nil, false
	}
	matched := 0
	for _, j := range rowToCol {
		if j >= 0 {
			matched++
		}
	}
	if matched == 0 {
		return 0, nil, false
	}
	return assign.TotalCost(cost, rowToCol) / float64(matched), rowToCol, true
}

// AssignmentLoss computes the permutation-invariant training loss for a batch:
// per sample, a minimum-cost matching between the predicted triples and the
// mask-valid targets, averaged over matched pairs; then the mean over samples
// with at least one valid target. A batch with no qualifying sample has loss
// exactly 0. Samples whose cost matrix the solver rejects are skipped, never
// aborting the batch.
func AssignmentLoss(preds [][]Triple, targets [][]float32, masks [][]bool, cw, ww float64) float64 {
	total := 0.0
	contributing := 0
	for i := range preds {
		l, _, ok := sampleLoss(preds[i], validTargets(targets[i], masks[i]), cw, ww)
		if !ok {
			continue
		}
		total += l
		contributing++
	}
	if contributing == 0 {
		return 0
	}
	return total / float64(contributing)
}

// DatasetLoss evaluates the assignment loss on the given dataset indices
// without updating the model.
func (m *Model) DatasetLoss(ds Dataset, indices []int) (float64, error) {
	measurements, targets, masks, err := ds.Batch(indices)
	if err != nil {
		return 0, err
	}
	preds, err := m.PredictBatch(measurements)
	if err != nil {
		return 0, err
	}
	return AssignmentLoss(preds, targets, masks, m.Config.CoordWeight, m.Config.WeightWeight), nil
}
