package setpred

import (
	"errors"
	"math"
)

// Dataset is the minimal interface this package requires from a training data
// source. This keeps setpred decoupled from the concrete datasets package
// while allowing callers to pass the repository's ClusterDataset (it matches
// these methods).
type Dataset interface {
	Len() int
	// Batch returns measurements, flat targets and validity masks for the
	// provided global indices. Measurements have dimension InputDim; each
	// target slice holds MaxClusters*3 floats laid out [x, y, w]...; each mask
	// holds MaxClusters booleans.
	Batch(indices []int) ([][]float32, [][]float32, [][]bool, error)
}

// TrainWithDataset trains the model with mini-batch SGD on the assignment
// loss. Per sample, the predicted triples are matched to the mask-valid
// targets by minimum-cost assignment and only the matched slots receive
// gradient; samples without valid targets, and samples whose cost matrix the
// solver rejects, are skipped. Per-layer gradients are norm-clipped to
// Config.ClipNorm before the averaged update.
func (m *Model) TrainWithDataset(ds Dataset) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}

	epochs := m.Config.Epochs
	batchSize := m.Config.BatchSize
	lr := float32(m.Config.LearningRate)
	cw := m.Config.CoordWeight
	ww := m.Config.WeightWeight

	indices := make([]int, n)
	for i := 0; i < n; i++ {
		indices[i] = i
	}

	for ep := 0; ep < epochs; ep++ {
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for bstart := 0; bstart < n; bstart += batchSize {
			bend := bstart + batchSize
			if bend > n {
				bend = n
			}
			batchIdx := indices[bstart:bend]

			measurements, targets, masks, err := ds.Batch(batchIdx)
			if err != nil {
				return err
			}

			// Gradient accumulators (same shape as weights / biases).
			L := len(m.weights)
			gradW := make([][][]float32, L)
			gradB := make([][]float32, L)
			for l := 0; l < L; l++ {
				outDim := len(m.biases[l])
				inDim := len(m.weights[l][0])
				gradW[l] = make([][]float32, outDim)
				for j := 0; j < outDim; j++ {
					gradW[l][j] = make([]float32, inDim)
				}
				gradB[l] = make([]float32, outDim)
			}

			contributing := 0
			for ex := range measurements {
				preacts, acts, err := m.forwardSingle(measurements[ex])
				if err != nil {
					return err
				}
				raw := acts[len(acts)-1]
				delta := m.outputDelta(raw, targets[ex], masks[ex], cw, ww)
				if delta == nil {
					continue
				}
				contributing++

				// Backprop, accumulating into gradW/gradB.
				for l := len(m.weights) - 1; l >= 0; l-- {
					inAct := acts[l]
					outDim := len(delta)
					inDim := len(inAct)

					for j := 0; j < outDim; j++ {
						gradB[l][j] += delta[j]
						for i := 0; i < inDim; i++ {
							gradW[l][j][i] += delta[j] * inAct[i]
						}
					}

					if l > 0 {
						prevLen := len(m.weights[l][0])
						newDelta := make([]float32, prevLen)
						for i := 0; i < prevLen; i++ {
							sum := float32(0.0)
							for j := 0; j < outDim; j++ {
								sum += m.weights[l][j][i] * delta[j]
							}
							newDelta[i] = sum
						}
						deriv := activationReLUDeriv(preacts[l-1])
						for i := 0; i < prevLen; i++ {
							newDelta[i] *= deriv[i]
						}
						delta = newDelta
					}
				}
			}

			if contributing == 0 {
				continue
			}

			// Averaged, per-layer norm-clipped SGD update.
			bInv := float32(1.0 / float64(contributing))
			for l := 0; l < L; l++ {
				scale := bInv * m.clipScale(gradW[l], gradB[l], bInv)
				outDim := len(m.biases[l])
				inDim := len(m.weights[l][0])
				for j := 0; j < outDim; j++ {
					m.biases[l][j] -= lr * gradB[l][j] * scale
					for i := 0; i < inDim; i++ {
						m.weights[l][j][i] -= lr * gradW[l][j][i] * scale
					}
				}
			}
		}
	}

	return nil
}

// outputDelta computes the loss gradient at the final pre-activation for one
// sample, or nil when the sample contributes nothing. Only matched prediction
// slots receive gradient; the head nonlinearities (sigmoid, softplus) are
// differentiated here since forwardSingle keeps the last layer linear.
func (m *Model) outputDelta(raw []float32, flatTargets []float32, mask []bool, cw, ww float64) []float32 {
	targets := validTargets(flatTargets, mask)
	preds := m.applyHead(raw)
	_, rowToCol, ok := sampleLoss(preds, targets, cw, ww)
	if !ok {
		return nil
	}
	matched := 0
	for _, j := range rowToCol {
		if j >= 0 {
			matched++
		}
	}

	delta := make([]float32, len(raw))
	inv := 1.0 / float64(matched)
	for i, j := range rowToCol {
		if j < 0 {
			continue
		}
		p := preds[i]
		t := targets[j]

		// d(cost)/d(head output), averaged over matched pairs.
		gx := cw * smoothL1Grad(float64(p.X-t[0])) * inv
		gy := cw * smoothL1Grad(float64(p.Y-t[1])) * inv
		gw := ww * smoothL1Grad(float64(p.W-t[2])) * inv

		// Through the head: sigmoid'(z) = s(1-s), softplus'(z) = sigmoid(z).
		delta[i*3] = float32(gx * float64(p.X) * (1.0 - float64(p.X)))
		delta[i*3+1] = float32(gy * float64(p.Y) * (1.0 - float64(p.Y)))
		delta[i*3+2] = float32(gw) * sigmoid(raw[i*3+2])
	}
	return delta
}

// clipScale returns the factor that caps the averaged layer gradient norm at
// Config.ClipNorm.
func (m *Model) clipScale(gradW [][]float32, gradB []float32, bInv float32) float32 {
	var sum float64
	for j := range gradW {
		for i := range gradW[j] {
			g := float64(gradW[j][i] * bInv)
			sum += g * g
		}
		g := float64(gradB[j] * bInv)
		sum += g * g
	}
	norm := float32(math.Sqrt(sum))
	if norm > m.Config.ClipNorm && norm > 0 {
		return m.Config.ClipNorm / norm
	}
	return 1.0
}
