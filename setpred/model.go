package setpred

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds configurable hyperparameters for the set-prediction MLP and
// its training.
type Config struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{128, 64}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// InputDim is the measurement dimension m. Required.
	InputDim int

	// MaxClusters is the fixed output cardinality K: the model always emits
	// MaxClusters candidate triples. Required.
	MaxClusters int

	// LearningRate used by the SGD updates (default if 0 will be set by
	// NewModel to 0.001).
	LearningRate float64

	// Epochs to train for (default if 0 will be set by NewModel to 10).
	Epochs int

	// BatchSize for mini-batch updates (default if 0 will be set by NewModel to 8).
	BatchSize int

	// Seed controls RNG for weight init and shuffling. If zero, time-based seed is used.
	Seed int64

	// CoordWeight scales the coordinate term of the assignment cost (default 1.0).
	CoordWeight float64

	// WeightWeight scales the cluster-weight term of the assignment cost
	// (default 0.01; cluster weights are agent counts, so they sit on a much
	// larger scale than coordinates).
	WeightWeight float64

	// ClipNorm is the per-layer gradient clipping threshold. If zero a
	// sensible default (5.0) is used.
	ClipNorm float32
}

// Triple is one candidate cluster descriptor: a center in [0,1]^2 and a
// non-negative population weight.
type Triple struct {
	X float32
	Y float32
	W float32
}

// Model maps an m-dimensional measurement to a fixed-size set of MaxClusters
// candidate (x, y, weight) triples. The output slots carry no ordering
// contract: correspondence with ground truth is always resolved by assignment,
// never by index. The network is a plain MLP with ReLU hidden layers and a
// linear final layer; the head bounds coordinates with a sigmoid and forces
// weights non-negative with a softplus.
type Model struct {
	// Config used for training / initialization.
	Config Config

	// layerSizes includes input size, hidden sizes, then output size (MaxClusters*3).
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	// rng used for weight initialization and shuffling
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights (small random values) and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	if cfg.InputDim < 1 {
		return nil, fmt.Errorf("input dim must be >= 1, got %d", cfg.InputDim)
	}
	if cfg.MaxClusters < 1 {
		return nil, fmt.Errorf("max clusters must be >= 1, got %d", cfg.MaxClusters)
	}
	// defaults
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{64}
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 10
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.CoordWeight == 0 {
		cfg.CoordWeight = 1.0
	}
	if cfg.WeightWeight == 0 {
		cfg.WeightWeight = 0.01
	}
	if cfg.ClipNorm == 0 {
		cfg.ClipNorm = 5.0
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	outputDim := cfg.MaxClusters * 3
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.InputDim)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	// allocate weights and biases
	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				// Xavier/Glorot uniform initialization heuristic
				limit := float32(math.Sqrt(6.0 / float64(in+out)))
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}

	return m, nil
}

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// activationReLUDeriv returns elementwise derivative of ReLU applied to preact.
// derivative is 1 where preact>0, else 0.
func activationReLUDeriv(preact []float32) []float32 {
	d := make([]float32, len(preact))
	for i := range preact {
		if preact[i] > 0 {
			d[i] = 1.0
		}
	}
	return d
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

func softplus(x float32) float32 {
	// log(1+exp(x)) overflows for large x; the linear asymptote is exact there.
	if x > 30 {
		return x
	}
	return float32(math.Log1p(math.Exp(float64(x))))
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
// The final activation is the raw linear output; the bounding head is applied
// separately by applyHead.
func (m *Model) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, errors.New("input has incorrect dimension")
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = make([]float32, len(input))
	copy(acts[0], input)

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		outDim := len(m.biases[l])
		inDim := len(inVec)
		pre := make([]float32, outDim)
		W := m.weights[l]
		b := m.biases[l]
		for j := 0; j < outDim; j++ {
			sum := float32(0.0)
			row := W[j]
			for i := 0; i < inDim; i++ {
				sum += row[i] * inVec[i]
			}
			sum += b[j]
			pre[j] = sum
		}
		preActs[l] = pre

		// Activation: ReLU for hidden, linear for last layer
		act := make([]float32, outDim)
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// applyHead turns the raw linear output into bounded triples: sigmoid on each
// coordinate, softplus on the weight.
func (m *Model) applyHead(raw []float32) []Triple {
	k := m.Config.MaxClusters
	triples := make([]Triple, k)
	for s := 0; s < k; s++ {
		triples[s] = Triple{
			X: sigmoid(raw[s*3]),
			Y: sigmoid(raw[s*3+1]),
			W: softplus(raw[s*3+2]),
		}
	}
	return triples
}

// Predict runs a forward pass for one measurement and returns the MaxClusters
// candidate triples.
func (m *Model) Predict(measurement []float32) ([]Triple, error) {
	_, acts, err := m.forwardSingle(measurement)
	if err != nil {
		return nil, err
	}
	return m.applyHead(acts[len(acts)-1]), nil
}

// PredictBatch returns model predictions for a batch of measurements. It does
// a purely forward pass (no training).
func (m *Model) PredictBatch(measurements [][]float32) ([][]Triple, error) {
	out := make([][]Triple, len(measurements))
	for i, in := range measurements {
		pred, err := m.Predict(in)
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}
