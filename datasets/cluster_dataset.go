package datasets

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ClusterDatasetConfig configures a ClusterDataset: the scene generator, the
// sensing operator, and the logical dataset length.
type ClusterDatasetConfig struct {
	Sampler SamplerConfig

	// Length is the logical number of examples. Draws are independent, so the
	// length only bounds epoch size, not variety.
	Length int

	// MeasurementDim is m, the length of the compressed measurement vector.
	MeasurementDim int

	// GridResolution is the per-axis occupancy grid resolution (s = res^2).
	GridResolution int

	// OperatorKind selects the sensing matrix distribution. Empty means
	// OperatorGaussian.
	OperatorKind string

	// OperatorScale scales the sensing matrix entries. <= 0 means 1/sqrt(m).
	OperatorScale float64

	// BatchSize used by Yield. Default 32.
	BatchSize int

	// Seed controls the operator draw and all episode draws. If zero, a
	// time-based seed is used.
	Seed int64
}

// ClusterDataset is a generative Dataset of (measurement, padded targets,
// validity mask) examples. The sensing operator is drawn once at construction
// and shared read-only by every example draw; each example is regenerated from
// a seed derived from (dataset seed, index), so Example is deterministic per
// index and safe to call from concurrent workers.
type ClusterDataset struct {
	cfg      ClusterDatasetConfig
	sampler  *SyntheticClusterSampler
	operator *SensingOperator

	// perm maps logical example index to draw index; Shuffle permutes it.
	perm []int

	// cursor tracks Yield's position within the current epoch.
	mu     sync.Mutex
	cursor int
}

// NewClusterDataset validates the configuration, draws the sensing operator,
// and returns a ready dataset.
func NewClusterDataset(cfg ClusterDatasetConfig) (*ClusterDataset, error) {
	if cfg.Length < 1 {
		return nil, fmt.Errorf("dataset length must be >= 1, got %d", cfg.Length)
	}
	if cfg.OperatorKind == "" {
		cfg.OperatorKind = OperatorGaussian
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	sampler, err := NewSyntheticClusterSampler(cfg.Sampler)
	if err != nil {
		return nil, fmt.Errorf("invalid sampler config: %w", err)
	}
	opRNG := rand.New(rand.NewSource(cfg.Seed))
	operator, err := NewSensingOperator(cfg.MeasurementDim, cfg.GridResolution, cfg.OperatorKind, cfg.OperatorScale, opRNG)
	if err != nil {
		return nil, fmt.Errorf("invalid sensing operator config: %w", err)
	}

	perm := make([]int, cfg.Length)
	for i := range perm {
		perm[i] = i
	}
	return &ClusterDataset{
		cfg:      cfg,
		sampler:  sampler,
		operator: operator,
		perm:     perm,
	}, nil
}

// Operator returns the dataset's sensing operator.
func (d *ClusterDataset) Operator() *SensingOperator { return d.operator }

// MaxClusters returns the padded slot count of the target arrays.
func (d *ClusterDataset) MaxClusters() int { return d.cfg.Sampler.MaxClusters }

// Len returns the logical number of examples.
func (d *ClusterDataset) Len() int { return d.cfg.Length }

// Name returns the name of the dataset.
func (d *ClusterDataset) Name() string { return "ClusterDataset" }

// exampleSeed derives an independent RNG seed for a draw index. The mixing
// keeps neighboring indices from producing correlated streams.
func (d *ClusterDataset) exampleSeed(idx int) int64 {
	z := uint64(d.cfg.Seed) + uint64(idx+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

// EpisodeAt regenerates the full episode for a logical index along with its
// measurement. Evaluation uses this to recover raw agents and true labels for
// the same example the model saw.
func (d *ClusterDataset) EpisodeAt(idx int) (Episode, []float32, error) {
	if idx < 0 || idx >= d.cfg.Length {
		return Episode{}, nil, fmt.Errorf("index %d out of range [0, %d)", idx, d.cfg.Length)
	}
	rng := rand.New(rand.NewSource(d.exampleSeed(d.perm[idx])))
	ep := d.sampler.Sample(rng)
	return ep, d.operator.Project(&ep), nil
}

// Example returns the training view of one example: the measurement, the
// MaxClusters*3 flat target triples [x, y, w]..., and the validity mask.
func (d *ClusterDataset) Example(idx int) ([]float32, []float32, []bool, error) {
	ep, measurement, err := d.EpisodeAt(idx)
	if err != nil {
		return nil, nil, nil, err
	}
	targets, mask := FlattenTargets(&ep)
	return measurement, targets, mask, nil
}

// FlattenTargets lays an episode's padded cluster descriptors out as
// [x0, y0, w0, x1, y1, w1, ...] next to a copy of the validity mask.
func FlattenTargets(ep *Episode) ([]float32, []bool) {
	k := len(ep.Centers)
	targets := make([]float32, k*3)
	mask := make([]bool, k)
	for i := 0; i < k; i++ {
		targets[i*3] = ep.Centers[i].X
		targets[i*3+1] = ep.Centers[i].Y
		targets[i*3+2] = float32(ep.Weights[i])
		mask[i] = ep.Mask[i]
	}
	return targets, mask
}

// Batch reads multiple examples by their logical indices.
func (d *ClusterDataset) Batch(indices []int) ([][]float32, [][]float32, [][]bool, error) {
	measurements := make([][]float32, len(indices))
	targets := make([][]float32, len(indices))
	masks := make([][]bool, len(indices))
	for i, idx := range indices {
		m, t, vm, err := d.Example(idx)
		if err != nil {
			return nil, nil, nil, err
		}
		measurements[i] = m
		targets[i] = t
		masks[i] = vm
	}
	return measurements, targets, masks, nil
}

// Shuffle permutes the logical-to-draw index mapping.
func (d *ClusterDataset) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(d.perm), func(i, j int) {
		d.perm[i], d.perm[j] = d.perm[j], d.perm[i]
	})
}

// Tensors reads a batch of examples and returns measurements and flat targets
// as gomlx tensors. The validity mask is folded into the target tensor as a
// fourth channel per slot (1 for valid, 0 for padding) so gomlx loops see a
// single label tensor.
func (d *ClusterDataset) Tensors(indices []int) (inputs, labels *tensors.Tensor, err error) {
	measurements, targets, masks, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	batch, err := MakeClusterBatchFlat(measurements, targets, masks)
	if err != nil {
		return nil, nil, err
	}
	return batch.ToGomlxTensors()
}

// Yield returns the next batch for the gomlx Dataset interface; io.EOF marks
// the end of an epoch.
func (d *ClusterDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	d.mu.Lock()
	start := d.cursor
	if start >= d.cfg.Length {
		d.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	end := start + d.cfg.BatchSize
	if end > d.cfg.Length {
		end = d.cfg.Length
	}
	d.cursor = end
	d.mu.Unlock()

	indices := make([]int, end-start)
	for i := range indices {
		indices[i] = start + i
	}
	in, lab, err := d.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Restart resets the dataset for a new epoch.
func (d *ClusterDataset) Restart() error {
	d.mu.Lock()
	d.cursor = 0
	d.mu.Unlock()
	return nil
}

// ClusterBatchFlat stores a batch in flat contiguous buffers. Labels pack four
// values per cluster slot: x, y, weight, validity.
type ClusterBatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	SlotCount int
}

// MakeClusterBatchFlat flattens a batch into contiguous buffers.
func MakeClusterBatchFlat(measurements, targets [][]float32, masks [][]bool) (*ClusterBatchFlat, error) {
	if len(measurements) != len(targets) || len(measurements) != len(masks) {
		return nil, fmt.Errorf("batch sizes don't match: %d inputs, %d targets, %d masks",
			len(measurements), len(targets), len(masks))
	}
	if len(measurements) == 0 {
		return &ClusterBatchFlat{}, nil
	}

	batchSize := len(measurements)
	inputDim := len(measurements[0])
	slotCount := len(masks[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]float32, batchSize*slotCount*4)
	for i := 0; i < batchSize; i++ {
		if len(measurements[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(measurements[i]))
		}
		if len(targets[i]) != slotCount*3 || len(masks[i]) != slotCount {
			return nil, fmt.Errorf("inconsistent target shape at example %d", i)
		}
		copy(flatInputs[i*inputDim:], measurements[i])
		for s := 0; s < slotCount; s++ {
			base := (i*slotCount + s) * 4
			copy(flatLabels[base:base+3], targets[i][s*3:s*3+3])
			if masks[i][s] {
				flatLabels[base+3] = 1
			}
		}
	}

	return &ClusterBatchFlat{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
		SlotCount: slotCount,
	}, nil
}

// ToGomlxTensors converts ClusterBatchFlat to gomlx tensors.
func (b *ClusterBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.InputDim == 0 || b.SlotCount == 0 {
		emptyInputs := make([][]float32, 0)
		emptyLabels := make([][][]float32, 0)
		return tensors.FromAnyValue(emptyInputs), tensors.FromAnyValue(emptyLabels), nil
	}
	inputs := make([][]float32, b.BatchSize)
	labels := make([][][]float32, b.BatchSize)
	for i := 0; i < b.BatchSize; i++ {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		labels[i] = make([][]float32, b.SlotCount)
		for s := 0; s < b.SlotCount; s++ {
			base := (i*b.SlotCount + s) * 4
			labels[i][s] = b.Labels[base : base+4]
		}
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
