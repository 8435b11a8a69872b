package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package provides the synthetic data source for the cluster-estimation
// pipeline: clustered agent scenes (Episodes), the fixed random sensing
// operator that compresses a scene's grid occupancy into a short measurement
// vector, and a Dataset implementation that draws fresh episodes on demand.
//
// The datasets are generative rather than file-backed - an example is
// recomputed from a per-index seed every time it is requested, so the logical
// dataset length is arbitrary and no caching is needed across epochs.
//
// Notes on gomlx tensors:
//   - Converting batches into gomlx tensors is left as a small, well-defined
//     step. Batches are produced as contiguous float32 buffers along with
//     shape metadata, and ToGomlxTensors converts them for use with gomlx
//     training loops.
//
// Layout and intended usage:
//
// ClusterDataset
//   - Owns one SyntheticClusterSampler and one SensingOperator (the operator
//     is drawn once at construction and never mutated afterwards).
//   - Inputs per example: the m-dimensional measurement vector (float32).
//   - Labels per example: MaxClusters*3 floats laid out as
//     [x0, y0, w0, x1, y1, w1, ...] plus a MaxClusters validity mask marking
//     which padded slots hold a real cluster.
//
// The dataset implements this interface in order to interact with GoMLX
// training loops and batching utilities.
type Dataset interface {
	Len() int
	Example(i int) (measurement []float32, targets []float32, mask []bool, err error)
	Batch(indices []int) (measurements [][]float32, targets [][]float32, masks [][]bool, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
