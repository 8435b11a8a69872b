package setpred

import (
	"math"
	"math/rand"
	"testing"
)

// TestModelOutputBounds: every candidate triple has coordinates in [0,1] and a
// non-negative weight, and the output cardinality is always MaxClusters.
func TestModelOutputBounds(t *testing.T) {
	cfg := Config{
		HiddenSizes: []int{16},
		InputDim:    8,
		MaxClusters: 4,
		Seed:        21,
	}
	model, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}

	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 20; trial++ {
		in := make([]float32, 8)
		for i := range in {
			in[i] = float32(rng.NormFloat64() * 10)
		}
		preds, err := model.Predict(in)
		if err != nil {
			t.Fatalf("Predict error: %v", err)
		}
		if len(preds) != 4 {
			t.Fatalf("got %d triples, want 4", len(preds))
		}
		for s, p := range preds {
			if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
				t.Fatalf("trial %d slot %d: coords (%v, %v) outside [0,1]", trial, s, p.X, p.Y)
			}
			if p.W < 0 {
				t.Fatalf("trial %d slot %d: negative weight %v", trial, s, p.W)
			}
		}
	}
}

func TestModelConfigValidation(t *testing.T) {
	if _, err := NewModel(Config{InputDim: 0, MaxClusters: 3}); err == nil {
		t.Errorf("expected error for missing input dim")
	}
	if _, err := NewModel(Config{InputDim: 8, MaxClusters: 0}); err == nil {
		t.Errorf("expected error for missing max clusters")
	}
}

func TestModelRejectsWrongInputDim(t *testing.T) {
	model, err := NewModel(Config{InputDim: 8, MaxClusters: 2, Seed: 1})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	if _, err := model.Predict(make([]float32, 5)); err == nil {
		t.Fatalf("expected dimension error")
	}
}

// constantDataset emits the same (measurement, target, mask) for every index:
// one cluster at (0.2, 0.7) with weight 3 in a 3-slot padded target.
type constantDataset struct {
	n           int
	measurement []float32
}

func (d *constantDataset) Len() int { return d.n }

func (d *constantDataset) Batch(indices []int) ([][]float32, [][]float32, [][]bool, error) {
	measurements := make([][]float32, len(indices))
	targets := make([][]float32, len(indices))
	masks := make([][]bool, len(indices))
	for i := range indices {
		measurements[i] = d.measurement
		targets[i] = []float32{0.2, 0.7, 3, 0, 0, 0, 0, 0, 0}
		masks[i] = []bool{true, false, false}
	}
	return measurements, targets, masks, nil
}

// TestTrainReducesAssignmentLoss fits the model to a constant single-cluster
// target and expects the assignment loss to drop.
func TestTrainReducesAssignmentLoss(t *testing.T) {
	measurement := make([]float32, 8)
	for i := range measurement {
		measurement[i] = float32(i%3) - 1
	}
	ds := &constantDataset{n: 64, measurement: measurement}

	cfg := Config{
		HiddenSizes:  []int{32},
		InputDim:     8,
		MaxClusters:  3,
		LearningRate: 0.05,
		Epochs:       100,
		BatchSize:    16,
		Seed:         42,
		CoordWeight:  1.0,
		WeightWeight: 1.0,
	}
	model, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}

	indices := []int{0, 1, 2, 3}
	before, err := model.DatasetLoss(ds, indices)
	if err != nil {
		t.Fatalf("DatasetLoss(before) error: %v", err)
	}

	if err := model.TrainWithDataset(ds); err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}

	after, err := model.DatasetLoss(ds, indices)
	if err != nil {
		t.Fatalf("DatasetLoss(after) error: %v", err)
	}
	t.Logf("assignment loss before=%.6f after=%.6f", before, after)
	if !(after+1e-9 < before) {
		t.Fatalf("expected loss to decrease after training: before=%.6f after=%.6f", before, after)
	}

	// Predictions stay finite and bounded after training.
	preds, err := model.Predict(measurement)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	for s, p := range preds {
		for _, v := range []float32{p.X, p.Y, p.W} {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("non-finite output in slot %d: %+v", s, p)
			}
		}
	}
}

func TestTrainRejectsNilOrEmptyDataset(t *testing.T) {
	model, err := NewModel(Config{InputDim: 8, MaxClusters: 2, Seed: 1})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	if err := model.TrainWithDataset(nil); err == nil {
		t.Errorf("expected error for nil dataset")
	}
	if err := model.TrainWithDataset(&constantDataset{n: 0}); err == nil {
		t.Errorf("expected error for empty dataset")
	}
}
