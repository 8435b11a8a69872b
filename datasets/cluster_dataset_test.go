package datasets

import (
	"io"
	"testing"
)

func testDatasetConfig() ClusterDatasetConfig {
	return ClusterDatasetConfig{
		Sampler:        defaultSamplerConfig(),
		Length:         16,
		MeasurementDim: 32,
		GridResolution: 8,
		BatchSize:      4,
		Seed:           42,
	}
}

// TestClusterDatasetShapes checks the example layout: m-length measurement,
// MaxClusters*3 flat targets, MaxClusters mask.
func TestClusterDatasetShapes(t *testing.T) {
	ds, err := NewClusterDataset(testDatasetConfig())
	if err != nil {
		t.Fatalf("NewClusterDataset error: %v", err)
	}
	if ds.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", ds.Len())
	}

	measurement, targets, mask, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	if len(measurement) != 32 {
		t.Fatalf("measurement length %d, want 32", len(measurement))
	}
	if len(targets) != ds.MaxClusters()*3 {
		t.Fatalf("targets length %d, want %d", len(targets), ds.MaxClusters()*3)
	}
	if len(mask) != ds.MaxClusters() {
		t.Fatalf("mask length %d, want %d", len(mask), ds.MaxClusters())
	}

	if _, _, _, err := ds.Example(16); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

// TestClusterDatasetDeterministicPerIndex: the same index regenerates the
// same example, and EpisodeAt agrees with Example.
func TestClusterDatasetDeterministicPerIndex(t *testing.T) {
	ds, err := NewClusterDataset(testDatasetConfig())
	if err != nil {
		t.Fatalf("NewClusterDataset error: %v", err)
	}

	m1, t1, _, err := ds.Example(3)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	m2, t2, _, err := ds.Example(3)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	for i := range m1 {
		if m1[i] != m2[i] {
			t.Fatalf("measurement differs at %d on re-read", i)
		}
	}
	for i := range t1 {
		if t1[i] != t2[i] {
			t.Fatalf("targets differ at %d on re-read", i)
		}
	}

	ep, m3, err := ds.EpisodeAt(3)
	if err != nil {
		t.Fatalf("EpisodeAt error: %v", err)
	}
	for i := range m1 {
		if m1[i] != m3[i] {
			t.Fatalf("EpisodeAt measurement differs at %d", i)
		}
	}
	flat, mask := FlattenTargets(&ep)
	for i := range t1 {
		if t1[i] != flat[i] {
			t.Fatalf("EpisodeAt targets differ at %d", i)
		}
	}
	if len(mask) != ds.MaxClusters() {
		t.Fatalf("mask length %d, want %d", len(mask), ds.MaxClusters())
	}

	// Different indices produce different draws.
	mOther, _, _, err := ds.Example(4)
	if err != nil {
		t.Fatalf("Example error: %v", err)
	}
	same := true
	for i := range m1 {
		if m1[i] != mOther[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("indices 3 and 4 produced identical measurements")
	}
}

// TestClusterDatasetBatchAndTensors exercises Batch, the flat-batch helper and
// gomlx tensor conversion.
func TestClusterDatasetBatchAndTensors(t *testing.T) {
	ds, err := NewClusterDataset(testDatasetConfig())
	if err != nil {
		t.Fatalf("NewClusterDataset error: %v", err)
	}

	measurements, targets, masks, err := ds.Batch([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if len(measurements) != 3 || len(targets) != 3 || len(masks) != 3 {
		t.Fatalf("batch sizes %d/%d/%d, want 3", len(measurements), len(targets), len(masks))
	}

	batch, err := MakeClusterBatchFlat(measurements, targets, masks)
	if err != nil {
		t.Fatalf("MakeClusterBatchFlat error: %v", err)
	}
	if batch.BatchSize != 3 || batch.InputDim != 32 || batch.SlotCount != ds.MaxClusters() {
		t.Fatalf("unexpected flat batch dims: %+v", batch)
	}
	if len(batch.Labels) != 3*ds.MaxClusters()*4 {
		t.Fatalf("flat labels length %d, want %d", len(batch.Labels), 3*ds.MaxClusters()*4)
	}

	in, lab, err := batch.ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors error: %v", err)
	}
	if in == nil || lab == nil {
		t.Fatalf("nil tensors from conversion")
	}
}

// TestClusterDatasetYield walks one epoch through the gomlx-style Yield/Restart
// surface.
func TestClusterDatasetYield(t *testing.T) {
	cfg := testDatasetConfig()
	cfg.Length = 10
	cfg.BatchSize = 4
	ds, err := NewClusterDataset(cfg)
	if err != nil {
		t.Fatalf("NewClusterDataset error: %v", err)
	}

	batches := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("Yield returned %d/%d tensors, want 1/1", len(inputs), len(labels))
		}
		batches++
		if batches > 3 {
			t.Fatalf("epoch did not terminate after expected batches")
		}
	}
	if batches != 3 { // 4 + 4 + 2
		t.Fatalf("got %d batches per epoch, want 3", batches)
	}

	if err := ds.Restart(); err != nil {
		t.Fatalf("Restart error: %v", err)
	}
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Restart error: %v", err)
	}
}
