package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vddddds/decent-clustering/datasets"
	"github.com/vddddds/decent-clustering/setpred"
)

func TestSaveDiagnostic(t *testing.T) {
	ep := &datasets.Episode{
		Agents:  []datasets.Point{{X: 0.1, Y: 0.1}, {X: 0.12, Y: 0.09}, {X: 0.8, Y: 0.85}},
		Labels:  []int{0, 0, 1},
		Centers: []datasets.Point{{X: 0.1, Y: 0.1}, {X: 0.8, Y: 0.85}, {}},
		Weights: []int{2, 1, 0},
		Mask:    []bool{true, true, false},
	}
	preds := []setpred.Triple{
		{X: 0.11, Y: 0.1, W: 2.1},
		{X: 0.79, Y: 0.86, W: 0.9},
		{X: 0.5, Y: 0.5, W: 0},
	}

	path := filepath.Join(t.TempDir(), "figures", "ep0.png")
	if err := SaveDiagnostic(path, ep, preds); err != nil {
		t.Fatalf("SaveDiagnostic failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("figure not written: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("figure file is empty")
	}
}
