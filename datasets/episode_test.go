package datasets

import (
	"math/rand"
	"testing"
)

func defaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		AgentCount:  100,
		MinClusters: 1,
		MaxClusters: 5,
		MinDistance: 0.2,
		Bounds:      [2]float64{0, 1},
		StdDevRange: [2]float64{0.02, 0.08},
	}
}

// TestSamplerInvariants draws many episodes and checks the structural
// invariants: agent count, weight conservation, padding, label consistency and
// center separation.
func TestSamplerInvariants(t *testing.T) {
	cfg := defaultSamplerConfig()
	s, err := NewSyntheticClusterSampler(cfg)
	if err != nil {
		t.Fatalf("NewSyntheticClusterSampler error: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		ep := s.Sample(rng)

		if len(ep.Agents) != cfg.AgentCount {
			t.Fatalf("trial %d: got %d agents, want %d", trial, len(ep.Agents), cfg.AgentCount)
		}
		if len(ep.Labels) != len(ep.Agents) {
			t.Fatalf("trial %d: labels length %d != agents length %d", trial, len(ep.Labels), len(ep.Agents))
		}
		if len(ep.Centers) != cfg.MaxClusters || len(ep.Weights) != cfg.MaxClusters || len(ep.Mask) != cfg.MaxClusters {
			t.Fatalf("trial %d: padded arrays not sized to MaxClusters", trial)
		}

		k := ep.NumValid()
		if k < 1 || k > cfg.MaxClusters {
			t.Fatalf("trial %d: active cluster count %d outside [1, %d]", trial, k, cfg.MaxClusters)
		}

		// Weights over valid slots sum to the agent count; padding is zeroed.
		sum := 0
		for i := 0; i < cfg.MaxClusters; i++ {
			if ep.Mask[i] {
				sum += ep.Weights[i]
			} else if ep.Weights[i] != 0 || ep.Centers[i] != (Point{}) {
				t.Fatalf("trial %d: padding slot %d not zeroed", trial, i)
			}
		}
		if sum != cfg.AgentCount {
			t.Fatalf("trial %d: valid weights sum to %d, want %d", trial, sum, cfg.AgentCount)
		}

		// Per-label agent counts match the recorded weights.
		counts := make([]int, cfg.MaxClusters)
		for i, l := range ep.Labels {
			if l < 0 || l >= k {
				t.Fatalf("trial %d: agent %d has label %d outside [0, %d)", trial, i, l, k)
			}
			counts[l]++
		}
		for c := 0; c < k; c++ {
			if counts[c] != ep.Weights[c] {
				t.Fatalf("trial %d: cluster %d has %d agents but weight %d", trial, c, counts[c], ep.Weights[c])
			}
		}

		// Agents clipped into bounds.
		for i, a := range ep.Agents {
			if float64(a.X) < cfg.Bounds[0] || float64(a.X) > cfg.Bounds[1] ||
				float64(a.Y) < cfg.Bounds[0] || float64(a.Y) > cfg.Bounds[1] {
				t.Fatalf("trial %d: agent %d at (%v, %v) outside bounds", trial, i, a.X, a.Y)
			}
		}

		// Valid centers keep the minimum separation.
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if d := euclidean(ep.Centers[i], ep.Centers[j]); d < cfg.MinDistance {
					t.Fatalf("trial %d: centers %d and %d at distance %v < %v", trial, i, j, d, cfg.MinDistance)
				}
			}
		}
	}
}

// TestSamplerNoDegradationWithoutSeparation verifies that with no separation
// constraint the drawn cluster count is always honored.
func TestSamplerNoDegradationWithoutSeparation(t *testing.T) {
	cfg := defaultSamplerConfig()
	cfg.MinDistance = 0
	cfg.MinClusters = 4
	cfg.MaxClusters = 4
	s, err := NewSyntheticClusterSampler(cfg)
	if err != nil {
		t.Fatalf("NewSyntheticClusterSampler error: %v", err)
	}

	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		ep := s.Sample(rng)
		if got := ep.NumValid(); got != 4 {
			t.Fatalf("trial %d: got %d active clusters, want 4", trial, got)
		}
	}
}

// TestSamplerDegradesWhenGeometryImpossible asks for multiple clusters whose
// separation exceeds the scene diagonal; placement must degrade to a single
// cluster that still receives the whole population.
func TestSamplerDegradesWhenGeometryImpossible(t *testing.T) {
	cfg := defaultSamplerConfig()
	cfg.MinClusters = 3
	cfg.MaxClusters = 3
	cfg.MinDistance = 2.0 // > sqrt(2), unreachable inside the unit box
	s, err := NewSyntheticClusterSampler(cfg)
	if err != nil {
		t.Fatalf("NewSyntheticClusterSampler error: %v", err)
	}

	rng := rand.New(rand.NewSource(11))
	ep := s.Sample(rng)
	if got := ep.NumValid(); got != 1 {
		t.Fatalf("got %d active clusters, want degradation to 1", got)
	}
	if ep.Weights[0] != cfg.AgentCount {
		t.Fatalf("degraded cluster holds %d agents, want %d", ep.Weights[0], cfg.AgentCount)
	}
	if len(ep.Agents) != cfg.AgentCount {
		t.Fatalf("got %d agents, want %d", len(ep.Agents), cfg.AgentCount)
	}
}

// TestSamplerZeroAgents produces a well-formed episode with no agents.
func TestSamplerZeroAgents(t *testing.T) {
	cfg := defaultSamplerConfig()
	cfg.AgentCount = 0
	s, err := NewSyntheticClusterSampler(cfg)
	if err != nil {
		t.Fatalf("NewSyntheticClusterSampler error: %v", err)
	}

	ep := s.Sample(rand.New(rand.NewSource(1)))
	if len(ep.Agents) != 0 || len(ep.Labels) != 0 {
		t.Fatalf("expected empty agents/labels, got %d/%d", len(ep.Agents), len(ep.Labels))
	}
	for i, w := range ep.Weights {
		if w != 0 {
			t.Fatalf("slot %d has weight %d, want 0", i, w)
		}
	}
}

// TestSeparationBoundary: a candidate at exactly the minimum distance is
// accepted; any closer and it is rejected.
func TestSeparationBoundary(t *testing.T) {
	centers := []Point{{X: 0, Y: 0}}
	if !separated(Point{X: 0.5, Y: 0}, centers, 0.5) {
		t.Fatalf("candidate at exactly the minimum distance rejected")
	}
	if separated(Point{X: 0.4999, Y: 0}, centers, 0.5) {
		t.Fatalf("candidate inside the minimum distance accepted")
	}
	if !separated(Point{X: 0.1, Y: 0.1}, nil, 0.5) {
		t.Fatalf("candidate with no accepted centers rejected")
	}
}

func TestSamplerConfigValidation(t *testing.T) {
	bad := []SamplerConfig{
		{AgentCount: -1, MinClusters: 1, MaxClusters: 2, Bounds: [2]float64{0, 1}, StdDevRange: [2]float64{0.01, 0.02}},
		{AgentCount: 10, MinClusters: 0, MaxClusters: 2, Bounds: [2]float64{0, 1}, StdDevRange: [2]float64{0.01, 0.02}},
		{AgentCount: 10, MinClusters: 3, MaxClusters: 2, Bounds: [2]float64{0, 1}, StdDevRange: [2]float64{0.01, 0.02}},
		{AgentCount: 10, MinClusters: 1, MaxClusters: 2, Bounds: [2]float64{1, 0}, StdDevRange: [2]float64{0.01, 0.02}},
		{AgentCount: 10, MinClusters: 1, MaxClusters: 2, Bounds: [2]float64{0, 1}, StdDevRange: [2]float64{0.05, 0.01}},
	}
	for i, cfg := range bad {
		if _, err := NewSyntheticClusterSampler(cfg); err == nil {
			t.Errorf("config %d: expected validation error, got nil", i)
		}
	}
}
