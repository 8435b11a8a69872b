package datasets

import (
	"fmt"
	"log"
	"math"
	"math/rand"
)

// Point is a 2D point in scene coordinates.
type Point struct {
	X float32
	Y float32
}

// Episode is one generated scene: the agent positions, the cluster each agent
// was drawn from, and the cluster metadata padded to MaxClusters slots.
// Mask marks which padded slots hold a real cluster; Weights holds per-cluster
// agent counts and sums to len(Agents) over the masked slots.
type Episode struct {
	Agents  []Point
	Labels  []int
	Centers []Point
	Weights []int
	Mask    []bool
}

// NumValid returns the number of active clusters in the episode.
func (e *Episode) NumValid() int {
	n := 0
	for _, v := range e.Mask {
		if v {
			n++
		}
	}
	return n
}

// SamplerConfig holds the knobs for synthetic scene generation.
type SamplerConfig struct {
	// AgentCount is the number of agents placed in every episode.
	AgentCount int

	// MinClusters and MaxClusters bound the per-episode cluster count; the
	// active count is drawn uniformly from [MinClusters, MaxClusters].
	// MaxClusters also fixes the padded slot count of Centers/Weights/Mask.
	MinClusters int
	MaxClusters int

	// MinDistance is the minimum pairwise Euclidean distance between any two
	// accepted cluster centers.
	MinDistance float64

	// Bounds is the [low, high] interval of the scene box on both axes.
	Bounds [2]float64

	// StdDevRange is the [low, high] interval the per-cluster Gaussian spread
	// is drawn from. Each cluster gets its own spread, chosen once.
	StdDevRange [2]float64
}

// SyntheticClusterSampler generates Episodes: non-overlapping cluster centers
// placed by rejection sampling, a multinomial split of the agent population
// across them, and per-agent coordinates drawn from isotropic per-cluster
// Gaussians.
type SyntheticClusterSampler struct {
	cfg SamplerConfig
}

// NewSyntheticClusterSampler validates the configuration and returns a sampler.
func NewSyntheticClusterSampler(cfg SamplerConfig) (*SyntheticClusterSampler, error) {
	if cfg.AgentCount < 0 {
		return nil, fmt.Errorf("agent count must be >= 0, got %d", cfg.AgentCount)
	}
	if cfg.MinClusters < 1 {
		return nil, fmt.Errorf("min clusters must be >= 1, got %d", cfg.MinClusters)
	}
	if cfg.MaxClusters < cfg.MinClusters {
		return nil, fmt.Errorf("max clusters %d < min clusters %d", cfg.MaxClusters, cfg.MinClusters)
	}
	if cfg.MinDistance < 0 {
		return nil, fmt.Errorf("min distance must be >= 0, got %v", cfg.MinDistance)
	}
	if cfg.Bounds[1] <= cfg.Bounds[0] {
		return nil, fmt.Errorf("invalid bounds [%v, %v]", cfg.Bounds[0], cfg.Bounds[1])
	}
	if cfg.StdDevRange[0] < 0 || cfg.StdDevRange[1] < cfg.StdDevRange[0] {
		return nil, fmt.Errorf("invalid std dev range [%v, %v]", cfg.StdDevRange[0], cfg.StdDevRange[1])
	}
	return &SyntheticClusterSampler{cfg: cfg}, nil
}

// Config returns the sampler configuration.
func (s *SyntheticClusterSampler) Config() SamplerConfig {
	return s.cfg
}

// Sample generates one Episode using the provided RNG. The RNG is not retained;
// callers that sample concurrently should pass one RNG per goroutine.
//
// Placement is best-effort: if the minimum-distance constraint cannot be
// satisfied within 100*K draws the active cluster count is reduced to however
// many centers were accepted, and the degradation is logged. Sample never
// returns an error for geometry reasons.
func (s *SyntheticClusterSampler) Sample(rng *rand.Rand) Episode {
	cfg := s.cfg

	k := cfg.MinClusters
	if cfg.MaxClusters > cfg.MinClusters {
		k += rng.Intn(cfg.MaxClusters - cfg.MinClusters + 1)
	}

	centers := s.placeCenters(rng, k)
	if len(centers) < k {
		log.Printf("datasets: placed %d of %d cluster centers (min distance %v); reducing active count",
			len(centers), k, cfg.MinDistance)
		k = len(centers)
	}

	ep := Episode{
		Centers: make([]Point, cfg.MaxClusters),
		Weights: make([]int, cfg.MaxClusters),
		Mask:    make([]bool, cfg.MaxClusters),
	}
	if k == 0 {
		ep.Agents = []Point{}
		ep.Labels = []int{}
		return ep
	}

	// Multinomial allocation with uniform cluster probabilities: count N iid
	// uniform category draws so the sizes sum exactly to AgentCount.
	counts := make([]int, k)
	for i := 0; i < cfg.AgentCount; i++ {
		counts[rng.Intn(k)]++
	}

	agents := make([]Point, 0, cfg.AgentCount)
	labels := make([]int, 0, cfg.AgentCount)
	for c := 0; c < k; c++ {
		ep.Centers[c] = centers[c]
		ep.Weights[c] = counts[c]
		ep.Mask[c] = true
		if counts[c] == 0 {
			continue
		}
		span := cfg.StdDevRange[1] - cfg.StdDevRange[0]
		sigma := cfg.StdDevRange[0] + rng.Float64()*span
		for i := 0; i < counts[c]; i++ {
			x := float64(centers[c].X) + rng.NormFloat64()*sigma
			y := float64(centers[c].Y) + rng.NormFloat64()*sigma
			agents = append(agents, Point{
				X: float32(clampFloat64(x, cfg.Bounds[0], cfg.Bounds[1])),
				Y: float32(clampFloat64(y, cfg.Bounds[0], cfg.Bounds[1])),
			})
			labels = append(labels, c)
		}
	}

	// One joint permutation so slice position carries no cluster information.
	perm := rng.Perm(len(agents))
	ep.Agents = make([]Point, len(agents))
	ep.Labels = make([]int, len(labels))
	for i, j := range perm {
		ep.Agents[i] = agents[j]
		ep.Labels[i] = labels[j]
	}
	return ep
}

// placeCenters rejection-samples up to k centers inside the scene bounds,
// accepting a draw only if it keeps MinDistance to every accepted center.
// The attempt budget is 100*k total draws.
func (s *SyntheticClusterSampler) placeCenters(rng *rand.Rand, k int) []Point {
	cfg := s.cfg
	span := cfg.Bounds[1] - cfg.Bounds[0]
	centers := make([]Point, 0, k)
	maxAttempts := 100 * k
	for attempt := 0; attempt < maxAttempts && len(centers) < k; attempt++ {
		cand := Point{
			X: float32(cfg.Bounds[0] + rng.Float64()*span),
			Y: float32(cfg.Bounds[0] + rng.Float64()*span),
		}
		if separated(cand, centers, cfg.MinDistance) {
			centers = append(centers, cand)
		}
	}
	return centers
}

// separated reports whether cand keeps at least minDist to every accepted
// center. A distance of exactly minDist is accepted.
func separated(cand Point, centers []Point, minDist float64) bool {
	for _, c := range centers {
		if euclidean(cand, c) < minDist {
			return false
		}
	}
	return true
}

func euclidean(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
