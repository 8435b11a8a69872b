package datasets

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OperatorGaussian draws the sensing matrix entries from a standard normal.
// It is the only operator kind currently supported.
const OperatorGaussian = "gaussian"

// SensingOperator is a fixed random linear map from grid-occupancy space
// (s = gridRes*gridRes cells) to measurement space (m entries). It is drawn
// once per dataset and never mutated afterwards, so it is safe to share across
// concurrent readers.
type SensingOperator struct {
	m       int
	gridRes int
	scale   float64
	op      *mat.Dense
}

// NewSensingOperator draws an m x s matrix of independent standard-normal
// entries scaled by scale. A scale <= 0 selects the default 1/sqrt(m).
// m > s is allowed (no compression happens) but logged as a warning.
func NewSensingOperator(m, gridRes int, kind string, scale float64, rng *rand.Rand) (*SensingOperator, error) {
	if m < 1 {
		return nil, fmt.Errorf("measurement dim must be >= 1, got %d", m)
	}
	if gridRes < 1 {
		return nil, fmt.Errorf("grid resolution must be >= 1, got %d", gridRes)
	}
	if kind != OperatorGaussian {
		return nil, fmt.Errorf("unsupported operator kind %q", kind)
	}
	if scale <= 0 {
		scale = 1.0 / math.Sqrt(float64(m))
	}
	s := gridRes * gridRes
	if m > s {
		log.Printf("datasets: measurement dim %d exceeds grid cells %d; no compression occurs", m, s)
	}

	data := make([]float64, m*s)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return &SensingOperator{
		m:       m,
		gridRes: gridRes,
		scale:   scale,
		op:      mat.NewDense(m, s, data),
	}, nil
}

// MeasurementDim returns the length of the measurement vectors produced.
func (o *SensingOperator) MeasurementDim() int { return o.m }

// GridResolution returns the per-axis occupancy grid resolution.
func (o *SensingOperator) GridResolution() int { return o.gridRes }

// CellIndex maps a point in [0,1]^2 to its flat occupancy-grid cell index,
// flooring each scaled coordinate and clamping to the grid.
func (o *SensingOperator) CellIndex(p Point) int {
	col := int(math.Floor(float64(p.X) * float64(o.gridRes)))
	row := int(math.Floor(float64(p.Y) * float64(o.gridRes)))
	col = clampInt(col, 0, o.gridRes-1)
	row = clampInt(row, 0, o.gridRes-1)
	return row*o.gridRes + col
}

// Occupancy rasterizes the episode's agents into a dense occupancy-count
// vector of length gridRes*gridRes, normalized by 1/sqrt(agent count).
func (o *SensingOperator) Occupancy(ep *Episode) []float64 {
	s := o.gridRes * o.gridRes
	occ := make([]float64, s)
	n := len(ep.Agents)
	if n == 0 {
		return occ
	}
	for _, a := range ep.Agents {
		occ[o.CellIndex(a)]++
	}
	norm := 1.0 / math.Sqrt(float64(n))
	for i := range occ {
		occ[i] *= norm
	}
	return occ
}

// Project produces the m-length measurement for an episode. The computation is
// deterministic given the operator and episode; an empty episode projects to
// the all-zero measurement.
func (o *SensingOperator) Project(ep *Episode) []float32 {
	out := make([]float32, o.m)
	if len(ep.Agents) == 0 {
		return out
	}
	occ := mat.NewVecDense(o.gridRes*o.gridRes, o.Occupancy(ep))
	var y mat.VecDense
	y.MulVec(o.op, occ)
	for i := 0; i < o.m; i++ {
		out[i] = float32(y.AtVec(i))
	}
	return out
}
