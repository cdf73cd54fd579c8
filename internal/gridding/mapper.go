package gridding

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// effectiveEarthRadius is the 4/3 earth radius used for standard refraction.
const effectiveEarthRadius = 6371000.0 * 4 / 3

// barnesFloor keeps weights positive far from the gate.
const barnesFloor = 1e-5

// Grid is one field mapped to a Cartesian grid at the lowest level.
type Grid struct {
	X    []float64 // projected column centres, ascending
	Y    []float64 // projected row centres, ascending (south to north)
	Time time.Time
	// Data is (len(Y), len(X)) with NaN where no gate contributed.
	Data *sparse.DenseArray
}

// Engine maps a polar field of a scan onto a Cartesian grid.
type Engine interface {
	Grid(scan *domain.Scan, field string, filter GateFilter, params Params) (*Grid, error)
}

// GateMapper grids by scattering every gate onto the grid points within its
// radius of influence and averaging with Barnes weights.
type GateMapper struct{}

// NewGateMapper returns a GateMapper.
func NewGateMapper() *GateMapper { return &GateMapper{} }

// Grid implements Engine.
func (m *GateMapper) Grid(scan *domain.Scan, field string, filter GateFilter, params Params) (*Grid, error) {
	if err := params.Grid.Validate(); err != nil {
		return nil, err
	}
	sweep := &scan.Sweep
	values, ok := sweep.Fields[field]
	if !ok {
		return nil, fmt.Errorf("sweep has no %s field", field)
	}
	if len(values.Shape) != 2 || values.Shape[0] != sweep.NRays() {
		return nil, fmt.Errorf("field %s has shape %v, want (%d, gates)", field, values.Shape, sweep.NRays())
	}

	n := params.Grid.Size
	res := float64(params.Grid.Resolution)
	xs, ys := params.XCenters(), params.YCenters()
	x0, y0 := xs[0]-params.CenterX, ys[0]-params.CenterY
	dAlt := scan.Altitude - params.OriginAltitude

	sum := make([]float64, n*n)
	wsum := make([]float64, n*n)

	sinEl, cosEl := math.Sincos(sweep.Elevation * math.Pi / 180)
	ngates := values.Shape[1]
	for ray := 0; ray < sweep.NRays(); ray++ {
		sinAz, cosAz := math.Sincos(sweep.Azimuths[ray] * math.Pi / 180)
		for gate := 0; gate < ngates; gate++ {
			if filter.Excluded(sweep, ray, gate) {
				continue
			}
			v := values.Get(ray, gate)
			if math.IsNaN(v) {
				continue
			}
			s, gz := gateGroundRange(sweep.GateRange(gate), sinEl, cosEl)
			gx, gy, gz := s*sinAz, s*cosAz, gz+dAlt

			roi := params.ROI(gz, gy, gx)
			roi2 := roi * roi
			dz2 := gz * gz
			if dz2 > roi2 {
				continue
			}
			ixMin := max(0, int(math.Ceil((gx-roi-x0)/res)))
			ixMax := min(n-1, int(math.Floor((gx+roi-x0)/res)))
			iyMin := max(0, int(math.Ceil((gy-roi-y0)/res)))
			iyMax := min(n-1, int(math.Floor((gy+roi-y0)/res)))
			for iy := iyMin; iy <= iyMax; iy++ {
				dy := y0 + float64(iy)*res - gy
				row := iy * n
				for ix := ixMin; ix <= ixMax; ix++ {
					dx := x0 + float64(ix)*res - gx
					d2 := dx*dx + dy*dy + dz2
					if d2 > roi2 {
						continue
					}
					w := math.Exp(-d2/(roi2/4)) + barnesFloor
					sum[row+ix] += w * v
					wsum[row+ix] += w
				}
			}
		}
	}

	data := sparse.ZerosDense(n, n)
	for k := range data.Elements {
		if wsum[k] > 0 {
			data.Elements[k] = sum[k] / wsum[k]
		} else {
			data.Elements[k] = math.NaN()
		}
	}
	return &Grid{X: xs, Y: ys, Time: scan.BeginTime, Data: data}, nil
}

// gateGroundRange returns the distance along the ground and the height above
// the antenna of a gate at slant range r.
func gateGroundRange(r, sinEl, cosEl float64) (s, z float64) {
	const R = effectiveEarthRadius
	z = math.Sqrt(r*r+R*R+2*r*R*sinEl) - R
	s = R * math.Asin(r*cosEl/(R+z))
	return s, z
}
