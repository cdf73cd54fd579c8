package gridding

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

const wgs84 = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// Params positions the output grid and controls the radius of influence of
// each gate.
type Params struct {
	Grid domain.GridConfig

	// CenterX and CenterY are the projected coordinates of the radar site,
	// which is also the centre of the grid.
	CenterX, CenterY float64
	// OriginAltitude is the height of the grid's z=0 level above sea level.
	OriginAltitude float64

	// HFactor scales the radius of influence in z, y and x.
	HFactor [3]float64
	// BeamWidth and BeamSpacing in degrees; the beam term of the radius is
	// distance·tan(BeamWidth·BeamSpacing).
	BeamWidth, BeamSpacing float64
	// MinRadius is the smallest radius of influence in metres.
	MinRadius float64
}

// ROI returns the dist-beam radius of influence in metres at a point given
// relative to the radar.
func (p Params) ROI(z, y, x float64) float64 {
	beam := math.Tan(p.BeamWidth * p.BeamSpacing * math.Pi / 180)
	roi := p.HFactor[0]*(z/20) + math.Hypot(p.HFactor[1]*y, p.HFactor[2]*x)*beam
	return math.Max(roi, p.MinRadius)
}

// XCenters returns the projected x coordinate of each grid column.
func (p Params) XCenters() []float64 { return p.Grid.CellCenters(p.CenterX) }

// YCenters returns the projected y coordinate of each grid row, south to north.
func (p Params) YCenters() []float64 { return p.Grid.CellCenters(p.CenterY) }

// Projector maps geographic site positions onto the target grid projection.
type Projector struct {
	trans proj.Transformer
}

// NewProjector parses the proj4 definition of the target projection.
func NewProjector(proj4 string) (*Projector, error) {
	src, err := proj.Parse(wgs84)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	dst, err := proj.Parse(proj4)
	if err != nil {
		return nil, fmt.Errorf("parse target projection %q: %w", proj4, err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("create projection transform: %w", err)
	}
	return &Projector{trans: trans}, nil
}

// Project returns the projected coordinates of a longitude/latitude pair in degrees.
func (p *Projector) Project(lon, lat float64) (x, y float64, err error) {
	x, y, err = p.trans(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("project lon=%g lat=%g: %w", lon, lat, err)
	}
	return x, y, nil
}

// Params returns gridding parameters for scan: the grid centred on the
// projected site, z=0 at the site altitude, h_factor (50, 1, 1), a 1.5° beam
// and a minimum radius of 330 m.
func (p *Projector) Params(scan *domain.Scan, grid domain.GridConfig) (Params, error) {
	x, y, err := p.Project(scan.Longitude, scan.Latitude)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Grid:           grid,
		CenterX:        x,
		CenterY:        y,
		OriginAltitude: scan.Altitude,
		HFactor:        [3]float64{50, 1, 1},
		BeamWidth:      1.5,
		BeamSpacing:    1.0,
		MinRadius:      330,
	}, nil
}
