package domain

import (
	"strings"
	"time"

	"github.com/ctessum/sparse"
)

// Moment names used throughout the pipeline.
const (
	DBZH = "DBZH"
	// LWE is the precipitation rate moment in mm/h produced by rate conversion.
	LWE = "lwe_precipitation_rate"
)

// Scan is one radar sweep read from an ODIM HDF5 volume: the lowest elevation
// of one site at one nominal time.
type Scan struct {
	Path      string
	SiteID    string
	BeginTime time.Time

	// Source is the raw what/source attribute, e.g. "WMO:02870,RAD:FI47,NOD:fiuta".
	Source string
	// Provenance is Source split into key/value pairs; nil when the scan had no source.
	Provenance map[string]string

	Latitude  float64 // degrees north
	Longitude float64 // degrees east
	Altitude  float64 // metres above sea level

	Sweep Sweep
}

// Sweep holds the polar geometry and moments of one elevation.
type Sweep struct {
	Elevation  float64   // degrees
	RangeStart float64   // metres to the centre of the first gate
	RangeStep  float64   // metres between gate centres
	Azimuths   []float64 // degrees clockwise from north, one per ray

	// Transition flags rays recorded while the antenna was moving between
	// elevations. Nil when the file does not report transitions.
	Transition []bool

	// Fields maps moment name to a (rays, gates) array in physical units with
	// NaN for masked gates.
	Fields map[string]*sparse.DenseArray
}

// NRays is the number of rays in the sweep.
func (s Sweep) NRays() int { return len(s.Azimuths) }

// GateRange returns the distance in metres to the centre of gate i.
func (s Sweep) GateRange(i int) float64 {
	return s.RangeStart + float64(i)*s.RangeStep
}

// ParseSource splits an ODIM source string ("WMO:02870,RAD:FI47,NOD:fiuta")
// into its identifiers. Items without a colon are ignored.
func ParseSource(source string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(source, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
