package domain

import (
	"time"

	"github.com/ctessum/sparse"
)

// RateRaster is one gridded precipitation rate timestep as stored in the cache.
type RateRaster struct {
	Time time.Time
	X    []float64 // projected column centres, ascending
	Y    []float64 // projected row centres, ascending
	// Rate is (len(Y), len(X)) in mm/h.
	Rate *sparse.DenseArray
	EPSG int
	// Attrs are the provenance attributes of the scan plus history.
	Attrs map[string]string
}
