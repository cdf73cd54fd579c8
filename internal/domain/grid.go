package domain

import (
	"fmt"
	"strings"
)

// TM35FIN is the proj4 definition of EPSG:3067 (ETRS89 / TM35FIN), the
// default target projection for Finnish radar products.
const TM35FIN = "+proj=utm +zone=35 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"

// GridConfig describes the square output grid shared by every cached raster
// and product of one run.
type GridConfig struct {
	Size       int    // pixels per side
	Resolution int    // metres per pixel
	EPSG       int    // target coordinate reference code
	Proj4      string // proj4 definition of EPSG
}

// DefaultGrid returns the 2048 px, 250 m TM35FIN grid.
func DefaultGrid() GridConfig {
	return GridConfig{Size: 2048, Resolution: 250, EPSG: 3067, Proj4: TM35FIN}
}

// Validate reports whether the configuration can describe a grid.
func (g GridConfig) Validate() error {
	if g.Size <= 0 {
		return fmt.Errorf("grid size must be positive, got %d", g.Size)
	}
	if g.Resolution <= 0 {
		return fmt.Errorf("grid resolution must be positive, got %d", g.Resolution)
	}
	if g.EPSG <= 0 {
		return fmt.Errorf("grid EPSG code must be positive, got %d", g.EPSG)
	}
	if strings.TrimSpace(g.Proj4) == "" {
		return fmt.Errorf("grid projection for EPSG:%d is not defined", g.EPSG)
	}
	return nil
}

// HalfExtent is the distance in metres from the grid centre to its edge.
func (g GridConfig) HalfExtent() float64 {
	return float64(g.Size) * float64(g.Resolution) / 2
}

// CellCenters returns Size cell-centre coordinates along one axis of a grid
// centred on center, in ascending order.
func (g GridConfig) CellCenters(center float64) []float64 {
	res := float64(g.Resolution)
	start := center - g.HalfExtent() + res/2
	out := make([]float64, g.Size)
	for i := range out {
		out[i] = start + float64(i)*res
	}
	return out
}

// Correction marks whether rates were derived from an attenuation-corrected
// reflectivity field. It is embedded in every file name so that corrected and
// uncorrected caches can share a directory.
type Correction string

const (
	Uncorrected          Correction = ""
	AttenuationCorrected Correction = "_c"
)

// CorrectionFor derives the correction marker from the reflectivity field name.
// ODIM names corrected moments with a trailing C (DBZHC, DBZVC).
func CorrectionFor(dbzField string) Correction {
	if strings.Contains(dbzField, "C") {
		return AttenuationCorrected
	}
	return Uncorrected
}
