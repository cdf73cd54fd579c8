package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ProductNames returns the file names of the accumulation and time-of-max
// rasters for one site, day and configuration.
func ProductNames(siteID string, date time.Time, w Window, grid GridConfig, corr Correction) (accum, maxTime string) {
	stamp := date.UTC().Format(DateLayout)
	tail := fmt.Sprintf("%s%dpx%dm%s%s", w.Label(), grid.Size, grid.Resolution, corr, TIFExt)
	return siteID + stamp + "max" + tail, siteID + stamp + "maxtime" + tail
}

// ProductEvent announces a finished daily maximum product.
type ProductEvent struct {
	ID              string    `json:"id"`
	SiteID          string    `json:"site_id"`
	Date            string    `json:"date"`
	Window          string    `json:"window"`
	GridSize        int       `json:"grid_size"`
	Resolution      int       `json:"resolution"`
	EPSG            int       `json:"epsg"`
	Corrected       bool      `json:"corrected"`
	AccumFile       string    `json:"accum_file"`
	TimeFile        string    `json:"time_file"`
	MaxAccumulation float64   `json:"max_accumulation_mm"`
	Timesteps       int       `json:"timesteps"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// NewProductEvent fills the identifying fields of a product event. The ID is
// deterministic so a re-run of the same day and configuration produces the
// same key downstream.
func NewProductEvent(siteID string, date time.Time, w Window, grid GridConfig, corr Correction) ProductEvent {
	day := date.UTC().Format(DateLayout)
	return ProductEvent{
		ID:         generateID(siteID, day, w.Label(), grid, corr),
		SiteID:     siteID,
		Date:       day,
		Window:     w.Label(),
		GridSize:   grid.Size,
		Resolution: grid.Resolution,
		EPSG:       grid.EPSG,
		Corrected:  corr == AttenuationCorrected,
	}
}

func generateID(siteID, day, window string, grid GridConfig, corr Correction) string {
	input := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%s", siteID, day, window, grid.Size, grid.Resolution, grid.EPSG, corr)
	hash := sha256.Sum256([]byte(input))
	return siteID + "-" + hex.EncodeToString(hash[:8])
}

// RunStatus summarises one scheduled run.
type RunStatus struct {
	Date       string        `json:"date,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Running    bool          `json:"running"`
	Error      string        `json:"error,omitempty"`
	Product    *ProductEvent `json:"product,omitempty"`
}
