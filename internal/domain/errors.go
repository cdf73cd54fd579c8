package domain

import "errors"

var (
	// ErrMissingProvenance marks a scan without a what/source attribute. It is
	// logged and tolerated; the cached raster is written without provenance attributes.
	ErrMissingProvenance = errors.New("scan has no source metadata")

	// ErrMissingSiteID is returned when no site identifier can be derived from a scan.
	ErrMissingSiteID = errors.New("scan has no site identifier")

	// ErrMixedSites is returned when one batch contains scans from more than one radar.
	ErrMixedSites = errors.New("scans from more than one site in batch")

	// ErrNoScans is returned when a run has neither scans nor a configured site.
	ErrNoScans = errors.New("no scans to process")

	// ErrInvalidWindow is returned for unparseable or unsupported window lengths.
	ErrInvalidWindow = errors.New("invalid accumulation window")

	// ErrInconsistentTimestepGrouping is returned when the observed timestep grouping
	// does not yield a well-defined number of timesteps per window.
	ErrInconsistentTimestepGrouping = errors.New("inconsistent timestep grouping")

	// ErrScanIntervalMismatch is returned when the observed native step disagrees with
	// the configured scans-per-hour.
	ErrScanIntervalMismatch = errors.New("observed scan interval does not match configured scans per hour")

	// ErrInsufficientData is returned when the selected time range holds fewer
	// timesteps than one full window.
	ErrInsufficientData = errors.New("not enough timesteps for one full window")

	// ErrGridMismatch is returned when a cached raster does not match the grid configuration.
	ErrGridMismatch = errors.New("cached raster does not match grid configuration")
)
