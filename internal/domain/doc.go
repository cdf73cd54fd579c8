// Package domain models weather-radar precipitation data and the naming and
// time conventions of the daily maximum accumulation product.
//
// # Data Source
//
// Scans are ODIM HDF5 polar volumes (EUMETNET OPERA Data Information Model).
// Only the lowest elevation is used. The site is identified by the NOD entry
// of the root what/source attribute:
//
//	"WMO:02870,RAD:FI47,PLC:Utajärvi,NOD:fiuta"  →  site "fiuta"
//
// The scan time is the start time of the chosen dataset
// (datasetN/what/startdate + starttime, UTC).
//
// # Rate Conversion
//
// Reflectivity is converted to rain rate with a Z-R power law, Z = a·R^b,
// defaulting to a=223, b=1.53. Rates are in mm/h.
//
// # Cache Naming
//
//	{YYYYMMDDHHMM}{site}{size}px{resolution}m{corr}.nc
//	e.g. 202308210005fiuta2048px250m.nc
//
// The timestamp is the scan begin time truncated to the minute. corr is "_c"
// when the rates came from an attenuation-corrected reflectivity field
// (DBZHC) and empty otherwise. The name is a pure function of those fields,
// so re-running a batch never computes an entry twice. See [CacheKey].
//
// # Accumulation Window
//
// A window of W covers iwin native timesteps. The native step is the common
// gap of the series or, when gaps differ, the median gap. iwin is found by
// flooring every timestep to W (counted from the Unix epoch) and taking the
// fullest group, which must hold exactly W/step timesteps. See [WindowLength].
//
// Rates are summed over iwin timesteps and divided by the configured number
// of scans per hour (12 for 5-minute scans) to give millimetres.
//
// For target date D the rolling sums considered end within
// [D, D + 1 day - step]; their inputs start at D - W + step. See
// [SelectionBounds]. When two windows reach the same maximum, the earliest
// one wins.
//
// # Products
//
//	{site}{YYYYMMDD}max{window}{size}px{resolution}m{corr}.tif       accumulation, mm
//	{site}{YYYYMMDD}maxtime{window}{size}px{resolution}m{corr}.tif   minutes since earliest time of max
//
// Both are unsigned 16-bit with 65535 as fill value; the accumulation uses a
// scale factor of 0.01.
package domain
