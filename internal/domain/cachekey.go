package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// CacheExt is the extension of cached rate rasters.
	CacheExt = ".nc"
	// TIFExt is the extension of every raster product.
	TIFExt = ".tif"

	keyTimeLayout = "200601021504"
	// DateLayout formats calendar dates in file names and glob templates.
	DateLayout = "20060102"
)

// cacheNameRe inverts CacheKey.Name: timestamp, site, size, resolution, correction.
var cacheNameRe = regexp.MustCompile(`^(\d{12})([A-Za-z]+)(\d+)px(\d+)m(_c)?\.[A-Za-z0-9]+$`)

// siteIDRe restricts site identifiers to letters so the digits of the grid size
// that follow in a file name can never be read as part of the site.
var siteIDRe = regexp.MustCompile(`^[A-Za-z]+$`)

// ValidSiteID reports whether id can be embedded in cache and product names.
// ODIM node codes (NOD) such as "fikor" always qualify.
func ValidSiteID(id string) bool {
	return siteIDRe.MatchString(id)
}

// CacheKey identifies one cached rate raster. Two scans with the same site,
// minute, grid and correction share a key, which makes the cache compute each
// entry at most once.
type CacheKey struct {
	Time       time.Time
	SiteID     string
	Size       int
	Resolution int
	Correction Correction
}

// NewCacheKey builds the key of a scan beginning at t. The minute is
// truncated, so scans beginning at 12:04:40 and 12:05:10 get separate entries
// (1204 and 1205); the loader rounds frame times to the nearest minute and
// keeps the first of any duplicates.
func NewCacheKey(t time.Time, siteID string, grid GridConfig, corr Correction) CacheKey {
	return CacheKey{
		Time:       t.UTC().Truncate(time.Minute),
		SiteID:     siteID,
		Size:       grid.Size,
		Resolution: grid.Resolution,
		Correction: corr,
	}
}

// Name returns the file name of the entry: {YYYYMMDDHHMM}{site}{size}px{res}m{corr}{ext}.
func (k CacheKey) Name(ext string) string {
	return k.Time.UTC().Format(keyTimeLayout) + k.suffix(ext)
}

// Glob returns a file name template matching every entry of the same site and
// configuration on one day. The time of day is matched as exactly four digits,
// so a site whose id ends with another's (xfiuta, fiuta) is not picked up. The
// {date} variable is filled in by the lookback selector.
func (k CacheKey) Glob(ext string) string {
	return "{date}[0-9][0-9][0-9][0-9]" + k.suffix(ext)
}

func (k CacheKey) suffix(ext string) string {
	return fmt.Sprintf("%s%dpx%dm%s%s", k.SiteID, k.Size, k.Resolution, k.Correction, ext)
}

// ParseCacheName parses a name produced by CacheKey.Name.
func ParseCacheName(name string) (CacheKey, error) {
	m := cacheNameRe.FindStringSubmatch(name)
	if m == nil {
		return CacheKey{}, fmt.Errorf("parse cache name %q: unrecognised format", name)
	}
	t, err := time.Parse(keyTimeLayout, m[1])
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse cache name %q: %w", name, err)
	}
	size, _ := strconv.Atoi(m[3])
	res, _ := strconv.Atoi(m[4])
	return CacheKey{
		Time:       t.UTC(),
		SiteID:     m[2],
		Size:       size,
		Resolution: res,
		Correction: Correction(m[5]),
	}, nil
}
