package domain

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSite = "fiuta"

func TestCacheKey_Name(t *testing.T) {
	ts := time.Date(2023, 8, 21, 12, 5, 42, 0, time.UTC)
	grid := GridConfig{Size: 2048, Resolution: 250, EPSG: 3067, Proj4: TM35FIN}

	t.Run("uncorrected", func(t *testing.T) {
		key := NewCacheKey(ts, testSite, grid, Uncorrected)
		assert.Equal(t, "202308211205fiuta2048px250m.nc", key.Name(CacheExt))
	})

	t.Run("attenuation corrected", func(t *testing.T) {
		key := NewCacheKey(ts, testSite, grid, AttenuationCorrected)
		assert.Equal(t, "202308211205fiuta2048px250m_c.nc", key.Name(CacheExt))
	})

	t.Run("non-UTC input", func(t *testing.T) {
		helsinki := time.FixedZone("EEST", 3*3600)
		key := NewCacheKey(ts.In(helsinki), testSite, grid, Uncorrected)
		assert.Equal(t, "202308211205fiuta2048px250m.nc", key.Name(CacheExt))
	})

	t.Run("glob", func(t *testing.T) {
		key := NewCacheKey(ts, testSite, grid, AttenuationCorrected)
		assert.Equal(t, "{date}[0-9][0-9][0-9][0-9]fiuta2048px250m_c.nc", key.Glob(CacheExt))
	})
}

func TestCacheKey_GlobMatchesOnlyOwnSite(t *testing.T) {
	grid := GridConfig{Size: 2, Resolution: 250}
	ts := time.Date(2023, 8, 21, 1, 0, 0, 0, time.UTC)
	key := NewCacheKey(ts, "fiuta", grid, Uncorrected)
	pattern := strings.ReplaceAll(key.Glob(CacheExt), "{date}", "20230821")

	tests := []struct {
		name string
		want bool
	}{
		{"202308210100fiuta2px250m.nc", true},
		{"202308210100xfiuta2px250m.nc", false},
		{"202308210100fiuta2px250m_c.nc", false},
		{"202308210100fiuta20px250m.nc", false},
		{"202308220100fiuta2px250m.nc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := filepath.Match(pattern, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCacheKey_SameMinuteSameName(t *testing.T) {
	grid := DefaultGrid()
	a := NewCacheKey(time.Date(2023, 8, 21, 12, 5, 1, 0, time.UTC), testSite, grid, Uncorrected)
	b := NewCacheKey(time.Date(2023, 8, 21, 12, 5, 59, 0, time.UTC), testSite, grid, Uncorrected)
	assert.Equal(t, a.Name(CacheExt), b.Name(CacheExt))
}

func TestCacheKey_Uniqueness(t *testing.T) {
	base := time.Date(2023, 8, 21, 12, 5, 0, 0, time.UTC)
	grid := DefaultGrid()

	variants := map[string]CacheKey{
		"base":       NewCacheKey(base, testSite, grid, Uncorrected),
		"time":       NewCacheKey(base.Add(5*time.Minute), testSite, grid, Uncorrected),
		"site":       NewCacheKey(base, "fikor", grid, Uncorrected),
		"size":       NewCacheKey(base, testSite, GridConfig{Size: 1024, Resolution: 250}, Uncorrected),
		"resolution": NewCacheKey(base, testSite, GridConfig{Size: 2048, Resolution: 500}, Uncorrected),
		"correction": NewCacheKey(base, testSite, grid, AttenuationCorrected),
		"size/res":   NewCacheKey(base, testSite, GridConfig{Size: 204, Resolution: 8250}, Uncorrected),
	}

	seen := make(map[string]string)
	for label, key := range variants {
		name := key.Name(CacheExt)
		if other, dup := seen[name]; dup {
			t.Fatalf("%s and %s map to the same name %s", label, other, name)
		}
		seen[name] = label
	}
}

func TestParseCacheName(t *testing.T) {
	key := NewCacheKey(time.Date(2023, 8, 21, 23, 55, 0, 0, time.UTC), "fivih", GridConfig{Size: 512, Resolution: 1000}, AttenuationCorrected)

	parsed, err := ParseCacheName(key.Name(CacheExt))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseCacheName("not-a-cache-file.nc")
	require.Error(t, err)
}

func TestValidSiteID(t *testing.T) {
	assert.True(t, ValidSiteID("fiuta"))
	assert.False(t, ValidSiteID("FI47"))
	assert.False(t, ValidSiteID(""))
}

func TestCorrectionFor(t *testing.T) {
	assert.Equal(t, Uncorrected, CorrectionFor("DBZH"))
	assert.Equal(t, AttenuationCorrected, CorrectionFor("DBZHC"))
}
