package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultCacheDir, cfg.CacheDir)
	assert.Equal(t, ".", cfg.ResultsDir)
	assert.Empty(t, cfg.Site)
	assert.Equal(t, "dev", cfg.Version)
	assert.Equal(t, domain.DefaultGrid(), cfg.Grid)
	assert.Equal(t, 24*time.Hour, cfg.Window.Duration)
	assert.Equal(t, "1d", cfg.Window.Label())
	assert.Zero(t, cfg.ChunkSize)
	assert.False(t, cfg.IgnoreCache)
	assert.Equal(t, "DBZH", cfg.DBZField)
	assert.Equal(t, domain.Uncorrected, cfg.Correction())
	assert.Equal(t, 12, cfg.ScansPerHour)
	assert.Equal(t, 223.0, cfg.ZRA)
	assert.Equal(t, 1.53, cfg.ZRB)
	assert.False(t, cfg.IsolateScanErrors)
	assert.Equal(t, 8, cfg.OpenWorkers)
	assert.Equal(t, 1024, cfg.MaxOpenFiles)
	assert.Equal(t, "0 30 1 * * *", cfg.Schedule)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "precip-max-products", cfg.KafkaProductTopic)
	assert.Empty(t, cfg.MinioEndpoint)
	assert.Empty(t, cfg.PushgatewayURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("MAXPRECIP_CACHE_DIR", "/var/cache/maxprecip")
	t.Setenv("MAXPRECIP_RESULTS_DIR", "/data/products")
	t.Setenv("MAXPRECIP_SITE", "fikor")
	t.Setenv("MAXPRECIP_GRID_SIZE", "512")
	t.Setenv("MAXPRECIP_RESOLUTION", "1000")
	t.Setenv("MAXPRECIP_WINDOW", "3H")
	t.Setenv("MAXPRECIP_CHUNK_SIZE", "64")
	t.Setenv("MAXPRECIP_IGNORE_CACHE", "true")
	t.Setenv("MAXPRECIP_DBZ_FIELD", "DBZHC")
	t.Setenv("MAXPRECIP_SCANS_PER_HOUR", "4")
	t.Setenv("MAXPRECIP_ZR_A", "200")
	t.Setenv("MAXPRECIP_ZR_B", "1.6")
	t.Setenv("MAXPRECIP_ISOLATE_ERRORS", "1")
	t.Setenv("MAXPRECIP_OPEN_WORKERS", "2")
	t.Setenv("MAXPRECIP_MAX_OPEN_FILES", "64")
	t.Setenv("MAXPRECIP_SCAN_GLOB", "/data/{yyyy}/{mm}/{dd}/{date}*.h5")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/maxprecip", cfg.CacheDir)
	assert.Equal(t, "/data/products", cfg.ResultsDir)
	assert.Equal(t, "fikor", cfg.Site)
	assert.Equal(t, 512, cfg.Grid.Size)
	assert.Equal(t, 1000, cfg.Grid.Resolution)
	assert.Equal(t, 3*time.Hour, cfg.Window.Duration)
	assert.Equal(t, 64, cfg.ChunkSize)
	assert.True(t, cfg.IgnoreCache)
	assert.Equal(t, domain.AttenuationCorrected, cfg.Correction())
	assert.Equal(t, 4, cfg.ScansPerHour)
	assert.Equal(t, 200.0, cfg.ZRA)
	assert.Equal(t, 1.6, cfg.ZRB)
	assert.True(t, cfg.IsolateScanErrors)
	assert.Equal(t, 2, cfg.OpenWorkers)
	assert.Equal(t, 64, cfg.MaxOpenFiles)
	assert.Equal(t, "/data/{yyyy}/{mm}/{dd}/{date}*.h5", cfg.ScanGlob)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "minio:9000", cfg.MinioEndpoint)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"grid size not a number", map[string]string{"MAXPRECIP_GRID_SIZE": "big"}, "MAXPRECIP_GRID_SIZE"},
		{"negative resolution", map[string]string{"MAXPRECIP_RESOLUTION": "-250"}, "MAXPRECIP_RESOLUTION"},
		{"window too long", map[string]string{"MAXPRECIP_WINDOW": "2 D"}, "MAXPRECIP_WINDOW"},
		{"scans per hour", map[string]string{"MAXPRECIP_SCANS_PER_HOUR": "7"}, "MAXPRECIP_SCANS_PER_HOUR"},
		{"ignore cache", map[string]string{"MAXPRECIP_IGNORE_CACHE": "maybe"}, "MAXPRECIP_IGNORE_CACHE"},
		{"z-r", map[string]string{"MAXPRECIP_ZR_B": "0"}, "MAXPRECIP_ZR"},
		{"unknown projection", map[string]string{"MAXPRECIP_EPSG": "3035"}, "MAXPRECIP_PROJ4"},
		{"site with digits", map[string]string{"MAXPRECIP_SITE": "fi47"}, "MAXPRECIP_SITE"},
		{"minio without credentials", map[string]string{"MINIO_ENDPOINT": "minio:9000"}, "MINIO_ACCESS_KEY"},
		{"shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_OtherProjection(t *testing.T) {
	t.Setenv("MAXPRECIP_EPSG", "3035")
	t.Setenv("MAXPRECIP_PROJ4", "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +units=m +no_defs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3035, cfg.Grid.EPSG)
	assert.Contains(t, cfg.Grid.Proj4, "+proj=laea")
}
