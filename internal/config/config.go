package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// DefaultCacheDir is where cached rate rasters are kept unless configured.
const DefaultCacheDir = "/tmp/maksicache"

// Config holds all settings, populated from environment variables. The
// one-shot command overrides some of them with flags.
type Config struct {
	CacheDir    string
	ResultsDir  string
	Site        string // reduce an existing cache when a run has no scans
	Grid        domain.GridConfig
	Window      domain.Window
	ChunkSize   int // 0 selects a size from the grid
	IgnoreCache bool
	DBZField    string

	ScansPerHour int
	ZRA, ZRB     float64

	IsolateScanErrors bool
	OpenWorkers       int
	MaxOpenFiles      int

	// Scheduled runs.
	ScanGlob string
	Schedule string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Product notifications; disabled when no brokers are set.
	KafkaBrokers      []string
	KafkaProductTopic string

	// Product upload; disabled when no endpoint is set.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	PushgatewayURL string

	// Version is recorded in the history attribute of cache files. Set by the
	// commands, not the environment.
	Version string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CacheDir:          sharedcfg.EnvOrDefault("MAXPRECIP_CACHE_DIR", DefaultCacheDir),
		ResultsDir:        sharedcfg.EnvOrDefault("MAXPRECIP_RESULTS_DIR", "."),
		Site:              os.Getenv("MAXPRECIP_SITE"),
		DBZField:          sharedcfg.EnvOrDefault("MAXPRECIP_DBZ_FIELD", domain.DBZH),
		ScanGlob:          os.Getenv("MAXPRECIP_SCAN_GLOB"),
		Schedule:          sharedcfg.EnvOrDefault("MAXPRECIP_SCHEDULE", "0 30 1 * * *"),
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaProductTopic: sharedcfg.EnvOrDefault("KAFKA_PRODUCT_TOPIC", "precip-max-products"),
		MinioEndpoint:     os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       sharedcfg.EnvOrDefault("MINIO_BUCKET", "precip-max"),
		PushgatewayURL:    os.Getenv("PUSHGATEWAY_URL"),
		Version:           "dev",
	}

	grid := domain.DefaultGrid()
	if grid.Size, err = envInt("MAXPRECIP_GRID_SIZE", grid.Size); err != nil {
		return nil, err
	}
	if grid.Resolution, err = envInt("MAXPRECIP_RESOLUTION", grid.Resolution); err != nil {
		return nil, err
	}
	if grid.EPSG, err = envInt("MAXPRECIP_EPSG", grid.EPSG); err != nil {
		return nil, err
	}
	grid.Proj4 = os.Getenv("MAXPRECIP_PROJ4")
	if grid.Proj4 == "" && grid.EPSG == 3067 {
		grid.Proj4 = domain.TM35FIN
	}
	cfg.Grid = grid

	if cfg.Window, err = domain.ParseWindow(sharedcfg.EnvOrDefault("MAXPRECIP_WINDOW", "1 D")); err != nil {
		return nil, fmt.Errorf("invalid MAXPRECIP_WINDOW: %w", err)
	}
	if cfg.ChunkSize, err = envInt("MAXPRECIP_CHUNK_SIZE", 0); err != nil {
		return nil, err
	}
	if cfg.IgnoreCache, err = envBool("MAXPRECIP_IGNORE_CACHE", false); err != nil {
		return nil, err
	}
	if cfg.ScansPerHour, err = envInt("MAXPRECIP_SCANS_PER_HOUR", 12); err != nil {
		return nil, err
	}
	if cfg.ZRA, err = envFloat("MAXPRECIP_ZR_A", 223); err != nil {
		return nil, err
	}
	if cfg.ZRB, err = envFloat("MAXPRECIP_ZR_B", 1.53); err != nil {
		return nil, err
	}
	if cfg.IsolateScanErrors, err = envBool("MAXPRECIP_ISOLATE_ERRORS", false); err != nil {
		return nil, err
	}
	if cfg.OpenWorkers, err = envInt("MAXPRECIP_OPEN_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.MaxOpenFiles, err = envInt("MAXPRECIP_MAX_OPEN_FILES", 1024); err != nil {
		return nil, err
	}
	if cfg.MinioUseSSL, err = envBool("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that flags may have changed after Load.
func (c *Config) Validate() error {
	if c.Grid.Size <= 0 {
		return errors.New("invalid MAXPRECIP_GRID_SIZE: must be positive")
	}
	if c.Grid.Resolution <= 0 {
		return errors.New("invalid MAXPRECIP_RESOLUTION: must be positive")
	}
	if strings.TrimSpace(c.Grid.Proj4) == "" {
		return fmt.Errorf("MAXPRECIP_PROJ4 is required for EPSG:%d", c.Grid.EPSG)
	}
	if c.ChunkSize < 0 {
		return errors.New("invalid MAXPRECIP_CHUNK_SIZE: must not be negative")
	}
	if c.ScansPerHour <= 0 || 60%c.ScansPerHour != 0 {
		return errors.New("invalid MAXPRECIP_SCANS_PER_HOUR: must divide 60")
	}
	if c.ZRA <= 0 || c.ZRB <= 0 {
		return errors.New("invalid MAXPRECIP_ZR_A/MAXPRECIP_ZR_B: must be positive")
	}
	if c.OpenWorkers <= 0 {
		return errors.New("invalid MAXPRECIP_OPEN_WORKERS: must be positive")
	}
	if c.MaxOpenFiles <= 0 {
		return errors.New("invalid MAXPRECIP_MAX_OPEN_FILES: must be positive")
	}
	if c.CacheDir == "" {
		return errors.New("MAXPRECIP_CACHE_DIR is required")
	}
	if c.Site != "" && !domain.ValidSiteID(c.Site) {
		return fmt.Errorf("invalid MAXPRECIP_SITE: %q must be letters only", c.Site)
	}
	if c.DBZField == "" {
		return errors.New("MAXPRECIP_DBZ_FIELD is required")
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return errors.New("MINIO_ENDPOINT is set but MINIO_ACCESS_KEY or MINIO_SECRET_KEY is not")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaProductTopic == "" {
		return errors.New("KAFKA_PRODUCT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Correction is the cache and product name marker for the configured reflectivity field.
func (c *Config) Correction() domain.Correction {
	return domain.CorrectionFor(c.DBZField)
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, s)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, s)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, s)
	}
	return v, nil
}
