// Package app wires the adapters into a pipeline for the commands.
package app

import (
	"errors"
	"log/slog"

	"github.com/couchcryptid/storm-data-maxprecip/internal/adapter/geotiff"
	kafkaadapter "github.com/couchcryptid/storm-data-maxprecip/internal/adapter/kafka"
	minioadapter "github.com/couchcryptid/storm-data-maxprecip/internal/adapter/minio"
	"github.com/couchcryptid/storm-data-maxprecip/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-data-maxprecip/internal/adapter/odim"
	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/gridding"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/pipeline"
)

// App is a wired pipeline and the resources it holds open.
type App struct {
	Pipeline  *pipeline.Pipeline
	store     *netcdf.Store
	publisher *kafkaadapter.Publisher
}

// New builds the pipeline for cfg. Kafka notifications are enabled when
// brokers are configured and uploads when a MinIO endpoint is.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{store: netcdf.NewStore(cfg.OpenWorkers, cfg.MaxOpenFiles)}
	deps := pipeline.Deps{
		Reader:  odim.NewReader(cfg.DBZField),
		Engine:  gridding.NewGateMapper(),
		Store:   a.store,
		Rasters: geotiff.NewWriter(),
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = kafkaadapter.NewPublisher(cfg, logger)
		deps.Publisher = a.publisher
		logger.Info("product notifications enabled", "topic", cfg.KafkaProductTopic)
	}
	if cfg.MinioEndpoint != "" {
		up, err := minioadapter.NewUploader(cfg, logger)
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
		deps.Uploader = up
		logger.Info("product upload enabled", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	}

	p, err := pipeline.New(cfg, deps, logger, metrics)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Pipeline = p
	return a, nil
}

// Close releases open cache files and the Kafka writer.
func (a *App) Close() error {
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
