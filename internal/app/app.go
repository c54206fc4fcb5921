// Package app assembles the service's components from configuration. It is
// shared by the server and the lookup CLI so both resolve queries the same way.
package app

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wordloc/internal/adapter/kafka"
	"github.com/couchcryptid/wordloc/internal/adapter/mapbox"
	natsadapter "github.com/couchcryptid/wordloc/internal/adapter/nats"
	"github.com/couchcryptid/wordloc/internal/adapter/nominatim"
	"github.com/couchcryptid/wordloc/internal/adapter/wordcodec"
	"github.com/couchcryptid/wordloc/internal/config"
	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/geocode"
	"github.com/couchcryptid/wordloc/internal/locate"
	"github.com/couchcryptid/wordloc/internal/observability"
	"github.com/couchcryptid/wordloc/internal/pipeline"
)

// BuildProviders returns the enabled providers in registration order: the
// word-code provider, the coordinate parser (falling back to Nominatim when
// enabled), then Mapbox when enabled.
func BuildProviders(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) []domain.Geocoder {
	codec := wordcodec.NewClient(cfg.CodecURL, cfg.CodecTimeout, metrics)
	providers := []domain.Geocoder{geocode.NewWordCode(codec, logger)}

	var fallback domain.Geocoder
	if cfg.NominatimEnabled {
		client := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.ProviderTimeout, metrics)
		fallback = geocode.NewCachedProvider(client, cfg.GeocodeCacheSize, metrics)
		logger.Info("nominatim geocoding enabled", "url", cfg.NominatimURL)
	}
	providers = append(providers, geocode.NewCoordinates(fallback))

	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		providers = append(providers, geocode.NewCachedProvider(client, cfg.GeocodeCacheSize, metrics))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	return providers
}

// BuildAggregator wraps BuildProviders in an Aggregator.
func BuildAggregator(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *geocode.Aggregator {
	return geocode.NewAggregator(BuildProviders(cfg, logger, metrics), cfg.ProviderTimeout, logger, metrics)
}

// SessionOptions maps configuration onto synchronizer options.
func SessionOptions(cfg *config.Config) locate.Options {
	return locate.Options{
		URLFormat:         locate.URLFormat{Mode: cfg.URLMode, BasePath: cfg.URLBasePath},
		Zoom:              cfg.ZoomLevel,
		AccuracyThreshold: cfg.AccuracyThreshold,
		TitleSuffix:       cfg.TitleSuffix,
	}
}

// Loader is a location event sink that must be closed on shutdown.
type Loader interface {
	pipeline.BatchLoader
	Close() error
}

// NewLoader connects the sink named by LOCATION_SINK. It returns nil for
// the "none" sink.
func NewLoader(cfg *config.Config, logger *slog.Logger) (Loader, error) {
	switch cfg.LocationSink {
	case config.SinkKafka:
		logger.Info("publishing location events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.LocationTopic)
		return kafka.NewWriter(cfg, logger), nil
	case config.SinkNATS:
		nc, err := natsadapter.Connect(cfg.NATSURL, cfg.ShutdownTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		logger.Info("publishing location events to nats", "url", cfg.NATSURL, "subject", cfg.LocationSubject)
		return natsadapter.NewPublisher(nc, cfg.LocationSubject, logger), nil
	case config.SinkNone:
		logger.Info("location event publishing disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown location sink %q", cfg.LocationSink)
	}
}
