package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// URL modes: where the current location is encoded in the page URL.
const (
	URLModeHash = "hash"
	URLModePath = "path"
)

// Location event sinks.
const (
	SinkNone  = "none"
	SinkKafka = "kafka"
	SinkNATS  = "nats"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Location synchronizer behaviour.
	URLMode           string
	URLBasePath       string
	ZoomLevel         float64
	AccuracyThreshold float64 // metres, inclusive
	TitleSuffix       string
	SessionTTL        time.Duration

	// Geocoding providers.
	ProviderTimeout    time.Duration
	CodecURL           string
	CodecTimeout       time.Duration
	NominatimEnabled   bool
	NominatimURL       string
	NominatimUserAgent string
	MapboxToken        string
	MapboxEnabled      bool
	MapboxTimeout      time.Duration
	GeocodeCacheSize   int

	// Location event publishing.
	LocationSink       string
	KafkaBrokers       []string
	LocationTopic      string
	NATSURL            string
	LocationSubject    string
	BatchSize          int
	BatchFlushInterval time.Duration
	QueueSize          int
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parseDuration("PROVIDER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	codecTimeout, err := parseDuration("CODEC_TIMEOUT", "2s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDuration("SESSION_TTL", "30m")
	if err != nil {
		return nil, err
	}

	zoomLevel, err := parseFloat("ZOOM_LEVEL", "17")
	if err != nil {
		return nil, err
	}
	accuracy, err := parseFloat("ACCURACY_THRESHOLD", "100")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     splitList(sharedcfg.EnvOrDefault("CORS_ORIGINS", "*")),

		URLMode:           strings.ToLower(sharedcfg.EnvOrDefault("URL_MODE", URLModeHash)),
		URLBasePath:       sharedcfg.EnvOrDefault("URL_BASE_PATH", "/"),
		ZoomLevel:         zoomLevel,
		AccuracyThreshold: accuracy,
		TitleSuffix:       os.Getenv("TITLE_SUFFIX"),
		SessionTTL:        sessionTTL,

		ProviderTimeout:    providerTimeout,
		CodecURL:           sharedcfg.EnvOrDefault("CODEC_URL", "http://localhost:8081"),
		CodecTimeout:       codecTimeout,
		NominatimEnabled:   sharedcfg.EnvOrDefault("NOMINATIM_ENABLED", "true") == "true",
		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "wordloc/1.0"),
		MapboxToken:        mapboxToken,
		MapboxEnabled:      mapboxEnabled,
		MapboxTimeout:      mapboxTimeout,
		GeocodeCacheSize:   parsePositiveInt("GEOCODE_CACHE_SIZE", 1000),

		LocationSink:       strings.ToLower(sharedcfg.EnvOrDefault("LOCATION_SINK", SinkNone)),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		LocationTopic:      sharedcfg.EnvOrDefault("LOCATION_TOPIC", "location-updates"),
		NATSURL:            sharedcfg.EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		LocationSubject:    sharedcfg.EnvOrDefault("LOCATION_SUBJECT", "wordloc.locations"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		QueueSize:          parsePositiveInt("LOCATION_QUEUE_SIZE", 1024),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.URLMode {
	case URLModeHash, URLModePath:
	default:
		return fmt.Errorf("invalid URL_MODE %q: want %q or %q", c.URLMode, URLModeHash, URLModePath)
	}
	if c.ZoomLevel < 0 || c.ZoomLevel > 22 {
		return errors.New("ZOOM_LEVEL must be between 0 and 22")
	}
	if c.AccuracyThreshold <= 0 {
		return errors.New("ACCURACY_THRESHOLD must be positive")
	}
	if c.CodecURL == "" {
		return errors.New("CODEC_URL is required")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	switch c.LocationSink {
	case SinkNone:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when LOCATION_SINK is kafka")
		}
		if c.LocationTopic == "" {
			return errors.New("LOCATION_TOPIC is required when LOCATION_SINK is kafka")
		}
	case SinkNATS:
		if c.NATSURL == "" {
			return errors.New("NATS_URL is required when LOCATION_SINK is nats")
		}
		if c.LocationSubject == "" {
			return errors.New("LOCATION_SUBJECT is required when LOCATION_SINK is nats")
		}
	default:
		return fmt.Errorf("invalid LOCATION_SINK %q", c.LocationSink)
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
