// Package config holds the shopindex runtime configuration.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/engine"
	pkgconfig "github.com/utafrali/shopindex/pkg/config"
	"github.com/utafrali/shopindex/pkg/database"
	"github.com/utafrali/shopindex/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "shopindex"

// Backend and transport selectors.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"

	TransportInProcess = "inprocess"
	TransportKafka     = "kafka"

	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config holds all configuration for the shopindex server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort          int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSOrigins       []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
	JWTSecret         string   `env:"JWT_SECRET"`

	// Record store
	RecordStore       string        `env:"RECORD_STORE" envDefault:"postgres"`
	SlowQueryLogAfter time.Duration `env:"POSTGRES_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	Postgres          database.PostgresConfig

	// Index store
	SearchEngine          string   `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchRefresh  string   `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	IndexPrefix           string   `env:"INDEX_PREFIX" envDefault:"shopindex_"`
	IndexNameAddress      string   `env:"INDEX_NAME_ADDRESS"`
	IndexNameCustomer     string   `env:"INDEX_NAME_CUSTOMER"`
	IndexNameProduct      string   `env:"INDEX_NAME_PRODUCT"`
	IndexNameCategory     string   `env:"INDEX_NAME_CATEGORY"`
	IndexNameWishList     string   `env:"INDEX_NAME_WISHLIST"`

	// Change transport
	ChangeTransport string   `env:"CHANGE_TRANSPORT" envDefault:"inprocess"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID    string   `env:"KAFKA_GROUP_ID" envDefault:"shopindex-sync"`

	// Synchronizer
	SyncWorkers        int           `env:"SYNC_WORKERS" envDefault:"4"`
	SyncQueueSize      int           `env:"SYNC_QUEUE_SIZE" envDefault:"1024"`
	SyncMaxRetries     uint          `env:"SYNC_MAX_RETRIES" envDefault:"5"`
	SyncApplyTimeout   time.Duration `env:"SYNC_APPLY_TIMEOUT" envDefault:"10s"`
	SyncPublishTimeout time.Duration `env:"SYNC_PUBLISH_TIMEOUT" envDefault:"250ms"`

	// Mass reindex
	ReindexBatchSize       int           `env:"REINDEX_BATCH_SIZE" envDefault:"500"`
	ReindexLoaderThreads   int           `env:"REINDEX_LOADER_THREADS" envDefault:"2"`
	ReindexTypesInParallel int           `env:"REINDEX_TYPES_IN_PARALLEL" envDefault:"1"`
	ReindexProgressEvery   int           `env:"REINDEX_PROGRESS_EVERY" envDefault:"1000"`
	ReindexQPSLimit        float64       `env:"REINDEX_QPS_LIMIT" envDefault:"0"`
	ReindexLock            string        `env:"REINDEX_LOCK" envDefault:"memory"`
	ReindexLockTTL         time.Duration `env:"REINDEX_LOCK_TTL" envDefault:"30s"`
	Redis                  database.RedisConfig

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(nil)
}

func load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnvironment(cfg, environ); err != nil {
		return nil, fmt.Errorf("load shopindex config: %w", err)
	}
	cfg.Tracing.ServiceName = ServiceName
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if !oneOf(c.RecordStore, StorePostgres, StoreMemory) {
		errs = append(errs, fmt.Errorf("unknown RECORD_STORE %q", c.RecordStore))
	}
	if !oneOf(c.SearchEngine, EngineElasticsearch, EngineMemory) {
		errs = append(errs, fmt.Errorf("unknown SEARCH_ENGINE %q", c.SearchEngine))
	}
	if !oneOf(c.ChangeTransport, TransportInProcess, TransportKafka) {
		errs = append(errs, fmt.Errorf("unknown CHANGE_TRANSPORT %q", c.ChangeTransport))
	}
	if c.ChangeTransport == TransportKafka && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required with the kafka transport"))
	}
	if !oneOf(c.ReindexLock, LockMemory, LockRedis) {
		errs = append(errs, fmt.Errorf("unknown REINDEX_LOCK %q", c.ReindexLock))
	}
	if !oneOf(c.LogFormat, "json", "text") {
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	for name, v := range map[string]int{
		"SYNC_WORKERS":              c.SyncWorkers,
		"SYNC_QUEUE_SIZE":           c.SyncQueueSize,
		"REINDEX_BATCH_SIZE":        c.ReindexBatchSize,
		"REINDEX_LOADER_THREADS":    c.ReindexLoaderThreads,
		"REINDEX_TYPES_IN_PARALLEL": c.ReindexTypesInParallel,
		"REINDEX_PROGRESS_EVERY":    c.ReindexProgressEvery,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.SyncMaxRetries < 1 {
		errs = append(errs, errors.New("SYNC_MAX_RETRIES must be positive"))
	}
	if c.SyncPublishTimeout < 0 {
		errs = append(errs, fmt.Errorf("SYNC_PUBLISH_TIMEOUT must not be negative, got %s", c.SyncPublishTimeout))
	}
	if c.ReindexQPSLimit < 0 {
		errs = append(errs, fmt.Errorf("REINDEX_QPS_LIMIT must not be negative, got %v", c.ReindexQPSLimit))
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		if _, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err != nil {
			errs = append(errs, fmt.Errorf("PPROF_ALLOWED_CIDRS: %w", err))
		}
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	return errors.Join(errs...)
}

// IndexNames returns the physical index name of every entity type.
func (c *Config) IndexNames() engine.IndexNames {
	names := engine.DefaultIndexNames(c.IndexPrefix)
	for t, override := range map[domain.EntityType]string{
		domain.TypeAddress:  c.IndexNameAddress,
		domain.TypeCustomer: c.IndexNameCustomer,
		domain.TypeProduct:  c.IndexNameProduct,
		domain.TypeCategory: c.IndexNameCategory,
		domain.TypeWishList: c.IndexNameWishList,
	} {
		if override != "" {
			names[t] = override
		}
	}
	return names
}

func oneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}
