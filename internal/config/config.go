// Package config loads and validates the edge server configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
	"github.com/hasancaglar07/usercomments-edge/pkg/ratelimit"
)

// Config is the full edge server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `validate:"required"`

	// Origin is the public base URL the purge planner enumerates against.
	Origin string `validate:"required,url"`

	// RedisAddr is the cache store address.
	RedisAddr string `validate:"required"`

	// PostgresDSN is the data layer connection string.
	PostgresDSN string `validate:"required"`

	// Languages are supported language codes; DefaultLanguage must be one
	// of them and is additionally served by untagged legacy URLs.
	Languages       []string `validate:"min=1,dive,required"`
	DefaultLanguage string   `validate:"required"`

	// Sorts are supported listing sort orders.
	Sorts []string `validate:"min=1,dive,required"`

	// FeedSizes are the limit variants of the latest/popular feeds.
	FeedSizes []int `validate:"min=1,dive,gt=0"`

	// TTLs per resource class.
	TTLPolicy edgecache.TTLPolicy

	// HotCacheTTL sizes the in-process hot layer; zero disables it.
	HotCacheTTL time.Duration

	// VoteRule and CommentRule are the write-route admission rules.
	VoteRule    ratelimit.Rule
	CommentRule ratelimit.Rule

	// BucketSweepThreshold is the bucket table size above which idle buckets
	// are swept.
	BucketSweepThreshold int `validate:"gt=0"`

	// PurgeConcurrency bounds parallel purge calls per batch.
	PurgeConcurrency int `validate:"gt=0"`

	// PurgeSecret guards the internal purge endpoint; empty disables it.
	PurgeSecret string

	// LogLevel and LogPretty configure zerolog.
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogPretty bool
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		Origin:          getEnv("PUBLIC_ORIGIN", "http://localhost:8080"),
		RedisAddr:       getEnv("REDIS_URL", "localhost:6379"),
		PostgresDSN:     getEnv("DATABASE_URL", "postgres://localhost:5432/usercomments"),
		Languages:       splitEnv("LANGUAGES", "de,en,es,fr,tr"),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		Sorts:           splitEnv("SORT_ORDERS", "newest,popular,rating"),
		TTLPolicy: edgecache.TTLPolicy{
			Taxonomy:  getDurationEnv("TTL_TAXONOMY", 24*time.Hour),
			Detail:    getDurationEnv("TTL_DETAIL", time.Hour),
			Listing:   getDurationEnv("TTL_LISTING", 5*time.Minute),
			Aggregate: getDurationEnv("TTL_AGGREGATE", 10*time.Minute),
		},
		HotCacheTTL: getDurationEnv("HOT_CACHE_TTL", 30*time.Second),
		VoteRule: ratelimit.Rule{
			Capacity: getIntEnv("RATE_VOTE_CAPACITY", 60),
			Window:   getDurationEnv("RATE_VOTE_WINDOW", time.Minute),
		},
		CommentRule: ratelimit.Rule{
			Capacity: getIntEnv("RATE_COMMENT_CAPACITY", 10),
			Window:   getDurationEnv("RATE_COMMENT_WINDOW", time.Minute),
		},
		BucketSweepThreshold: getIntEnv("RATE_BUCKET_SWEEP_THRESHOLD", 10000),
		PurgeConcurrency:     getIntEnv("PURGE_CONCURRENCY", 8),
		PurgeSecret:          os.Getenv("PURGE_SECRET"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnv("LOG_PRETTY", "false") == "true",
	}

	for _, size := range splitEnv("FEED_SIZES", "5,10,20") {
		n, err := strconv.Atoi(size)
		if err != nil {
			return Config{}, fmt.Errorf("parse FEED_SIZES entry %q: %w", size, err)
		}
		cfg.FeedSizes = append(cfg.FeedSizes, n)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints plus the cross-field rule that the
// default language is among the supported ones.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	for _, lang := range c.Languages {
		if lang == c.DefaultLanguage {
			return nil
		}
	}
	return fmt.Errorf("default language %q is not in LANGUAGES", c.DefaultLanguage)
}

// Site builds the purge planner's site description.
func (c Config) Site() purge.Site {
	return purge.Site{
		Origin:          c.Origin,
		Languages:       c.Languages,
		DefaultLanguage: c.DefaultLanguage,
		Sorts:           c.Sorts,
		FeedSizes:       c.FeedSizes,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnv(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
