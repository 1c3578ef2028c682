// Package config loads shardgate settings from the environment.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full process configuration. Every field has a default in
// its struct tag.
type Config struct {
	// ListenAddr like ":8080". ENV: SHARDGATE_LISTEN_ADDR
	ListenAddr string `env:"SHARDGATE_LISTEN_ADDR,default=:8080"`
	// LogLevel is a name (info, verbose, debug, trace) or a number. ENV: SHARDGATE_LOG_LEVEL
	LogLevel string `env:"SHARDGATE_LOG_LEVEL,default=info"`

	Session Session
	Monitor Monitor
	Caches  Caches
}

// Session configures admission control.
type Session struct {
	// Limit is the concurrent heavy operations per session. ENV: SESSION_CONCURRENCY_LIMIT
	Limit int `env:"SESSION_CONCURRENCY_LIMIT,default=2"`
	// RetryAfter is the hint sent with 429 responses. ENV: SESSION_RETRY_AFTER
	RetryAfter time.Duration `env:"SESSION_RETRY_AFTER,default=5s"`
	// ReapInterval is the time between stale-session sweeps. ENV: SESSION_REAPER_INTERVAL
	ReapInterval time.Duration `env:"SESSION_REAPER_INTERVAL,default=10m"`
	// MaxIdleAge is how long a session may stay untouched. ENV: SESSION_MAX_IDLE_AGE
	MaxIdleAge time.Duration `env:"SESSION_MAX_IDLE_AGE,default=1h"`
	// QueryParam carries the identity on follow-up requests. ENV: SESSION_QUERY_PARAM
	QueryParam string `env:"SESSION_QUERY_PARAM,default=session_id"`
}

// Monitor configures the cache health monitor.
type Monitor struct {
	Interval      time.Duration `env:"CACHE_MONITOR_INTERVAL,default=5m"`
	FullThreshold int           `env:"CACHE_MONITOR_FULL_THRESHOLD,default=3"`
}

// Tier sizes one class of cache.
type Tier struct {
	MaxSize int
	TTL     time.Duration
}

// Caches holds the three sizing tiers.
type Caches struct {
	// Tenant: small key space scoped to a tenant.
	TenantMaxSize int           `env:"CACHE_TENANT_MAX_SIZE,default=100"`
	TenantTTL     time.Duration `env:"CACHE_TENANT_TTL,default=1h"`
	// Composite: keys combining several identifiers.
	CompositeMaxSize int           `env:"CACHE_COMPOSITE_MAX_SIZE,default=10"`
	CompositeTTL     time.Duration `env:"CACHE_COMPOSITE_TTL,default=5m"`
	// Blob: a singleton that is expensive to rebuild.
	BlobMaxSize int           `env:"CACHE_BLOB_MAX_SIZE,default=2"`
	BlobTTL     time.Duration `env:"CACHE_BLOB_TTL,default=6h"`
}

func (c Caches) Tenant() Tier    { return Tier{MaxSize: c.TenantMaxSize, TTL: c.TenantTTL} }
func (c Caches) Composite() Tier { return Tier{MaxSize: c.CompositeMaxSize, TTL: c.CompositeTTL} }
func (c Caches) Blob() Tier      { return Tier{MaxSize: c.BlobMaxSize, TTL: c.BlobTTL} }

var queryParamRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Load reads the environment, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	// No variable set is fine: every field has a default.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("SHARDGATE_LISTEN_ADDR must not be empty"))
	}
	if c.Session.Limit < 1 {
		errs = append(errs, fmt.Errorf("SESSION_CONCURRENCY_LIMIT must be >= 1, got %d", c.Session.Limit))
	}
	if c.Session.RetryAfter <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_RETRY_AFTER must be positive, got %s", c.Session.RetryAfter))
	}
	if c.Session.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_REAPER_INTERVAL must be positive, got %s", c.Session.ReapInterval))
	}
	if c.Session.MaxIdleAge <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_IDLE_AGE must be positive, got %s", c.Session.MaxIdleAge))
	}
	if !queryParamRE.MatchString(c.Session.QueryParam) {
		errs = append(errs, fmt.Errorf("SESSION_QUERY_PARAM %q is not a valid parameter name", c.Session.QueryParam))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_MONITOR_INTERVAL must be positive, got %s", c.Monitor.Interval))
	}
	if c.Monitor.FullThreshold < 1 {
		errs = append(errs, fmt.Errorf("CACHE_MONITOR_FULL_THRESHOLD must be >= 1, got %d", c.Monitor.FullThreshold))
	}
	for name, t := range map[string]Tier{
		"TENANT":    c.Caches.Tenant(),
		"COMPOSITE": c.Caches.Composite(),
		"BLOB":      c.Caches.Blob(),
	} {
		if t.MaxSize < 1 {
			errs = append(errs, fmt.Errorf("CACHE_%s_MAX_SIZE must be >= 1, got %d", name, t.MaxSize))
		}
		if t.TTL <= 0 {
			errs = append(errs, fmt.Errorf("CACHE_%s_TTL must be positive, got %s", name, t.TTL))
		}
	}
	return errors.Join(errs...)
}
