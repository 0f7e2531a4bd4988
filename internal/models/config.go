// Package models - Service configuration and operational settings.
// This file defines the configuration tree for every coursehub component.
//
// Configuration Layout:
// - Server: HTTP listener, timeouts and CORS
// - Storage: course data backend and upload directory
// - Security: access tokens, bootstrap admin and request rate limiting
// - Redis: the shared store holding rate-limit buckets
// - Logging, Metrics and Observability: operational output
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Rate limit store constants
const (
	RateLimitStoreRedis  = "redis"
	RateLimitStoreMemory = "memory"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// StorageConfig selects the course data backend. UploadDir holds submitted
// files regardless of backend.
type StorageConfig struct {
	Type          string         `yaml:"type" json:"type"`
	Path          string         `yaml:"path" json:"path"`
	UploadDir     string         `yaml:"upload_dir" json:"upload_dir"`
	MaxUploadSize int64          `yaml:"max_upload_size" json:"max_upload_size"`
	Database      DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type SecurityConfig struct {
	JWTSecret      string               `yaml:"jwt_secret" json:"-"`
	TokenTTL       time.Duration        `yaml:"token_ttl" json:"token_ttl"`
	BcryptCost     int                  `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin" json:"bootstrap_admin"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" json:"rate_limit"`
}

// BootstrapAdminConfig describes an admin account created at startup when
// no user with that email exists.
type BootstrapAdminConfig struct {
	Name     string `yaml:"name" json:"name"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}

// Enabled reports whether a bootstrap admin is configured.
func (b BootstrapAdminConfig) Enabled() bool {
	return b.Email != "" && b.Password != ""
}

// RateLimitConfig configures the per-identity token bucket limiter.
type RateLimitConfig struct {
	Enabled               bool          `yaml:"enabled" json:"enabled"`
	Store                 string        `yaml:"store" json:"store"`
	Window                time.Duration `yaml:"window" json:"window"`
	AnonymousCapacity     int           `yaml:"anonymous_capacity" json:"anonymous_capacity"`
	AuthenticatedCapacity int           `yaml:"authenticated_capacity" json:"authenticated_capacity"`
	VerifyCredentials     bool          `yaml:"verify_credentials" json:"verify_credentials"`
	Atomic                bool          `yaml:"atomic" json:"atomic"`
	KeyPrefix             string        `yaml:"key_prefix" json:"key_prefix"`
	KeyTTL                time.Duration `yaml:"key_ttl" json:"key_ttl"`
	BreakerFailures       uint32        `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerTimeout        time.Duration `yaml:"breaker_timeout" json:"breaker_timeout"`
	// TrustedProxies holds addresses or CIDR ranges allowed to report the
	// client address in X-Forwarded-For. Empty means the socket peer is used.
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`
}

type RedisConfig struct {
	Host        string        `yaml:"host" json:"host"`
	Port        int           `yaml:"port" json:"port"`
	Password    string        `yaml:"password" json:"-"`
	DB          int           `yaml:"db" json:"db"`
	PoolSize    int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	IOTimeout   time.Duration `yaml:"io_timeout" json:"io_timeout"`
}

// Addr returns host:port.
func (rc RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", rc.Host, rc.Port)
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration that runs unconfigured against a
// local Redis and a JSON data file.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type:          StorageTypeJSON,
			Path:          "./data/coursehub.json",
			UploadDir:     "./data/uploads",
			MaxUploadSize: 10 << 20,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			JWTSecret:  "change-me-in-production",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 8,
			RateLimit: RateLimitConfig{
				Enabled:               true,
				Store:                 RateLimitStoreRedis,
				Window:                time.Minute,
				AnonymousCapacity:     10,
				AuthenticatedCapacity: 30,
				VerifyCredentials:     true,
				KeyPrefix:             "coursehub:ratelimit:",
				BreakerFailures:       5,
				BreakerTimeout:        10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			PoolSize:    10,
			DialTimeout: 2 * time.Second,
			IOTimeout:   500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "coursehub",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.Store == RateLimitStoreRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled && (sc.TLSCertFile == "" || sc.TLSKeyFile == "") {
		return errors.New("TLS cert and key files are required when TLS is enabled")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.UploadDir == "" {
		return errors.New("upload directory cannot be empty")
	}

	if stc.MaxUploadSize <= 0 {
		return errors.New("max upload size must be positive")
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.JWTSecret == "" {
		return errors.New("JWT secret cannot be empty")
	}

	if sec.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}

	if sec.BcryptCost < 4 || sec.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}

	if (sec.BootstrapAdmin.Email == "") != (sec.BootstrapAdmin.Password == "") {
		return errors.New("bootstrap admin needs both email and password")
	}

	if err := sec.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}

	if rl.Store != RateLimitStoreRedis && rl.Store != RateLimitStoreMemory {
		return fmt.Errorf("invalid store: %s", rl.Store)
	}

	if rl.Window < time.Millisecond {
		return errors.New("window must be at least 1ms")
	}

	if rl.AnonymousCapacity <= 0 || rl.AuthenticatedCapacity <= 0 {
		return errors.New("capacities must be positive")
	}

	if rl.AuthenticatedCapacity < rl.AnonymousCapacity {
		return errors.New("authenticated capacity must not be lower than anonymous capacity")
	}

	if rl.KeyTTL < 0 {
		return errors.New("key TTL cannot be negative")
	}

	// An entry that expires before it could refill comes back full.
	if rl.KeyTTL != 0 && rl.KeyTTL < rl.Window {
		return fmt.Errorf("key TTL %s must be zero or at least the window %s", rl.KeyTTL, rl.Window)
	}

	for _, proxy := range rl.TrustedProxies {
		if !validProxyEntry(proxy) {
			return fmt.Errorf("invalid trusted proxy: %q", proxy)
		}
	}

	if rl.BreakerTimeout < 0 {
		return errors.New("breaker timeout cannot be negative")
	}

	return nil
}

func validProxyEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

func (rc *RedisConfig) Validate() error {
	if rc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if rc.Port <= 0 || rc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if rc.DB < 0 {
		return errors.New("db cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !oneOf(lc.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !oneOf(lc.Format, "json", "text") {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !oneOf(lc.Output, "stdout", "stderr", "file") {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	if !oneOf(oc.Tracing.Exporter, "stdout", "otlp") {
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required for the otlp exporter")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
