package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coursehub/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// misplacedConfig mirrors keys operators commonly put in the wrong section.
type misplacedConfig struct {
	RateLimit interface{} `yaml:"rate_limit"`
	Redis     struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Server struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// warnMisplacedKeys logs a warning for each misplaced key found in the YAML
// data. The main decoder ignores them.
func warnMisplacedKeys(data []byte) {
	var m misplacedConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return
	}
	if m.RateLimit != nil {
		slog.Warn("Config key is ignored; rate limiting lives under security.rate_limit.", "config_key", "rate_limit")
	}
	if m.Redis.Addr != "" {
		slog.Warn("Config key is ignored; set redis.host and redis.port instead.", "config_key", "redis.addr")
	}
	if m.Server.JWTSecret != "" {
		slog.Warn("Config key is ignored; the signing secret lives under security.jwt_secret.", "config_key", "server.jwt_secret")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnMisplacedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// loadFromEnvironment loads configuration from environment variables.
// Legacy unprefixed names are read first so the COURSEHUB_ variants win.
func loadFromEnvironment(config *models.Config) {
	// Legacy deployment variables
	envInt("PORT", &config.Server.Port)
	envString("REDIS_HOST", &config.Redis.Host)
	envInt("REDIS_PORT", &config.Redis.Port)

	// Server configuration
	envInt("COURSEHUB_PORT", &config.Server.Port)
	envString("COURSEHUB_HOST", &config.Server.Host)
	envDuration("COURSEHUB_READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("COURSEHUB_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("COURSEHUB_IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("COURSEHUB_TLS_ENABLED", &config.Server.TLSEnabled)
	envString("COURSEHUB_TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("COURSEHUB_TLS_KEY_FILE", &config.Server.TLSKeyFile)
	envBool("COURSEHUB_CORS_ENABLED", &config.Server.CORS.Enabled)
	if origins := os.Getenv("COURSEHUB_CORS_ALLOWED_ORIGINS"); origins != "" {
		config.Server.CORS.AllowedOrigins = splitList(origins)
	}

	// Storage configuration
	envString("COURSEHUB_STORAGE_TYPE", &config.Storage.Type)
	envString("COURSEHUB_STORAGE_PATH", &config.Storage.Path)
	envString("COURSEHUB_UPLOAD_DIR", &config.Storage.UploadDir)
	if size := os.Getenv("COURSEHUB_MAX_UPLOAD_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			config.Storage.MaxUploadSize = n
		}
	}
	envString("COURSEHUB_DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("COURSEHUB_DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("COURSEHUB_DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)

	// Security configuration
	envString("COURSEHUB_JWT_SECRET", &config.Security.JWTSecret)
	envDuration("COURSEHUB_TOKEN_TTL", &config.Security.TokenTTL)
	envInt("COURSEHUB_BCRYPT_COST", &config.Security.BcryptCost)
	envString("COURSEHUB_ADMIN_NAME", &config.Security.BootstrapAdmin.Name)
	envString("COURSEHUB_ADMIN_EMAIL", &config.Security.BootstrapAdmin.Email)
	envString("COURSEHUB_ADMIN_PASSWORD", &config.Security.BootstrapAdmin.Password)

	// Rate limit configuration
	rl := &config.Security.RateLimit
	envBool("COURSEHUB_RATE_LIMIT_ENABLED", &rl.Enabled)
	envString("COURSEHUB_RATE_LIMIT_STORE", &rl.Store)
	envDuration("COURSEHUB_RATE_LIMIT_WINDOW", &rl.Window)
	envInt("COURSEHUB_RATE_LIMIT_ANONYMOUS", &rl.AnonymousCapacity)
	envInt("COURSEHUB_RATE_LIMIT_AUTHENTICATED", &rl.AuthenticatedCapacity)
	envBool("COURSEHUB_RATE_LIMIT_VERIFY_CREDENTIALS", &rl.VerifyCredentials)
	envBool("COURSEHUB_RATE_LIMIT_ATOMIC", &rl.Atomic)
	envString("COURSEHUB_RATE_LIMIT_KEY_PREFIX", &rl.KeyPrefix)
	envDuration("COURSEHUB_RATE_LIMIT_KEY_TTL", &rl.KeyTTL)
	if proxies := os.Getenv("COURSEHUB_RATE_LIMIT_TRUSTED_PROXIES"); proxies != "" {
		rl.TrustedProxies = splitList(proxies)
	}

	// Redis configuration
	envString("COURSEHUB_REDIS_HOST", &config.Redis.Host)
	envInt("COURSEHUB_REDIS_PORT", &config.Redis.Port)
	envString("COURSEHUB_REDIS_PASSWORD", &config.Redis.Password)
	envInt("COURSEHUB_REDIS_DB", &config.Redis.DB)
	envInt("COURSEHUB_REDIS_POOL_SIZE", &config.Redis.PoolSize)

	// Logging configuration
	envString("COURSEHUB_LOG_LEVEL", &config.Logging.Level)
	envString("COURSEHUB_LOG_FORMAT", &config.Logging.Format)
	envString("COURSEHUB_LOG_OUTPUT", &config.Logging.Output)
	envString("COURSEHUB_LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("COURSEHUB_METRICS_ENABLED", &config.Metrics.Enabled)
	envString("COURSEHUB_METRICS_PATH", &config.Metrics.Path)
	envInt("COURSEHUB_METRICS_PORT", &config.Metrics.Port)

	// Tracing configuration
	envString("COURSEHUB_SERVICE_NAME", &config.Observability.ServiceName)
	envBool("COURSEHUB_TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("COURSEHUB_TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("COURSEHUB_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if rate := os.Getenv("COURSEHUB_TRACING_SAMPLE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = f
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Security.JWTSecret = "replace-with-a-long-random-secret"
	config.Security.BootstrapAdmin = models.BootstrapAdminConfig{
		Name:     "Administrator",
		Email:    "admin@example.com",
		Password: "change-me",
	}

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
