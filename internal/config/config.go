package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Logger   LoggerConfig
	Security SecurityConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DataConfig struct {
	// Source is a local path or an s3://bucket/key URI.
	Source        string
	CacheTTL      time.Duration
	SnapshotDir   string
	LoadTimeout   time.Duration
	ParseWorkers  int
	TopProducts   int
	SampleDefault int
	SampleMin     int
	SampleMax     int
}

type CacheConfig struct {
	RedisURL        string
	ReportTTL       time.Duration
	ReportCacheSize int
	CleanupInterval time.Duration
}

type StorageConfig struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory are applied first when the file exists; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Data: DataConfig{
			Source:        getEnvString("DATA_SOURCE", "ecommerce_data.zip"),
			CacheTTL:      getEnvDuration("DATA_CACHE_TTL", time.Hour),
			SnapshotDir:   getEnvString("DATA_SNAPSHOT_DIR", ".cache"),
			LoadTimeout:   getEnvDuration("DATA_LOAD_TIMEOUT", 2*time.Minute),
			ParseWorkers:  getEnvInt("DATA_PARSE_WORKERS", 8),
			TopProducts:   getEnvInt("DATA_TOP_PRODUCTS", 10),
			SampleDefault: getEnvInt("DATA_SAMPLE_DEFAULT", 5000),
			SampleMin:     getEnvInt("DATA_SAMPLE_MIN", 1000),
			SampleMax:     getEnvInt("DATA_SAMPLE_MAX", 10000),
		},
		Cache: CacheConfig{
			RedisURL:        getEnvString("CACHE_REDIS_URL", ""),
			ReportTTL:       getEnvDuration("CACHE_REPORT_TTL", 5*time.Minute),
			ReportCacheSize: getEnvInt("CACHE_REPORT_SIZE", 256),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
		},
		Storage: StorageConfig{
			Endpoint:     getEnvString("S3_ENDPOINT", ""),
			Region:       getEnvString("S3_REGION", "us-east-1"),
			AccessKey:    getEnvString("S3_ACCESS_KEY", ""),
			SecretKey:    getEnvString("S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.Source == "" {
		return fmt.Errorf("data source cannot be empty")
	}

	if c.Data.CacheTTL <= 0 {
		return fmt.Errorf("data cache TTL must be positive")
	}

	if c.Data.ParseWorkers <= 0 {
		return fmt.Errorf("parse workers must be positive")
	}

	if c.Data.TopProducts <= 0 {
		return fmt.Errorf("top products limit must be positive")
	}

	if c.Data.SampleMin <= 0 || c.Data.SampleMin > c.Data.SampleMax {
		return fmt.Errorf("sample range [%d, %d] is invalid", c.Data.SampleMin, c.Data.SampleMax)
	}

	if c.Data.SampleDefault < c.Data.SampleMin || c.Data.SampleDefault > c.Data.SampleMax {
		return fmt.Errorf("default sample size %d outside [%d, %d]", c.Data.SampleDefault, c.Data.SampleMin, c.Data.SampleMax)
	}

	if c.Cache.ReportCacheSize <= 0 {
		return fmt.Errorf("report cache size must be positive")
	}

	if c.Cache.ReportTTL <= 0 {
		return fmt.Errorf("report cache TTL must be positive")
	}

	if strings.HasPrefix(c.Data.Source, "s3://") && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key are required for an s3:// data source")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
