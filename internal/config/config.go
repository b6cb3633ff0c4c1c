package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the batchlingo server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Engine    EngineConfig
	Watchdog  WatchdogConfig
	AMQP      AMQPConfig
	MinIO     MinIOConfig
	RateLimit int
}

type ServerConfig struct {
	Port int
	Env  string
	// BootstrapKey, when set, is installed as an admin operator key if no
	// operator keys exist yet.
	BootstrapKey string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// LLMConfig describes the OpenAI-compatible chat-completion endpoints.
// Models listed in LocalModels are routed to LocalBaseURL, everything else
// goes to OpenAIBaseURL.
type LLMConfig struct {
	OpenAIBaseURL  string
	OpenAIAPIKey   string
	LocalBaseURL   string
	LocalModels    []string
	RequestTimeout time.Duration
}

// EngineConfig tunes the batch runner.
type EngineConfig struct {
	BatchSize      int
	Concurrency    int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxJitter time.Duration
	CostPerToken   float64
	Confidence     float64
}

type WatchdogConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("BATCHLINGO_PORT", 8080),
			Env:  envString("BATCHLINGO_ENV", "development"),

			BootstrapKey: os.Getenv("BATCHLINGO_BOOTSTRAP_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		LLM: LLMConfig{
			OpenAIBaseURL:  envString("LLM_OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIAPIKey:   os.Getenv("LLM_OPENAI_API_KEY"),
			LocalBaseURL:   envString("LLM_LOCAL_BASE_URL", "http://localhost:11434/v1"),
			LocalModels:    envList("LLM_LOCAL_MODELS", []string{"llama3", "mistral"}),
			RequestTimeout: envDuration("LLM_REQUEST_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			BatchSize:      envInt("ENGINE_BATCH_SIZE", 10),
			Concurrency:    envInt("ENGINE_CONCURRENCY", 5),
			MaxRetries:     envInt("ENGINE_MAX_RETRIES", 3),
			RetryBaseDelay: envDuration("ENGINE_RETRY_BASE_DELAY", time.Second),
			RetryMaxJitter: envDuration("ENGINE_RETRY_MAX_JITTER", time.Second),
			CostPerToken:   envFloat("ENGINE_COST_PER_TOKEN", 0.0001),
			Confidence:     envFloat("ENGINE_CONFIDENCE", 0.95),
		},
		Watchdog: WatchdogConfig{
			Interval:   envDuration("WATCHDOG_INTERVAL", 5*time.Minute),
			StaleAfter: envDuration("WATCHDOG_STALE_AFTER", 30*time.Minute),
		},
		AMQP: AMQPConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: envString("AMQP_EXCHANGE", "batchlingo.jobs"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envString("MINIO_BUCKET", "datasets"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		RateLimit: envInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if n := len(c.Server.BootstrapKey); n > 0 && (n < 16 || n > 72) {
		return fmt.Errorf("BATCHLINGO_BOOTSTRAP_KEY must be between 16 and 72 characters")
	}

	if !isHTTPURL(c.LLM.OpenAIBaseURL) {
		return fmt.Errorf("LLM_OPENAI_BASE_URL must start with http:// or https://, got %q", c.LLM.OpenAIBaseURL)
	}
	if !isHTTPURL(c.LLM.LocalBaseURL) {
		return fmt.Errorf("LLM_LOCAL_BASE_URL must start with http:// or https://, got %q", c.LLM.LocalBaseURL)
	}
	if c.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("LLM_REQUEST_TIMEOUT must be positive")
	}

	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("ENGINE_BATCH_SIZE must be at least 1, got %d", c.Engine.BatchSize)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("ENGINE_CONCURRENCY must be at least 1, got %d", c.Engine.Concurrency)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must not be negative, got %d", c.Engine.MaxRetries)
	}

	if c.MinIO.Endpoint != "" {
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
		}
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("AMQP_EXCHANGE is required when AMQP_URL is set")
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated value, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
