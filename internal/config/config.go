package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"aceinterview/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
// Precedence Order:
// 1. Environment Variables (ACEINTERVIEW_BACKEND_BASEURL, etc.), including ones loaded from .env
// 2. Config File values
// 3. Default values
type Config struct {
	Backend       BackendConfig       `mapstructure:"backend"`
	Interview     InterviewConfig     `mapstructure:"interview"`
	Session       SessionConfig       `mapstructure:"session"`
	Server        ServerConfig        `mapstructure:"server"`
	App           AppConfig           `mapstructure:"app"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// BackendConfig describes the interview backend the client talks to.
// The top-level values are fallbacks for each operation.
type BackendConfig struct {
	BaseURL    string        `mapstructure:"baseURL"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
	UserAgent  string        `mapstructure:"userAgent"`

	ParseResume       OperationConfig `mapstructure:"parseResume"`
	GenerateQuestions OperationConfig `mapstructure:"generateQuestions"`
	EvaluateAnswer    OperationConfig `mapstructure:"evaluateAnswer"`
}

// OperationConfig holds settings for one backend endpoint
type OperationConfig struct {
	Path           string               `mapstructure:"path"`
	Timeout        *time.Duration       `mapstructure:"timeout"`
	MaxRetries     *int                 `mapstructure:"maxRetries"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// InterviewConfig holds the practice catalogue and request defaults
type InterviewConfig struct {
	QuestionCount        int      `mapstructure:"questionCount"`
	DefaultName          string   `mapstructure:"defaultName"`
	DefaultQuestionType  string   `mapstructure:"defaultQuestionType"`
	DefaultLevel         string   `mapstructure:"defaultLevel"`
	DefaultInterviewType string   `mapstructure:"defaultInterviewType"`
	Domains              []string `mapstructure:"domains"`
	Levels               []string `mapstructure:"levels"`
	Companies            []string `mapstructure:"companies"`
	InterviewTypes       []string `mapstructure:"interviewTypes"`
}

// SessionConfig selects where in-progress sessions are cached
type SessionConfig struct {
	Store     string        `mapstructure:"store"` // none, memory, file, redis
	FilePath  string        `mapstructure:"filePath"`
	KeyPrefix string        `mapstructure:"keyPrefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	PoolSize     int           `mapstructure:"poolSize"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"` // Valid API keys for authentication

	// Rate Limiting Configuration
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`

	CORS CORSConfig `mapstructure:"cors"`

	// Sessions untouched for this long are dropped from the registry
	SessionIdleTimeout time.Duration `mapstructure:"sessionIdleTimeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`        // Enable/disable rate limiting
	RequestsPerMin int  `mapstructure:"requestsPerMin"` // Requests allowed per minute
	BurstCapacity  int  `mapstructure:"burstCapacity"`  // Burst capacity for token bucket
	ByIP           bool `mapstructure:"byIP"`           // Enable per-IP rate limiting
	ByAPIKey       bool `mapstructure:"byAPIKey"`       // Enable per-API-key rate limiting
}

// CORSConfig holds browser cross-origin settings for the gateway
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
	MaxAge           int      `mapstructure:"maxAge"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	SampleRate      float64             `mapstructure:"sampleRate"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Console         ConsoleConfig       `mapstructure:"console"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
	HealthCheck     HealthCheckConfig   `mapstructure:"healthCheck"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// CustomMetricsConfig holds fine-grained custom metrics configuration
type CustomMetricsConfig struct {
	BackendOperations BackendOperationsMetricsConfig `mapstructure:"backendOperations"`
	SessionMetrics    SessionMetricsConfig           `mapstructure:"sessionMetrics"`
	Infrastructure    InfrastructureMetricsConfig    `mapstructure:"infrastructure"`
}

// BackendOperationsMetricsConfig holds backend call metrics configuration
type BackendOperationsMetricsConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	TrackDuration bool `mapstructure:"trackDuration"`
}

// SessionMetricsConfig holds practice-session metrics configuration
type SessionMetricsConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	TrackScores bool `mapstructure:"trackScores"`
}

// InfrastructureMetricsConfig holds infrastructure metrics configuration
type InfrastructureMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackRateLimits bool `mapstructure:"trackRateLimits"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// HealthCheckConfig holds health check configuration
type HealthCheckConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

const envPrefix = "ACEINTERVIEW"

// LoadConfig loads configuration from a .env file, environment variables and a config file
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	v := viper.New()

	// Set up config file handling
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/aceinterview/")
	v.AddConfigPath("$HOME/.aceinterview")
	v.AddConfigPath(".")

	return load(v)
}

// load applies defaults and the environment to v, reads its config file and validates the result
func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileUsed = v.ConfigFileUsed()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyFallbacks()

	if config.App.LogLevel == "debug" {
		config.logConfigurationSources(configFileUsed)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid configuration", err)
	}

	return &config, nil
}

var (
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validSessionStore = []string{"none", "memory", "file", "redis"}
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}

	if c.Interview.QuestionCount <= 0 {
		return fmt.Errorf("interview question count must be positive")
	}
	if len(c.Interview.Domains) == 0 {
		return fmt.Errorf("at least one interview domain must be configured")
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if !slices.Contains(validLogLevels, c.App.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.App.LogLevel)
	}

	if !slices.Contains(c.App.SupportedFormats, c.App.DefaultFormat) {
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	if c.App.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}

	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL is required (set ACEINTERVIEW_BACKEND_BASEURL environment variable)")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend base URL must be an absolute http(s) URL: %q", c.Backend.BaseURL)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend max retries cannot be negative")
	}

	for name, op := range map[string]OperationConfig{
		"parseResume":       c.Backend.ParseResume,
		"generateQuestions": c.Backend.GenerateQuestions,
		"evaluateAnswer":    c.Backend.EvaluateAnswer,
	} {
		if op.Timeout != nil && *op.Timeout <= 0 {
			return fmt.Errorf("backend %s timeout must be positive", name)
		}
		if op.MaxRetries != nil && *op.MaxRetries < 0 {
			return fmt.Errorf("backend %s max retries cannot be negative", name)
		}
		cb := op.CircuitBreaker
		if cb.Enabled && (cb.FailureThreshold <= 0 || cb.FailureThreshold > 1) {
			return fmt.Errorf("backend %s circuit breaker failure threshold must be in (0, 1]", name)
		}
	}

	return nil
}

func (c *Config) validateSession() error {
	if !slices.Contains(validSessionStore, c.Session.Store) {
		return fmt.Errorf("invalid session store: %s (must be one of %v)", c.Session.Store, validSessionStore)
	}

	switch c.Session.Store {
	case "file":
		if c.Session.FilePath == "" {
			return fmt.Errorf("session file path is required for the file store")
		}
	case "redis":
		if c.Session.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	}

	if c.Session.TTL < 0 {
		return fmt.Errorf("session ttl cannot be negative")
	}

	return nil
}
