package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the leadharvest worker configuration.
type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Database  DatabaseConfig            `yaml:"database"`
	Queue     QueueConfig               `yaml:"queue"`
	Proxy     ProxyConfig               `yaml:"proxy"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Captcha   CaptchaConfig             `yaml:"captcha"`
	Crawler   CrawlerConfig             `yaml:"crawler"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// QueueConfig holds background queue settings.
type QueueConfig struct {
	KeyPrefix      string `yaml:"key_prefix"`
	SearchWorkers  int    `yaml:"search_workers"`
	EnrichWorkers  int    `yaml:"enrich_workers"`
	PopTimeoutSec  int    `yaml:"pop_timeout_sec"`
	SearchDeadline int    `yaml:"search_deadline_sec"` // overall provider ceiling
}

// ProxyConfig holds process-wide proxy defaults. Provider-level overrides
// take precedence.
type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`  // single proxy, wins over List
	List    string `yaml:"list"` // comma-separated pool, one picked per attempt
}

// ProviderConfig holds per-provider settings resolved from the
// configuration service: secrets, regional parameters, proxy overrides and
// the static fallback chain.
type ProviderConfig struct {
	APIKey   string   `yaml:"api_key"`
	FolderID string   `yaml:"folder_id"`
	Region   string   `yaml:"region"`
	Language string   `yaml:"language"`
	BaseURL  string   `yaml:"base_url"`
	Engine   string   `yaml:"engine"`
	UseProxy *bool    `yaml:"use_proxy"` // nil = inherit process default
	ProxyURL string   `yaml:"proxy_url"`
	Fallback []string `yaml:"fallback"`
}

// CaptchaConfig holds captcha bypass settings.
type CaptchaConfig struct {
	Vision   VisionConfig             `yaml:"vision"`
	Services map[string]SolverService `yaml:"services"` // 2captcha, anticaptcha
}

// VisionConfig holds the vision-capable model used for image challenges.
type VisionConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SolverService holds one third-party token-solver configuration.
type SolverService struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// CrawlerConfig holds domain crawler settings.
type CrawlerConfig struct {
	MaxPages       int     `yaml:"max_pages"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	MaxRetries     int     `yaml:"max_retries"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = "lead:"
	}
	if c.Queue.SearchWorkers <= 0 {
		c.Queue.SearchWorkers = 2
	}
	if c.Queue.EnrichWorkers <= 0 {
		c.Queue.EnrichWorkers = 8
	}
	if c.Queue.PopTimeoutSec <= 0 {
		c.Queue.PopTimeoutSec = 5
	}
	if c.Queue.SearchDeadline <= 0 {
		c.Queue.SearchDeadline = 120
	}
	if c.Crawler.MaxPages <= 0 {
		c.Crawler.MaxPages = 20
	}
	if c.Crawler.TimeoutSec <= 0 {
		c.Crawler.TimeoutSec = 30
	}
	if c.Crawler.MaxRetries <= 0 {
		c.Crawler.MaxRetries = 3
	}
	if c.Crawler.CacheTTLHours <= 0 {
		c.Crawler.CacheTTLHours = 24
	}
	if c.Crawler.RequestsPerSec <= 0 {
		c.Crawler.RequestsPerSec = 3.0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for name, svc := range c.Captcha.Services {
		if svc.Enabled && svc.APIKey == "" {
			return fmt.Errorf("captcha.services.%s is enabled but has no api_key", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
