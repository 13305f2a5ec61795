// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Port           string           `yaml:"port"`
	AppEnv         string           `yaml:"app_env"`
	FrontendURL    string           `yaml:"frontend_url"`
	CORSOrigins    []string         `yaml:"cors_origins"`
	MaxQueryLength int              `yaml:"max_query_length"`
	DB             DBConfig         `yaml:"db"`
	LLM            LLMConfig        `yaml:"llm"`
	Cookie         CookieConfig     `yaml:"cookie"`
	Transcript     TranscriptConfig `yaml:"transcript"`
}

// DBConfig selects and locates the conversation store.
type DBConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres, mongo
	Path   string `yaml:"path"`   // sqlite file
	URL    string `yaml:"url"`    // postgres or mongo connection string
	Name   string `yaml:"name"`   // mongo database
}

// LLMConfig configures the answering provider.
type LLMConfig struct {
	Provider     string        `yaml:"provider"` // claude, gemini, openai
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// CookieConfig controls the identity cookie.
type CookieConfig struct {
	Name   string        `yaml:"name"`
	MaxAge time.Duration `yaml:"max_age"`
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           "8000",
		AppEnv:         "production",
		CORSOrigins:    []string{"*"},
		MaxQueryLength: 1000,
		DB: DBConfig{
			Driver: DriverSQLite,
			Path:   "./data/legal_assistant.db",
			Name:   "legal_assistant",
		},
		LLM: LLMConfig{
			Provider:  "gemini",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Cookie: CookieConfig{
			Name:   "user_id",
			MaxAge: 365 * 24 * time.Hour,
		},
		Transcript: TranscriptConfig{
			Enabled:   false,
			Dir:       "./data/logs/conversations",
			QueueSize: 1000,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at path,
// and environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.MaxQueryLength = getEnvInt("MAX_QUERY_LENGTH", c.MaxQueryLength)

	c.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", c.DB.Driver))
	c.DB.Path = getEnv("DB_PATH", c.DB.Path)
	c.DB.URL = getEnv("DATABASE_URL", c.DB.URL)
	c.DB.Name = getEnv("DB_NAME", c.DB.Name)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.SystemPrompt = getEnv("LLM_SYSTEM_PROMPT", c.LLM.SystemPrompt)

	c.Cookie.Name = getEnv("COOKIE_NAME", c.Cookie.Name)
	c.Cookie.MaxAge = getEnvDuration("COOKIE_MAX_AGE", c.Cookie.MaxAge)

	c.Transcript.Enabled = getEnvBool("TRANSCRIPT_ENABLED", c.Transcript.Enabled)
	c.Transcript.Dir = getEnv("TRANSCRIPT_DIR", c.Transcript.Dir)
	c.Transcript.QueueSize = getEnvInt("TRANSCRIPT_QUEUE_SIZE", c.Transcript.QueueSize)
}

// Validate checks that all required configuration fields are set.
// The LLM provider is not checked here: an unusable provider leaves the server
// running with every query failing as an LLM service error.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.MaxQueryLength <= 0 {
		return fmt.Errorf("MAX_QUERY_LENGTH must be > 0")
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty for driver %q", c.DB.Driver)
		}
	case DriverPostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL cannot be empty for driver %q", c.DB.Driver)
		}
	case DriverMongo:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL cannot be empty for driver %q", c.DB.Driver)
		}
		if c.DB.Name == "" {
			return fmt.Errorf("DB_NAME cannot be empty for driver %q", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Cookie.Name == "" {
		return fmt.Errorf("COOKIE_NAME cannot be empty")
	}
	if c.Cookie.MaxAge <= 0 {
		return fmt.Errorf("COOKIE_MAX_AGE must be > 0")
	}
	if c.Transcript.Enabled {
		if c.Transcript.Dir == "" {
			return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
		}
		if c.Transcript.QueueSize <= 0 {
			return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode. Without an
// explicit APP_ENV it falls back to inspecting the frontend URL.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local":
		return true
	case "":
		return c.FrontendURL == "" ||
			strings.Contains(c.FrontendURL, "localhost") ||
			strings.Contains(c.FrontendURL, "127.0.0.1")
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
