package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/parley/pkg/adapters/openai"
)

// ErrMissingModelKey is returned when no model API key is configured.
var ErrMissingModelKey = errors.New("OPENAI_API_KEY or GEMINI_API_KEY must be set")

// ErrMissingServerKey is returned when the HTTP server is started without an API key.
var ErrMissingServerKey = errors.New("API_SECRET_KEY must be set to serve HTTP")

// Config is the full runtime configuration.
type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"` // text or json
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	Model    ModelConfig     `mapstructure:"model"`
	Router   RouterConfig    `mapstructure:"router"`
	Handlers []HandlerConfig `mapstructure:"handlers"`
	Server   ServerConfig    `mapstructure:"server"`
	Store    StoreConfig     `mapstructure:"store"`
}

// ModelConfig selects the inference endpoint.
type ModelConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Name       string `mapstructure:"name"`
	MaxRetries int    `mapstructure:"max_retries"`
	MaxTokens  int    `mapstructure:"max_tokens"`
}

// RouterConfig names the classifier.
type RouterConfig struct {
	Name string `mapstructure:"name"`
}

// HandlerConfig is one entry of the handler catalog.
type HandlerConfig struct {
	Name         string `mapstructure:"name"`
	Description  string `mapstructure:"description"`
	Instructions string `mapstructure:"instructions"`

	// Command, when set, runs a local process instead of the model.
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit string `mapstructure:"rate_limit"`
}

// StoreConfig selects where dialogues are persisted.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, file or redis
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	EncryptionKey string        `mapstructure:"encryption_key"` // base64, 32 bytes decoded
	PIIPatterns   []string      `mapstructure:"pii_patterns"`
}

// Load builds the configuration from defaults, an optional YAML catalog and the environment,
// in that order of precedence (environment wins). A .env file in the working directory is
// loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", filepath.Base(path), err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	// A catalog that lists handlers replaces the built-in set rather than appending to it.
	if _, ok := raw["handlers"]; ok {
		c.Handlers = nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("PARLEY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("PARLEY_LOG_FORMAT", c.LogFormat)
	c.StepTimeout = getEnvDuration("PARLEY_STEP_TIMEOUT", c.StepTimeout)

	c.Model.Name = getEnv("PARLEY_MODEL", c.Model.Name)
	c.Model.BaseURL = getEnv("PARLEY_BASE_URL", c.Model.BaseURL)
	c.Model.MaxRetries = getEnvInt("PARLEY_MAX_RETRIES", c.Model.MaxRetries)
	switch {
	case os.Getenv("OPENAI_API_KEY") != "":
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	case os.Getenv("GEMINI_API_KEY") != "":
		c.Model.APIKey = os.Getenv("GEMINI_API_KEY")
		if c.Model.BaseURL == "" {
			c.Model.BaseURL = openai.GeminiBaseURL
		}
	}

	c.Server.Addr = getEnv("PARLEY_ADDR", c.Server.Addr)
	c.Server.APIKey = getEnv("API_SECRET_KEY", c.Server.APIKey)
	c.Server.RateLimit = getEnv("PARLEY_RATE_LIMIT", c.Server.RateLimit)

	c.Store.Backend = getEnv("PARLEY_STORE", c.Store.Backend)
	c.Store.Path = getEnv("PARLEY_STORE_PATH", c.Store.Path)
	c.Store.RedisAddr = getEnv("PARLEY_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("PARLEY_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("PARLEY_REDIS_DB", c.Store.RedisDB)
	c.Store.TTL = getEnvDuration("PARLEY_SESSION_TTL", c.Store.TTL)
	c.Store.EncryptionKey = getEnv("PARLEY_ENCRYPTION_KEY", c.Store.EncryptionKey)
}

// Validate checks the handler catalog and store selection.
// Credentials are checked separately by RequireModelKey and RequireServerKey.
func (c Config) Validate() error {
	if len(c.Handlers) == 0 {
		return errors.New("at least one handler must be configured")
	}

	seen := make(map[string]bool, len(c.Handlers))
	for i, h := range c.Handlers {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			return fmt.Errorf("handler #%d has no name", i+1)
		}
		if seen[name] {
			return fmt.Errorf("duplicate handler %q", name)
		}
		if name == c.Router.Name {
			return fmt.Errorf("handler %q collides with the router name", name)
		}
		seen[name] = true
	}

	switch c.Store.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want memory, file or redis)", c.Store.Backend)
	}
	return nil
}

// RequireModelKey reports ErrMissingModelKey when no API key is configured.
func (c Config) RequireModelKey() error {
	if c.Model.APIKey == "" {
		return ErrMissingModelKey
	}
	return nil
}

// RequireServerKey reports ErrMissingServerKey when the HTTP API key is not configured.
func (c Config) RequireServerKey() error {
	if c.Server.APIKey == "" {
		return ErrMissingServerKey
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
