package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.opengpt/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8088
// store:
//   driver: mongo
//   mongo_uri: mongodb://localhost:27017
// auth:
//   jwt_secret: change-me
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Environment variables override file values (see applyEnv).
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Inference InferenceConfig `yaml:"inference"`
	History   HistoryConfig   `yaml:"history"`
}

type ServerConfig struct {
	Host           *string  `yaml:"host"`
	Port           *int     `yaml:"port"`
	StaticDir      string   `yaml:"static_dir,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// StoreConfig selects the persistence backend for chat history and users.
type StoreConfig struct {
	Driver        string `yaml:"driver,omitempty"` // mongo, sqlite, mysql, postgres
	DSN           string `yaml:"dsn,omitempty"`
	MongoURI      string `yaml:"mongo_uri,omitempty"`
	MongoDatabase string `yaml:"mongo_database,omitempty"`
}

// CacheConfig enables the Redis read-through cache when Addr is set.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	TTL           string `yaml:"ttl,omitempty"`
}

type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret,omitempty"`
	CookieName   string `yaml:"cookie_name,omitempty"`
	TokenTTL     string `yaml:"token_ttl,omitempty"`
	SecureCookie bool   `yaml:"secure_cookie,omitempty"`
}

type InferenceConfig struct {
	SystemPrompt     string        `yaml:"system_prompt,omitempty"`
	OpenRouterAPIKey string        `yaml:"openrouter_api_key,omitempty"`
	Models           []ModelOption `yaml:"models,omitempty"`
}

// ModelOption is one entry of the model selector.
type ModelOption struct {
	Name     string         `yaml:"name" json:"name"`
	Model    string         `yaml:"model" json:"value"`
	Provider string         `yaml:"provider,omitempty" json:"provider,omitempty"`
	BaseURL  string         `yaml:"base_url,omitempty" json:"-"`
	APIKey   string         `yaml:"api_key,omitempty" json:"-"`
	Extra    map[string]any `yaml:"extra,omitempty" json:"-"`
}

// HistoryConfig controls how history caches react to remote failures.
type HistoryConfig struct {
	Policy string `yaml:"policy,omitempty"` // lenient (default) or strict
}

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8088
	DefaultDriver        = "sqlite"
	DefaultMongoDatabase = "opengpt"
	DefaultCookieName    = "token"
	DefaultTokenTTL      = time.Hour
	DefaultCacheTTL      = 5 * time.Minute
	DefaultSystemPrompt  = "You are a helpful AI assistant."
	DefaultHistoryPolicy = "lenient"

	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// DefaultModels mirrors the selector shipped with the web client.
var DefaultModels = []ModelOption{
	{Name: "grok-4.1-fast", Model: "x-ai/grok-4.1-fast", Provider: "openrouter"},
	{Name: "kat-coder-pro", Model: "kwaipilot/kat-coder-pro:free", Provider: "openrouter"},
	{Name: "GPT-OSS 20B", Model: "openai/gpt-oss-20b:free", Provider: "openrouter"},
	{Name: "gemini-2.0-flash", Model: "google/gemini-2.0-flash-exp:free", Provider: "openrouter"},
	{Name: "qwen-3-coder", Model: "qwen/qwen3-coder:free", Provider: "openrouter"},
	{Name: "gemma-3-27b", Model: "google/gemma-3-27b-it:free", Provider: "openrouter"},
}

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".opengpt")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.opengpt/config.yaml and applies environment overrides.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w in %s", err, configFile)
	}

	return cfg, configFile, nil
}

// Validate checks values that have no sensible fallback.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return errors.New("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	switch c.Driver() {
	case "mongo", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid store.driver %q", c.Store.Driver)
	}
	if _, err := parseDuration(c.Auth.TokenTTL, DefaultTokenTTL); err != nil {
		return fmt.Errorf("invalid auth.token_ttl: %w", err)
	}
	if _, err := parseDuration(c.Cache.TTL, DefaultCacheTTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}
	switch c.HistoryPolicy() {
	case "lenient", "strict":
	default:
		return fmt.Errorf("invalid history.policy %q", c.History.Policy)
	}
	return nil
}

// applyEnv lets deployment environments override the file.
func (c *AppConfig) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("OPENGPT_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OPENGPT_PORT %q: %w", v, err)
		}
		c.Server.Port = ptr(p)
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Store.MongoURI = v
		if c.Store.Driver == "" {
			c.Store.Driver = "mongo"
		}
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Inference.OpenRouterAPIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	return nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Store:  StoreConfig{Driver: DefaultDriver},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) Driver() string {
	if c == nil || c.Store.Driver == "" {
		return DefaultDriver
	}
	return strings.ToLower(c.Store.Driver)
}

// DSN returns the SQL data source, defaulting to a sqlite file next to the
// config file.
func (c *AppConfig) DSN() string {
	if c != nil && c.Store.DSN != "" {
		return c.Store.DSN
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "opengpt.db"
	}
	return filepath.Join(configDir, "opengpt.db")
}

func (c *AppConfig) MongoDatabase() string {
	if c == nil || c.Store.MongoDatabase == "" {
		return DefaultMongoDatabase
	}
	return c.Store.MongoDatabase
}

func (c *AppConfig) CookieName() string {
	if c == nil || c.Auth.CookieName == "" {
		return DefaultCookieName
	}
	return c.Auth.CookieName
}

func (c *AppConfig) TokenTTL() time.Duration {
	if c == nil {
		return DefaultTokenTTL
	}
	d, _ := parseDuration(c.Auth.TokenTTL, DefaultTokenTTL)
	return d
}

func (c *AppConfig) CacheTTL() time.Duration {
	if c == nil {
		return DefaultCacheTTL
	}
	d, _ := parseDuration(c.Cache.TTL, DefaultCacheTTL)
	return d
}

func (c *AppConfig) SystemPrompt() string {
	if c == nil || strings.TrimSpace(c.Inference.SystemPrompt) == "" {
		return DefaultSystemPrompt
	}
	return c.Inference.SystemPrompt
}

// OpenRouterAPIKey is the key used for OpenRouter models that carry none.
func (c *AppConfig) OpenRouterAPIKey() string {
	if c == nil {
		return ""
	}
	return c.Inference.OpenRouterAPIKey
}

// ModelOptions returns the configured models, falling back to DefaultModels.
// OpenRouter entries without credentials pick up OpenRouterAPIKey.
func (c *AppConfig) ModelOptions() []ModelOption {
	src := DefaultModels
	if c != nil && len(c.Inference.Models) > 0 {
		src = c.Inference.Models
	}
	out := make([]ModelOption, len(src))
	copy(out, src)
	for i := range out {
		if out[i].Provider == "" {
			out[i].Provider = "openrouter"
		}
		if out[i].Provider == "openrouter" {
			if out[i].BaseURL == "" {
				out[i].BaseURL = OpenRouterBaseURL
			}
			if out[i].APIKey == "" {
				out[i].APIKey = c.OpenRouterAPIKey()
			}
		}
		if out[i].Name == "" {
			out[i].Name = out[i].Model
		}
	}
	return out
}

func (c *AppConfig) HistoryPolicy() string {
	if c == nil || c.History.Policy == "" {
		return DefaultHistoryPolicy
	}
	return strings.ToLower(c.History.Policy)
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("duration must be positive, got %s", v)
	}
	return d, nil
}

func ptr[T any](v T) *T { return &v }
