package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Feature toggles
	EnableMemory    bool `yaml:"enable_memory" koanf:"enable_memory"`
	EnableCrossPage bool `yaml:"enable_cross_page" koanf:"enable_cross_page"`
	AutoResearch    bool `yaml:"auto_research" koanf:"auto_research"`
	PrivacyMode     bool `yaml:"privacy_mode" koanf:"privacy_mode"`

	// Session bounds
	MaxPages             int     `yaml:"max_pages" koanf:"max_pages"`
	MaxConversations     int     `yaml:"max_conversations" koanf:"max_conversations"`
	MaxSessionMB         int     `yaml:"max_session_mb" koanf:"max_session_mb"`
	MaxContextAgeMinutes int     `yaml:"max_context_age_minutes" koanf:"max_context_age_minutes"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold" koanf:"similarity_threshold"`
	DefaultModel         string  `yaml:"default_model" koanf:"default_model"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url" koanf:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace" koanf:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database" koanf:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user" koanf:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass" koanf:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level" koanf:"surrealdb_auth_level"`

	// Chat model
	LLMProvider     string `yaml:"llm_provider" koanf:"llm_provider"`
	LLMModel        string `yaml:"llm_model" koanf:"llm_model"`
	OllamaHost      string `yaml:"ollama_host" koanf:"ollama_host"`
	OpenAIAPIKey    string `yaml:"-" koanf:"-"`
	AnthropicAPIKey string `yaml:"-" koanf:"-"`

	// Gateway
	ServerAddr     string   `yaml:"server_addr" koanf:"server_addr"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
	AutosaveName   string   `yaml:"autosave_name" koanf:"autosave_name"`

	// Page capture
	BrowserControlURL string `yaml:"browser_control_url" koanf:"browser_control_url"`
	BrowserHeadless   bool   `yaml:"browser_headless" koanf:"browser_headless"`
	CaptureTimeoutSec int    `yaml:"capture_timeout_sec" koanf:"capture_timeout_sec"`

	// Logging
	LogFile      string `yaml:"log_file" koanf:"log_file"`
	LogLevelName string `yaml:"log_level" koanf:"log_level"`
}

// Supported chat providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		EnableMemory:    true,
		EnableCrossPage: true,
		AutoResearch:    true,

		MaxPages:             10,
		MaxConversations:     50,
		MaxSessionMB:         50,
		MaxContextAgeMinutes: 30,
		SimilarityThreshold:  0.6,
		DefaultModel:         "chat",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "pagewise",
		SurrealDBDatabase:  "sessions",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider: ProviderOllama,
		LLMModel:    "llama3.2",
		OllamaHost:  "http://localhost:11434",

		ServerAddr:     "127.0.0.1:8484",
		AllowedOrigins: []string{"chrome-extension://*", "moz-extension://*", "http://localhost:*"},

		BrowserHeadless:   true,
		CaptureTimeoutSec: 30,

		LogFile:      "/tmp/pagewise.log",
		LogLevelName: "INFO",
	}
}

// Load reads configuration from defaults, the optional YAML file named by
// PAGEWISE_CONFIG, then environment variables.
func Load() (Config, error) {
	return LoadFile(os.Getenv("PAGEWISE_CONFIG"))
}

// LoadFile is Load with an explicit config path. An empty or missing path
// yields defaults plus environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			k := koanf.New(".")
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return cfg, fmt.Errorf("load config file %s: %w", path, err)
			}
			if err := k.Unmarshal("", &cfg); err != nil {
				return cfg, fmt.Errorf("unmarshal config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.EnableMemory = getEnvBool("PAGEWISE_ENABLE_MEMORY", cfg.EnableMemory)
	cfg.EnableCrossPage = getEnvBool("PAGEWISE_ENABLE_CROSS_PAGE", cfg.EnableCrossPage)
	cfg.AutoResearch = getEnvBool("PAGEWISE_AUTO_RESEARCH", cfg.AutoResearch)
	cfg.PrivacyMode = getEnvBool("PAGEWISE_PRIVACY_MODE", cfg.PrivacyMode)
	cfg.MaxPages = getEnvInt("PAGEWISE_MAX_PAGES", cfg.MaxPages)
	cfg.MaxConversations = getEnvInt("PAGEWISE_MAX_CONVERSATIONS", cfg.MaxConversations)
	cfg.DefaultModel = getEnv("PAGEWISE_DEFAULT_MODEL", cfg.DefaultModel)

	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)
	cfg.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", cfg.SurrealDBAuthLevel)

	cfg.LLMProvider = getEnv("PAGEWISE_LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMModel = getEnv("PAGEWISE_LLM_MODEL", cfg.LLMModel)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)

	cfg.ServerAddr = getEnv("PAGEWISE_ADDR", cfg.ServerAddr)
	if v := os.Getenv("PAGEWISE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.AutosaveName = getEnv("PAGEWISE_AUTOSAVE", cfg.AutosaveName)

	cfg.BrowserControlURL = getEnv("PAGEWISE_BROWSER_URL", cfg.BrowserControlURL)
	cfg.BrowserHeadless = getEnvBool("PAGEWISE_BROWSER_HEADLESS", cfg.BrowserHeadless)

	cfg.LogFile = getEnv("PAGEWISE_LOG_FILE", cfg.LogFile)
	cfg.LogLevelName = getEnv("PAGEWISE_LOG_LEVEL", cfg.LogLevelName)
}

// YAML renders the config without secrets.
func (c Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Save writes the config as YAML to path.
func (c Config) Save(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// Validate reports the first out-of-range value.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("invalid llm_provider %q: must be one of ollama, openai, anthropic", c.LLMProvider)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1, got %d", c.MaxPages)
	}
	if c.MaxConversations < 1 {
		return fmt.Errorf("max_conversations must be at least 1, got %d", c.MaxConversations)
	}
	if c.MaxSessionMB < 1 {
		return fmt.Errorf("max_session_mb must be at least 1, got %d", c.MaxSessionMB)
	}
	if c.MaxContextAgeMinutes < 1 {
		return fmt.Errorf("max_context_age_minutes must be at least 1, got %d", c.MaxContextAgeMinutes)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0, 1], got %g", c.SimilarityThreshold)
	}
	if c.CaptureTimeoutSec < 1 {
		return fmt.Errorf("capture_timeout_sec must be at least 1, got %d", c.CaptureTimeoutSec)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() slog.Level {
	return parseLogLevel(c.LogLevelName)
}

// MaxContextAge returns the cross-page retention window.
func (c Config) MaxContextAge() time.Duration {
	return time.Duration(c.MaxContextAgeMinutes) * time.Minute
}

// CaptureTimeout returns the per-page capture deadline.
func (c Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutSec) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
