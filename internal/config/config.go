package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "PERSPECTIVE_LENS_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	geminiAPIKeyEnv   = "GEMINI_API_KEY"
	geminiModelsEnv   = "GEMINI_MODELS"
	storageDriverEnv  = "STORAGE_DRIVER"
	storageDSNEnv     = "STORAGE_DSN"
	progressHookEnv   = "PROGRESS_WEBHOOK_URL"
	defaultEndpoint   = "https://generativelanguage.googleapis.com/v1beta"
	defaultPromptKind = "gemini"

	defaultTemperature = 0.2
	defaultTopK        = 40
	defaultTopP        = 0.95
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Storage   StorageConfig   `yaml:"storage"`
	Progress  ProgressConfig  `yaml:"progress"`
	Extractor ExtractorConfig `yaml:"extractor"`
}

// LoggingConfig selects the slog level and handler ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GeminiConfig defines how to contact the Gemini API and which models to route across.
type GeminiConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"apiKey"`
	Models         []string      `yaml:"models"`
	Temperature    *float64      `yaml:"temperature"`
	TopK           *int          `yaml:"topK"`
	TopP           *float64      `yaml:"topP"`
	ThinkingBudget *int          `yaml:"thinkingBudget"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     *int          `yaml:"maxRetries"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	PromptKind     string        `yaml:"promptKind"`
	TemplatesDir   string        `yaml:"templatesDir"`
}

// Budget returns the reasoning-effort budget; -1 lets the backend decide.
func (g GeminiConfig) Budget() int {
	if g.ThinkingBudget == nil {
		return -1
	}
	return *g.ThinkingBudget
}

// Sampling returns temperature, topK and topP. Explicit zeros are kept.
func (g GeminiConfig) Sampling() (temperature float64, topK int, topP float64) {
	temperature, topK, topP = defaultTemperature, defaultTopK, defaultTopP
	if g.Temperature != nil {
		temperature = *g.Temperature
	}
	if g.TopK != nil {
		topK = *g.TopK
	}
	if g.TopP != nil {
		topP = *g.TopP
	}
	return temperature, topK, topP
}

// Retries returns the retry count for transient API errors.
func (g GeminiConfig) Retries() int {
	if g.MaxRetries == nil || *g.MaxRetries < 0 {
		return 2
	}
	return *g.MaxRetries
}

// StorageConfig describes where rate-limit state persists.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ProgressConfig wires optional remote progress delivery.
type ProgressConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// ExtractorConfig tunes the HTML content extractor.
type ExtractorConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"userAgent"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Gemini.APIKey = v
	}

	if v := os.Getenv(geminiModelsEnv); v != "" {
		if models := splitList(v); len(models) > 0 {
			c.Gemini.Models = models
		}
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(storageDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(progressHookEnv); v != "" {
		c.Progress.WebhookURL = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	g := override.Gemini
	if g.Endpoint != "" {
		base.Gemini.Endpoint = g.Endpoint
	}
	if g.APIKey != "" {
		base.Gemini.APIKey = g.APIKey
	}
	if len(g.Models) > 0 {
		base.Gemini.Models = g.Models
	}
	if g.Temperature != nil {
		base.Gemini.Temperature = g.Temperature
	}
	if g.TopK != nil {
		base.Gemini.TopK = g.TopK
	}
	if g.TopP != nil {
		base.Gemini.TopP = g.TopP
	}
	if g.ThinkingBudget != nil {
		base.Gemini.ThinkingBudget = g.ThinkingBudget
	}
	if g.Timeout != 0 {
		base.Gemini.Timeout = g.Timeout
	}
	if g.MaxRetries != nil {
		base.Gemini.MaxRetries = g.MaxRetries
	}
	if g.RetryBaseDelay != 0 {
		base.Gemini.RetryBaseDelay = g.RetryBaseDelay
	}
	if g.PromptKind != "" {
		base.Gemini.PromptKind = g.PromptKind
	}
	if g.TemplatesDir != "" {
		base.Gemini.TemplatesDir = g.TemplatesDir
	}

	if override.Storage.Driver != "" {
		base.Storage = override.Storage
	}

	if override.Progress.WebhookURL != "" {
		base.Progress.WebhookURL = override.Progress.WebhookURL
	}

	if override.Extractor.Timeout != 0 {
		base.Extractor.Timeout = override.Extractor.Timeout
	}
	if override.Extractor.UserAgent != "" {
		base.Extractor.UserAgent = override.Extractor.UserAgent
	}

	return base
}

func defaultConfig() Config {
	budget := -1
	retries := 2
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Gemini: GeminiConfig{
			Endpoint:       defaultEndpoint,
			Models:         []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite"},
			Temperature:    FloatPtr(defaultTemperature),
			TopK:           IntPtr(defaultTopK),
			TopP:           FloatPtr(defaultTopP),
			ThinkingBudget: &budget,
			Timeout:        60 * time.Second,
			MaxRetries:     &retries,
			RetryBaseDelay: time.Second,
			PromptKind:     defaultPromptKind,
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "perspectivelens.db"},
		Extractor: ExtractorConfig{
			Timeout:   20 * time.Second,
			UserAgent: "PerspectiveLens/1.0",
		},
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IntPtr is a helper for optional integer settings.
func IntPtr(v int) *int {
	return &v
}

// FloatPtr is a helper for optional float settings.
func FloatPtr(v float64) *float64 {
	return &v
}

// String renders the settings for logs without the API key.
func (g GeminiConfig) String() string {
	return "endpoint=" + g.Endpoint + " models=" + strings.Join(g.Models, ",") + " thinkingBudget=" + strconv.Itoa(g.Budget())
}
