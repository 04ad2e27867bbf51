package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vetlink/companion/backend/internal/analysis/sentiment"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	AI      AIConfig      `mapstructure:"ai"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Storage StorageConfig `mapstructure:"storage"`
	Profile ProfileConfig `mapstructure:"profile"`
	Guide   GuideConfig   `mapstructure:"guide"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Addr string `mapstructure:"-"`
}

// AIConfig holds the Ark model settings and the provider switch.
type AIConfig struct {
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	Region    string        `mapstructure:"region"`
	Timeout   time.Duration `mapstructure:"timeout"`

	Temperature *float64 `mapstructure:"-"`
	TopP        *float64 `mapstructure:"-"`
	MaxTokens   *int     `mapstructure:"-"`
}

// OpenAIConfig configures the OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// StorageConfig selects the audit and transcript store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ProfileConfig selects the profile store.
type ProfileConfig struct {
	Driver   string `mapstructure:"driver"`
	MySQLDSN string `mapstructure:"mysql_dsn"`
}

// GuideConfig tunes the conversation engine.
type GuideConfig struct {
	SupportWeight     float64 `mapstructure:"support_weight"`
	PromptTurns       int     `mapstructure:"prompt_turns"`
	EscalationWindow  int     `mapstructure:"escalation_window"`
	SuggestionLimit   int     `mapstructure:"suggestion_limit"`
	FlagBufferSize    int     `mapstructure:"flag_buffer_size"`
	ReplaceConfidence float64 `mapstructure:"replace_confidence"`
}

// AuditConfig tunes the background write dispatcher.
type AuditConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// LogConfig controls the root zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// envBindings keeps the variable names earlier deployments already use.
var envBindings = map[string][]string{
	"server.port":     {"PORT"},
	"ai.api_key":      {"ARK_API_KEY"},
	"ai.access_key":   {"ARK_ACCESS_KEY"},
	"ai.secret_key":   {"ARK_SECRET_KEY"},
	"ai.model":        {"Model", "ARK_MODEL"},
	"ai.base_url":     {"ARK_BASE_URL"},
	"ai.region":       {"ARK_REGION"},
	"ai.temperature":  {"ARK_TEMPERATURE"},
	"ai.top_p":        {"ARK_TOP_P"},
	"ai.max_tokens":   {"ARK_MAX_TOKENS"},
	"openai.api_key":  {"OPENAI_API_KEY"},
	"openai.base_url": {"OPENAI_BASE_URL"},
	"openai.model":    {"OPENAI_MODEL"},
	"log.level":       {"LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.access_key", "")
	v.SetDefault("ai.secret_key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ai.region", "cn-beijing")
	v.SetDefault("ai.timeout", "30s")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 512)
	v.SetDefault("openai.temperature", 0.4)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "data/companion.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("profile.driver", "memory")
	v.SetDefault("profile.mysql_dsn", "")

	v.SetDefault("guide.support_weight", 1.5)
	v.SetDefault("guide.prompt_turns", 5)
	v.SetDefault("guide.escalation_window", 6)
	v.SetDefault("guide.suggestion_limit", 5)
	v.SetDefault("guide.flag_buffer_size", 200)
	v.SetDefault("guide.replace_confidence", 0.8)

	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.queue_size", 256)
	v.SetDefault("audit.max_attempts", 3)
	v.SetDefault("audit.retry_backoff", "200ms")
	v.SetDefault("audit.drain_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, the optional CONFIG_FILE and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if v.IsSet("ai.temperature") && strings.TrimSpace(v.GetString("ai.temperature")) != "" {
		val := v.GetFloat64("ai.temperature")
		cfg.AI.Temperature = &val
	}
	if v.IsSet("ai.top_p") && strings.TrimSpace(v.GetString("ai.top_p")) != "" {
		val := v.GetFloat64("ai.top_p")
		cfg.AI.TopP = &val
	}
	if v.IsSet("ai.max_tokens") && strings.TrimSpace(v.GetString("ai.max_tokens")) != "" {
		val := v.GetInt("ai.max_tokens")
		cfg.AI.MaxTokens = &val
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = detectProvider(cfg)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Profile.Driver = strings.ToLower(strings.TrimSpace(cfg.Profile.Driver))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listenAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("%w: PORT value %q", ErrInvalid, port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func detectProvider(cfg Config) string {
	switch {
	case cfg.AI.Enabled():
		return "ark"
	case cfg.OpenAI.APIKey != "":
		return "openai"
	default:
		return "none"
	}
}

func (c *Config) validate() error {
	switch c.AI.Provider {
	case "ark":
		if !c.AI.Enabled() {
			return fmt.Errorf("%w: ark provider needs ARK_API_KEY + Model or an AK/SK pair", ErrInvalid)
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: openai provider needs OPENAI_API_KEY", ErrInvalid)
		}
	case "none":
	default:
		return fmt.Errorf("%w: unknown ai.provider %q", ErrInvalid, c.AI.Provider)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required", ErrInvalid)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalid, c.Storage.Driver)
	}

	switch c.Profile.Driver {
	case "memory":
	case "mysql":
		if c.Profile.MySQLDSN == "" {
			return fmt.Errorf("%w: profile.mysql_dsn is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown profile.driver %q", ErrInvalid, c.Profile.Driver)
	}

	if c.Guide.SupportWeight <= 0 || c.Guide.SupportWeight > sentiment.MaxSupportWeight {
		return fmt.Errorf("%w: guide.support_weight must be in (0, %g]", ErrInvalid, sentiment.MaxSupportWeight)
	}
	if c.Guide.PromptTurns < 0 || c.Guide.EscalationWindow <= 0 || c.Guide.SuggestionLimit <= 0 {
		return fmt.Errorf("%w: guide windows and limits must be positive", ErrInvalid)
	}
	if c.Audit.Workers <= 0 || c.Audit.QueueSize <= 0 || c.Audit.MaxAttempts <= 0 {
		return fmt.Errorf("%w: audit workers, queue size and attempts must be positive", ErrInvalid)
	}
	return nil
}

// Enabled reports whether the required Ark credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.Timeout = &timeout
	}

	return ark.NewChatModel(ctx, cfg)
}

// NewLogger builds the root logger.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Level)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}
