package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/suPer8Hu/kel/internal/ai"
)

const (
	TitlePolicyPrompt  = "prompt"
	TitlePolicySummary = "summary"
)

type Config struct {
	HTTPAddr string `toml:"http_addr"`

	DBDriver string `toml:"db_driver"`
	DBDSN    string `toml:"db_dsn"`

	// AI provider endpoints. Credentials and model live in persisted settings.
	OpenRouterBaseURL  string `toml:"openrouter_base_url"`
	OpenRouterSiteURL  string `toml:"openrouter_site_url"`
	OpenRouterAppName  string `toml:"openrouter_app_name"`
	AnthropicBaseURL   string `toml:"anthropic_base_url"`
	AnthropicVersion   string `toml:"anthropic_version"`
	AnthropicMaxTokens int    `toml:"anthropic_max_tokens"`
	DefaultModel       string `toml:"default_model"`

	TitlePolicy    string `toml:"title_policy"`
	CaptureCommand string `toml:"capture_command"`

	// run around each capture to keep the app window out of the image
	CaptureHideCommand string `toml:"capture_hide_command"`
	CaptureShowCommand string `toml:"capture_show_command"`

	// redis event relay, disabled when RedisAddr is empty
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`

	// rabbitMQ title jobs, in-process when RabbitURL is empty
	RabbitURL         string `toml:"rabbit_url"`
	RabbitQueue       string `toml:"rabbit_queue"`
	WorkerConcurrency int    `toml:"worker_concurrency"`
}

func defaults() Config {
	return Config{
		HTTPAddr:           "127.0.0.1:4317",
		DBDriver:           "sqlite",
		DBDSN:              filepath.Join(homeDir(), ".kel", "kel.db"),
		OpenRouterBaseURL:  "https://openrouter.ai/api/v1",
		OpenRouterAppName:  "Kel",
		AnthropicBaseURL:   "https://api.anthropic.com",
		AnthropicVersion:   "2023-06-01",
		AnthropicMaxTokens: 4096,
		DefaultModel:       "anthropic/claude-sonnet-4.5",
		TitlePolicy:        TitlePolicyPrompt,
		RedisChannel:       "kel:chat:events",
		RabbitQueue:        "kel_title_jobs",
		WorkerConcurrency:  2,
	}
}

// Load builds the config from defaults, then the TOML file named by KEL_CONFIG
// (default ~/.kel/kel.toml, skipped when missing), then the environment.
func Load() (Config, error) {
	cfg := defaults()

	path := os.Getenv("KEL_CONFIG")
	if path == "" {
		path = filepath.Join(homeDir(), ".kel", "kel.toml")
	}
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "KEL_HTTP_ADDR")
	setString(&cfg.DBDriver, "DB_DRIVER")
	setString(&cfg.DBDSN, "DB_DSN")

	setString(&cfg.OpenRouterBaseURL, "OPENROUTER_BASE_URL")
	setString(&cfg.OpenRouterSiteURL, "OPENROUTER_SITE_URL")
	setString(&cfg.OpenRouterAppName, "OPENROUTER_APP_NAME")
	setString(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.AnthropicVersion, "ANTHROPIC_VERSION")
	setInt(&cfg.AnthropicMaxTokens, "ANTHROPIC_MAX_TOKENS")
	setString(&cfg.DefaultModel, "KEL_DEFAULT_MODEL")

	setString(&cfg.TitlePolicy, "CHAT_TITLE_POLICY")
	setString(&cfg.CaptureCommand, "CAPTURE_COMMAND")
	setString(&cfg.CaptureHideCommand, "CAPTURE_HIDE_COMMAND")
	setString(&cfg.CaptureShowCommand, "CAPTURE_SHOW_COMMAND")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setString(&cfg.RedisChannel, "REDIS_CHANNEL")

	setString(&cfg.RabbitURL, "RABBIT_URL")
	setString(&cfg.RabbitQueue, "RABBIT_QUEUE")
	setInt(&cfg.WorkerConcurrency, "WORKER_CONCURRENCY")
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER=%q", c.DBDriver)
	}
	switch c.TitlePolicy {
	case TitlePolicyPrompt, TitlePolicySummary:
	default:
		return fmt.Errorf("config: unsupported CHAT_TITLE_POLICY=%q", c.TitlePolicy)
	}
	if c.AnthropicMaxTokens <= 0 {
		return fmt.Errorf("config: ANTHROPIC_MAX_TOKENS must be positive, got %d", c.AnthropicMaxTokens)
	}
	if c.WorkerConcurrency <= 0 || c.WorkerConcurrency > 50 {
		return fmt.Errorf("config: WORKER_CONCURRENCY must be in 1..50, got %d", c.WorkerConcurrency)
	}
	return nil
}

// ProviderEndpoints is the non-secret provider setup for the gateway registry.
func (c Config) ProviderEndpoints() ai.Endpoints {
	return ai.Endpoints{
		OpenRouterBaseURL:  c.OpenRouterBaseURL,
		OpenRouterSiteURL:  c.OpenRouterSiteURL,
		OpenRouterAppName:  c.OpenRouterAppName,
		AnthropicBaseURL:   c.AnthropicBaseURL,
		AnthropicVersion:   c.AnthropicVersion,
		AnthropicMaxTokens: c.AnthropicMaxTokens,
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse, keeping the previous layer.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}
