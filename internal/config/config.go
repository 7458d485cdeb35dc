// Package config handles loading and validation of bot configuration.
// Supports both development (env vars or CONFIG_FILE) and production
// (bot credentials from Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/ilyakaznacheev/cleanenv"

	"tradelink/internal/conversation"
)

// Config holds all bot configuration.
type Config struct {
	// Server settings
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// GCP settings (production only)
	GCPProject    string `yaml:"gcp_project" env:"GCP_PROJECT"`
	BotSecretName string `yaml:"bot_secret_name" env:"BOT_SECRET_NAME"`

	Bot      BotConfig      `yaml:"bot"`
	Chat     ChatConfig     `yaml:"chat"`
	Access   AccessConfig   `yaml:"access"`
	Store    StoreConfig    `yaml:"store"`
	Browser  BrowserConfig  `yaml:"browser"`
	Operator OperatorConfig `yaml:"operator"`
}

// BotConfig holds Telegram credentials.
// In production, they are loaded from Secret Manager as JSON.
type BotConfig struct {
	Token    string `yaml:"token" json:"bot_token" env:"BOT_TOKEN"`
	APIID    int32  `yaml:"api_id" json:"api_id" env:"TELEGRAM_API_ID"`
	APIHash  string `yaml:"api_hash" json:"api_hash" env:"TELEGRAM_API_HASH"`
	TDLibDir string `yaml:"tdlib_dir" json:"-" env:"TDLIB_DIR" env-default:"tdlib"`
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	LinkPolicy      string `yaml:"link_policy" env:"LINK_POLICY" env-default:"batch"`
	StartCommand    string `yaml:"start_command" env:"START_COMMAND" env-default:"start"`
	GenerateCommand string `yaml:"generate_command" env:"GENERATE_COMMAND" env-default:"gerar"`
}

// AccessConfig selects the group whose members may use the bot.
type AccessConfig struct {
	GroupID       int64         `yaml:"group_id" env:"ACCESS_GROUP_ID"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"MEMBERSHIP_CACHE_TTL" env-default:"5m"`
}

// StoreConfig holds storefront endpoints.
type StoreConfig struct {
	Host           string        `yaml:"host" env:"STORE_HOST" env-default:"shop.samsung.com"`
	Locale         string        `yaml:"locale" env:"STORE_LOCALE" env-default:"br"`
	CapacityAPIURL string        `yaml:"capacity_api_url" env:"CAPACITY_API_URL"`
	TradeInAPIURL  string        `yaml:"tradein_api_url" env:"TRADEIN_API_URL"`
	CatalogFile    string        `yaml:"catalog_file" env:"CATALOG_FILE"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
}

// BrowserConfig holds the discount enrollment browser settings.
type BrowserConfig struct {
	ChromePath  string        `yaml:"chrome_path" env:"CHROME_PATH"`
	Headless    bool          `yaml:"headless" env:"BROWSER_HEADLESS" env-default:"true"`
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"ENROLL_WAIT_TIMEOUT" env-default:"20s"`
	PostalCode  string        `yaml:"postal_code" env:"PLACEHOLDER_POSTAL_CODE" env-default:"01001000"`
}

// OperatorConfig protects the operator HTTP tools.
type OperatorConfig struct {
	Token string `yaml:"token" env:"OPERATOR_TOKEN"`
}

// IsProduction reports whether the bot runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads the full bot configuration.
// Priority: CONFIG_FILE (if set, env vars still override) → env vars, then
// Secret Manager for bot credentials in production.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if cfg.IsProduction() && cfg.GCPProject != "" && cfg.BotSecretName != "" {
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading bot credentials: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore reads the configuration needed by the storefront clients only.
func LoadStore() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &cfg, nil
}

// loadFromSecretManager fetches bot credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.BotSecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}
	return c.applyBotSecret(result.Payload.Data)
}

// applyBotSecret overlays the non-empty credentials in data.
func (c *Config) applyBotSecret(data []byte) error {
	var secret BotConfig
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if secret.Token != "" {
		c.Bot.Token = secret.Token
	}
	if secret.APIID != 0 {
		c.Bot.APIID = secret.APIID
	}
	if secret.APIHash != "" {
		c.Bot.APIHash = secret.APIHash
	}
	return nil
}

// validate checks everything the bot process needs.
func (c *Config) validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Bot.APIID == 0 || c.Bot.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_ID and TELEGRAM_API_HASH are required")
	}
	if c.Access.GroupID == 0 {
		return fmt.Errorf("ACCESS_GROUP_ID is required")
	}
	if _, err := conversation.ParsePolicy(c.Chat.LinkPolicy); err != nil {
		return fmt.Errorf("LINK_POLICY: %w", err)
	}
	return c.validateStore()
}

func (c *Config) validateStore() error {
	if c.Store.Host == "" || c.Store.Locale == "" {
		return fmt.Errorf("STORE_HOST and STORE_LOCALE are required")
	}
	if c.Store.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}
