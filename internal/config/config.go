package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the processes look for the config file.
const DefaultPath = "internal/config/config.yaml"

var ErrProviderNotConfigured = errors.New("payment provider not configured")

// Config top-level struct
type Config struct {
	Server     ServerConfig                         `yaml:"server"`
	Postgres   PostgresConfig                       `yaml:"postgres"`
	Redis      RedisConfig                          `yaml:"redis"`
	Kafka      KafkaConfig                          `yaml:"kafka"`
	RateLimit  RateLimitConfig                      `yaml:"ratelimit"`
	Auth       AuthConfig                           `yaml:"auth"`
	Tenancy    TenancyConfig                        `yaml:"tenancy"`
	Providers  map[string]ProviderConfig            `yaml:"providers"`
	Tenants    map[string]map[string]ProviderConfig `yaml:"tenants"`
	CardIntent CardIntentConfig                     `yaml:"card_intent"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// AuthConfig holds the HMAC secret cashier tokens are signed with.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type TenancyConfig struct {
	DefaultTenant string `yaml:"default_tenant"`
}

// ProviderConfig is one provider's settings. In a tenant block a nil
// Livemode keeps the default block's mode.
type ProviderConfig struct {
	Livemode *bool             `yaml:"livemode"`
	Settings map[string]string `yaml:"settings"`
}

type CardIntentConfig struct {
	WebhookSecret string        `yaml:"webhook_secret"`
	Tolerance     time.Duration `yaml:"tolerance"`
}

// Path returns $CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads yaml file, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Postgres.DSN = c.Postgres.DSN + " password=" + pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if s := os.Getenv("AUTH_JWT_SECRET"); s != "" {
		c.Auth.JWTSecret = s
	}
	if s := os.Getenv("CARD_INTENT_WEBHOOK_SECRET"); s != "" {
		c.CardIntent.WebhookSecret = s
	}
	if s := os.Getenv("CARD_INTENT_SECRET_KEY"); s != "" {
		c.setProviderSetting("stripe_intent", "secret_key", s)
	}
	if s := os.Getenv("CARD_INTENT_TEST_SECRET_KEY"); s != "" {
		c.setProviderSetting("stripe_intent", "test_secret_key", s)
	}
}

func (c *Config) applyDefaults() {
	if c.Tenancy.DefaultTenant == "" {
		c.Tenancy.DefaultTenant = "1"
	}
	if c.CardIntent.Tolerance == 0 {
		c.CardIntent.Tolerance = 300 * time.Second
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RPS
	}
}

func (c *Config) setProviderSetting(provider, key, value string) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	pc := c.Providers[provider]
	if pc.Settings == nil {
		pc.Settings = map[string]string{}
	}
	pc.Settings[key] = value
	c.Providers[provider] = pc
}

// Resolve returns a provider's settings and mode for a tenant. Tenant
// settings override the default block key by key.
func (c *Config) Resolve(ctx context.Context, provider, tenantID string) (map[string]string, bool, error) {
	base, hasBase := c.Providers[provider]
	override, hasOverride := c.Tenants[tenantID][provider]
	if !hasBase && !hasOverride {
		return nil, false, fmt.Errorf("%w: %s for tenant %s", ErrProviderNotConfigured, provider, tenantID)
	}

	settings := make(map[string]string, len(base.Settings)+len(override.Settings))
	for k, v := range base.Settings {
		settings[k] = v
	}
	for k, v := range override.Settings {
		settings[k] = v
	}
	livemode := base.Livemode != nil && *base.Livemode
	if override.Livemode != nil {
		livemode = *override.Livemode
	}
	return settings, livemode, nil
}
