package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the forwarding service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	SES          SESConfig          `yaml:"ses"`
	Forwarding   ForwardingConfig   `yaml:"forwarding"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the admission-control Redis settings. Redis is optional:
// with an empty URL the rate-limit middleware is disabled entirely.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Prefix returns the rate-limit key prefix.
func (c RedisConfig) Prefix() string {
	if c.KeyPrefix == "" {
		return "rl:"
	}
	return c.KeyPrefix
}

// SESConfig holds AWS SES v2 settings for outbound confirmation mail.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	From           string `yaml:"from"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured SES call timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ForwardingConfig holds the public-facing URL layout and alias defaults.
type ForwardingConfig struct {
	PublicURL          string `yaml:"public_url"`
	ConfirmEndpoint    string `yaml:"confirm_endpoint"`
	DefaultAliasDomain string `yaml:"default_alias_domain"`
	ProjectURL         string `yaml:"project_url"`
}

// ConfirmEndpointOrDefault returns the confirm path with a leading slash.
func (c ForwardingConfig) ConfirmEndpointOrDefault() string {
	ep := strings.TrimSpace(c.ConfirmEndpoint)
	if ep == "" {
		ep = "/forward/confirm"
	}
	if !strings.HasPrefix(ep, "/") {
		ep = "/" + ep
	}
	return ep
}

// ConfirmationConfig tunes the token lifecycle. Zero values fall back to the
// defaults in ApplyDefaults so tests can construct it literally.
type ConfirmationConfig struct {
	TTLMinutes            int    `yaml:"ttl_minutes"`
	ResendCooldownSeconds int    `yaml:"resend_cooldown_seconds"`
	TokenLength           int    `yaml:"token_length"`
	TokenMinLength        int    `yaml:"token_min_length"`
	TokenMaxLength        int    `yaml:"token_max_length"`
	SubjectSubscribe      string `yaml:"subject_subscribe"`
	SubjectUnsubscribe    string `yaml:"subject_unsubscribe"`
	Subject               string `yaml:"subject"`
	SweepIntervalMinutes  int    `yaml:"sweep_interval_minutes"`
	RetentionDays         int    `yaml:"retention_days"`
}

// ApplyDefaults fills zero fields with production defaults.
func (c *ConfirmationConfig) ApplyDefaults() {
	if c.TTLMinutes <= 0 || c.TTLMinutes > 24*60 {
		c.TTLMinutes = 10
	}
	if c.ResendCooldownSeconds == 0 {
		c.ResendCooldownSeconds = 60
	}
	if c.TokenLength == 0 {
		c.TokenLength = 12
	}
	if c.TokenMinLength == 0 {
		c.TokenMinLength = 10
	}
	if c.TokenMaxLength == 0 {
		c.TokenMaxLength = 24
	}
	if c.Subject == "" {
		c.Subject = "Confirm your email"
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 30
	}
}

// TTL returns the token lifetime.
func (c ConfirmationConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Cooldown returns the minimum gap between (re)issuances for one email.
func (c ConfirmationConfig) Cooldown() time.Duration {
	if c.ResendCooldownSeconds < 0 {
		return 0
	}
	return time.Duration(c.ResendCooldownSeconds) * time.Second
}

// SubjectFor returns the mail subject for an intent, falling back to the
// generic subject.
func (c ConfirmationConfig) SubjectFor(intent string) string {
	switch intent {
	case "subscribe":
		if c.SubjectSubscribe != "" {
			return c.SubjectSubscribe
		}
	case "unsubscribe":
		if c.SubjectUnsubscribe != "" {
			return c.SubjectUnsubscribe
		}
	}
	return c.Subject
}

// RateLimitConfig holds the fixed-window admission-control limits.
// GlobalPerMinute of -1 disables all limiting.
type RateLimitConfig struct {
	GlobalPerMinute int `yaml:"global_per_minute"`

	SubscribePerIP10Min    int `yaml:"subscribe_per_ip_10min"`
	SubscribePerDestHour   int `yaml:"subscribe_per_dest_hour"`
	SubscribePerAliasHour  int `yaml:"subscribe_per_alias_hour"`
	ConfirmPerIP10Min      int `yaml:"confirm_per_ip_10min"`
	ConfirmPerToken10Min   int `yaml:"confirm_per_token_10min"`
	UnsubscribePerIP10Min  int `yaml:"unsubscribe_per_ip_10min"`
	UnsubscribePerAddrHour int `yaml:"unsubscribe_per_addr_hour"`
}

// Disabled reports whether admission control is switched off entirely.
func (c RateLimitConfig) Disabled() bool { return c.GlobalPerMinute < 0 }

// ApplyDefaults fills zero limits with production defaults.
func (c *RateLimitConfig) ApplyDefaults() {
	def := func(p *int, v int) {
		if *p == 0 {
			*p = v
		}
	}
	def(&c.GlobalPerMinute, 300)
	def(&c.SubscribePerIP10Min, 60)
	def(&c.SubscribePerDestHour, 6)
	def(&c.SubscribePerAliasHour, 20)
	def(&c.ConfirmPerIP10Min, 120)
	def(&c.ConfirmPerToken10Min, 10)
	def(&c.UnsubscribePerIP10Min, 40)
	def(&c.UnsubscribePerAddrHour, 6)
}

// Load reads configuration from a YAML file. A missing file is not an error;
// the zero config plus defaults plus env overrides is a valid deployment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.Confirmation.ApplyDefaults()
	cfg.RateLimit.ApplyDefaults()
	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies environment overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if present (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		cfg.SES.From = v
	}
	if v := os.Getenv("APP_PUBLIC_URL"); v != "" {
		cfg.Forwarding.PublicURL = v
	}
	if v := os.Getenv("DEFAULT_ALIAS_DOMAIN"); v != "" {
		cfg.Forwarding.DefaultAliasDomain = v
	}
	if v := envInt("CONFIRMATION_TTL_MINUTES"); v != 0 {
		cfg.Confirmation.TTLMinutes = v
	}
	if v := envInt("CONFIRMATION_RESEND_COOLDOWN_SECONDS"); v != 0 {
		cfg.Confirmation.ResendCooldownSeconds = v
	}
	if v := envInt("CONFIRMATION_TOKEN_LEN"); v != 0 {
		cfg.Confirmation.TokenLength = v
	}
	if v := envInt("SERVER_PORT"); v != 0 {
		cfg.Server.Port = v
	}
	if v := envInt("RL_GLOBAL_PER_MIN"); v != 0 {
		cfg.RateLimit.GlobalPerMinute = v
	}

	cfg.Confirmation.ApplyDefaults()
	cfg.RateLimit.ApplyDefaults()
	return cfg, nil
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
