// Package config loads the server configuration.
//
// Sources, later ones winning:
//  1. Built-in defaults (Default)
//  2. An optional YAML file (-config flag or CONFIG_PATH)
//  3. A .env file in the working directory, loaded into the process environment
//  4. Environment variables
//
// Missing API keys are not errors: the assistant and the mailer degrade at
// runtime and say so in their output.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	MailProviderMailerSend = "mailersend"
	MailProviderSMTP       = "smtp"
)

type Config struct {
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	Auth      AuthConfig      `yaml:"auth"`
	Assistant AssistantConfig `yaml:"assistant"`
	Mail      MailConfig      `yaml:"mail"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	SessionSecret string        `yaml:"session_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
	// RateLimit is the number of login, signup and OTP requests allowed per
	// client IP per minute. Zero disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type AssistantConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	TypingDelay time.Duration `yaml:"typing_delay"`
}

type MailConfig struct {
	Provider string     `yaml:"provider"`
	APIKey   string     `yaml:"api_key"`
	Sender   string     `yaml:"sender"`
	Endpoint string     `yaml:"endpoint"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:     8080,
		DBPath:   "data/users.db",
		DataDir:  "user_data",
		LogLevel: "info",
		Auth: AuthConfig{
			TokenTTL:  24 * time.Hour,
			RateLimit: 10,
		},
		Assistant: AssistantConfig{
			Model:       "gpt-3.5-turbo",
			TypingDelay: 100 * time.Millisecond,
		},
		Mail: MailConfig{
			Provider: MailProviderMailerSend,
			Endpoint: "https://api.mailersend.com/v1/email",
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
	}
}

// Load builds the configuration from all sources. path may be empty.
// envFile is loaded into the environment without overriding variables that
// are already set; a missing file is ignored.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s value %q", key, v)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
		}
		*dst = d
		return nil
	}

	str("DB_PATH", &cfg.DBPath)
	str("DATA_DIR", &cfg.DataDir)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("SESSION_SECRET", &cfg.Auth.SessionSecret)
	str("OPENAI_API_KEY", &cfg.Assistant.APIKey)
	str("OPENAI_MODEL", &cfg.Assistant.Model)
	str("OPENAI_BASE_URL", &cfg.Assistant.BaseURL)
	str("MAIL_PROVIDER", &cfg.Mail.Provider)
	str("MAILER_SEND_API_KEY", &cfg.Mail.APIKey)
	str("MAILER_SEND_SENDER", &cfg.Mail.Sender)
	str("MAILER_SEND_ENDPOINT", &cfg.Mail.Endpoint)
	str("SMTP_HOST", &cfg.Mail.SMTP.Host)
	str("SMTP_USER", &cfg.Mail.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.Mail.SMTP.Password)

	if v, ok := lookup("SECURE_COOKIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid SECURE_COOKIES value %q", v)
		}
		cfg.Auth.SecureCookies = b
	}

	for key, dst := range map[string]*int{
		"PORT":            &cfg.Port,
		"SMTP_PORT":       &cfg.Mail.SMTP.Port,
		"AUTH_RATE_LIMIT": &cfg.Auth.RateLimit,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if err := dur("TYPING_DELAY", &cfg.Assistant.TypingDelay); err != nil {
		return err
	}
	return dur("TOKEN_TTL", &cfg.Auth.TokenTTL)
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: db_path must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir must not be empty")
	}
	if c.Assistant.TypingDelay < 0 {
		return errors.New("config: typing_delay must not be negative")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: token_ttl must be positive")
	}
	if c.Auth.RateLimit < 0 {
		return errors.New("config: rate_limit must not be negative")
	}

	c.Mail.Provider = strings.ToLower(c.Mail.Provider)
	switch c.Mail.Provider {
	case MailProviderMailerSend, MailProviderSMTP:
	default:
		return fmt.Errorf("config: unknown mail provider %q", c.Mail.Provider)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// RandomSecret returns 32 random bytes hex-encoded. Used when a signing
// secret is not configured; sessions then do not survive a restart.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
