package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Failure policies for downstream AI provider errors that are not quota errors
const (
	FailureClosed = "closed"
	FailureOpen   = "open"
	FailureError  = "error"
)

// Config holds application configuration
type Config struct {
	Env string `yaml:"env"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Database struct {
		Type string `yaml:"type"` // "sqlite" or "postgres"
		URL  string `yaml:"url"`  // SQLite path or PostgreSQL URL
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Groq struct {
		APIKey             string        `yaml:"api_key"`
		BaseURL            string        `yaml:"base_url"`
		TranscriptionModel string        `yaml:"transcription_model"`
		ChatModel          string        `yaml:"chat_model"`
		Language           string        `yaml:"language"`
		Timeout            time.Duration `yaml:"timeout"`
		MaxElapsed         time.Duration `yaml:"max_elapsed"`
		RequestsPerMinute  int           `yaml:"requests_per_minute"` // classification only, 0 = unlimited
	} `yaml:"groq"`

	// Optional secondary classifier
	Gemini struct {
		APIKey            string `yaml:"api_key"`
		ModelName         string `yaml:"model_name"`
		RequestsPerMinute int    `yaml:"requests_per_minute"`
	} `yaml:"gemini"`

	Resend struct {
		APIKey string `yaml:"api_key"`
		From   string `yaml:"from"`
		To     string `yaml:"to"`
	} `yaml:"resend"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Storage struct {
		Endpoint      string `yaml:"endpoint"`
		AccessKey     string `yaml:"access_key"`
		SecretKey     string `yaml:"secret_key"`
		Region        string `yaml:"region"`
		UseSSL        bool   `yaml:"use_ssl"`
		MaxAudioBytes int64  `yaml:"max_audio_bytes"`
	} `yaml:"storage"`

	Links struct {
		BaseURL   string        `yaml:"base_url"`
		Secret    string        `yaml:"secret"`
		MaxAge    time.Duration `yaml:"max_age"`
		SingleUse bool          `yaml:"single_use"`
	} `yaml:"links"`

	Moderation struct {
		FailurePolicy string        `yaml:"failure_policy"`
		LockTTL       time.Duration `yaml:"lock_ttl"`
	} `yaml:"moderation"`
}

// LoadConfig loads configuration from a YAML file. A missing file is not an
// error: defaults and environment variables are enough to run the service.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	config := &Config{}

	file, err := os.Open(configPath)
	switch {
	case err == nil:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config.expandEnv()
	config.applyEnvOverrides()
	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	if c.Env == "" {
		c.Env = "local"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Server.Port == "" {
		c.Server.Port = "8003"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120 * time.Second
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.URL == "" && c.Database.Type == "sqlite" {
		c.Database.URL = "./data/eco.db"
	}

	if c.Groq.BaseURL == "" {
		c.Groq.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Groq.TranscriptionModel == "" {
		c.Groq.TranscriptionModel = "whisper-large-v3"
	}
	if c.Groq.ChatModel == "" {
		c.Groq.ChatModel = "llama-3.1-8b-instant"
	}
	if c.Groq.Language == "" {
		c.Groq.Language = "es"
	}
	if c.Groq.Timeout == 0 {
		c.Groq.Timeout = 60 * time.Second
	}
	if c.Groq.MaxElapsed == 0 {
		c.Groq.MaxElapsed = 20 * time.Second
	}

	if c.Gemini.ModelName == "" {
		c.Gemini.ModelName = "gemini-2.0-flash"
	}

	if c.Resend.From == "" {
		c.Resend.From = "Eco Admin <onboarding@resend.dev>"
	}
	if c.Resend.To == "" {
		c.Resend.To = "ecoaudioenterprise@gmail.com"
	}

	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Storage.MaxAudioBytes == 0 {
		c.Storage.MaxAudioBytes = 25 << 20
	}

	if c.Links.BaseURL == "" {
		c.Links.BaseURL = "http://localhost:" + c.Server.Port + "/moderate-content"
	}

	if c.Moderation.FailurePolicy == "" {
		c.Moderation.FailurePolicy = FailureClosed
	}
	if c.Moderation.LockTTL == 0 {
		c.Moderation.LockTTL = 2 * time.Minute
	}
}

// expandEnv resolves ${VAR} references in secret-bearing fields
func (c *Config) expandEnv() {
	c.Database.URL = os.ExpandEnv(c.Database.URL)
	c.Redis.Password = os.ExpandEnv(c.Redis.Password)
	c.Groq.APIKey = os.ExpandEnv(c.Groq.APIKey)
	c.Gemini.APIKey = os.ExpandEnv(c.Gemini.APIKey)
	c.Resend.APIKey = os.ExpandEnv(c.Resend.APIKey)
	c.Telegram.BotToken = os.ExpandEnv(c.Telegram.BotToken)
	c.Storage.AccessKey = os.ExpandEnv(c.Storage.AccessKey)
	c.Storage.SecretKey = os.ExpandEnv(c.Storage.SecretKey)
	c.Links.Secret = os.ExpandEnv(c.Links.Secret)
}

func (c *Config) applyEnvOverrides() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	override(&c.Env, "ENVIRONMENT")
	override(&c.Log.Level, "LOG_LEVEL")
	override(&c.Server.Port, "PORT")
	override(&c.Database.URL, "DATABASE_URL")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Groq.APIKey, "GROQ_API_KEY")
	override(&c.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.Resend.APIKey, "RESEND_API_KEY")
	override(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	override(&c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	override(&c.Storage.SecretKey, "STORAGE_SECRET_KEY")
	override(&c.Links.BaseURL, "MODERATION_BASE_URL")
	override(&c.Links.Secret, "MODERATION_SECRET")
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}

	switch c.Moderation.FailurePolicy {
	case FailureClosed, FailureOpen, FailureError:
	default:
		return fmt.Errorf("unsupported moderation failure policy %q", c.Moderation.FailurePolicy)
	}

	if c.Links.MaxAge < 0 {
		return fmt.Errorf("links.max_age must not be negative")
	}

	return nil
}

// MissingSecrets lists the secrets the moderation webhook cannot run without.
// The webhook answers 500 without processing while this is non-empty.
func (c *Config) MissingSecrets() []string {
	var missing []string
	if c.Groq.APIKey == "" {
		missing = append(missing, "groq.api_key")
	}
	if c.Resend.APIKey == "" {
		missing = append(missing, "resend.api_key")
	}
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Links.Secret == "" {
		missing = append(missing, "links.secret")
	}
	return missing
}

// RedisEnabled reports whether a Redis address is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// StorageEnabled reports whether blob removal can be performed
func (c *Config) StorageEnabled() bool {
	return c.Storage.Endpoint != "" && c.Storage.AccessKey != "" && c.Storage.SecretKey != ""
}

// TelegramEnabled reports whether the admin Telegram channel is configured
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}
