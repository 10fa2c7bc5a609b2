package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Telegram  TelegramConfig
	WhatsApp  WhatsAppConfig
	Kafka     KafkaConfig
	Import    ImportConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	Path   string
	DSN    string
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type TelegramConfig struct {
	BotToken  string
	ChatID    string
	APIURL    string
	ParseMode string
	Timeout   time.Duration
}

type WhatsAppConfig struct {
	Enabled     bool
	BridgeURL   string
	Timeout     time.Duration
	GroupID     string
	ChannelID   string
	ChannelName string
	Contact     string
	// AutoInit starts the session at boot instead of waiting for an
	// explicit init call.
	AutoInit bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type ImportConfig struct {
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/wildfire-alerts.db"),
			DSN:    getEnv("DATABASE_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Telegram: TelegramConfig{
			BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			APIURL:    getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			ParseMode: getEnv("TELEGRAM_PARSE_MODE", ""),
			Timeout:   getEnvDuration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:     getEnvBool("WHATSAPP_ENABLED", false),
			BridgeURL:   getEnv("WHATSAPP_BRIDGE_URL", "http://localhost:3001"),
			Timeout:     getEnvDuration("WHATSAPP_TIMEOUT", 15*time.Second),
			GroupID:     getEnv("WHATSAPP_GROUP_ID", ""),
			ChannelID:   getEnv("WHATSAPP_CHANNEL_ID", ""),
			ChannelName: getEnv("WHATSAPP_CHANNEL_NAME", ""),
			Contact:     getEnv("WHATSAPP_CONTACT", ""),
			AutoInit:    getEnvBool("WHATSAPP_AUTO_INIT", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "wildfire.incidents"),
		},
		Import: ImportConfig{
			Workers:    getEnvInt("IMPORT_WORKERS", 4),
			BufferSize: getEnvInt("IMPORT_BUFFER_SIZE", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s", c.DB.Driver)
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}

	// A half-configured bot is almost always a typo in the deployment.
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if c.WhatsApp.Enabled && c.WhatsApp.BridgeURL == "" {
		return fmt.Errorf("WHATSAPP_BRIDGE_URL is required when WhatsApp is enabled")
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.Import.Workers < 1 {
		return fmt.Errorf("import workers must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
