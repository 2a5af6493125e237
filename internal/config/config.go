package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gamingbot/internal/scheduler"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken   string
	DatabaseDSN    string
	DatabaseDriver string
	RedisDSN       string

	CommandPrefix  string
	SubscriberRole string
	Cooldown       time.Duration
	DMRatePerSec   int
	RosterRefresh  string

	LogLevel     string
	LogSinkLevel string
	LogGuildID   string
	LogChannel   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	config := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		DatabaseDriver: strings.ToLower(getenvDefault("DATABASE_DRIVER", "postgres")),
		RedisDSN:       os.Getenv("REDIS_DSN"),
		CommandPrefix:  getenvDefault("COMMAND_PREFIX", "!"),
		SubscriberRole: getenvDefault("SUBSCRIBER_ROLE", "DM"),
		RosterRefresh:  getenvDefault("ROSTER_REFRESH", "@every 30m"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		LogSinkLevel:   getenvDefault("LOG_SINK_LEVEL", "info"),
		LogGuildID:     os.Getenv("LOG_GUILD_ID"),
		LogChannel:     getenvDefault("LOG_CHANNEL", "testingchannel"),
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	switch config.DatabaseDriver {
	case "postgres", "pgx", "sqlite":
	default:
		return nil, &ConfigError{Field: "DATABASE_DRIVER", Message: "DATABASE_DRIVER must be one of postgres, pgx, sqlite"}
	}

	cooldown, err := time.ParseDuration(getenvDefault("NOTIFY_COOLDOWN", "4h"))
	if err != nil || cooldown <= 0 {
		return nil, &ConfigError{Field: "NOTIFY_COOLDOWN", Message: "NOTIFY_COOLDOWN must be a positive duration such as 4h"}
	}
	config.Cooldown = cooldown

	rps, err := strconv.Atoi(getenvDefault("DM_RATE_PER_SEC", "5"))
	if err != nil || rps <= 0 {
		return nil, &ConfigError{Field: "DM_RATE_PER_SEC", Message: "DM_RATE_PER_SEC must be a positive integer"}
	}
	config.DMRatePerSec = rps

	if config.RosterRefresh != "off" {
		if err := scheduler.Validate(config.RosterRefresh); err != nil {
			return nil, &ConfigError{Field: "ROSTER_REFRESH", Message: "ROSTER_REFRESH must be a cron spec such as @every 30m, or off"}
		}
	}

	return config, nil
}

func getenvDefault(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}
