package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Plex
	PlexServerURL      string
	PlexToken          string
	PlexLibrarySection string  // Optional numeric section key to scope the poll
	PlexAccountID      int     // History account filter (default: 1, the owner)
	CompletionFraction float64 // View offset / duration ratio counting as "watched"

	// Letterboxd
	LetterboxdUsername string
	LetterboxdPassword string
	MatchThreshold     float64 // Minimum title similarity for a fuzzy film match

	// Discord
	DiscordWebhookURL        string
	DiscordLoggingWebhookURL string
	DiscordUserID            string // Mentioned in notifications when set

	// Diary
	DateThresholdHour int // Watches before this hour log as the previous day

	// Polling
	PollIntervalMinutes int

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/boxdarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("PLEX_ACCOUNT_ID", 1)
	viper.SetDefault("COMPLETION_FRACTION", 0.9)
	viper.SetDefault("MATCH_THRESHOLD", 0.85)
	viper.SetDefault("DATE_THRESHOLD_HOUR", 7)
	viper.SetDefault("POLL_INTERVAL_MINUTES", 15)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "boxdarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Plex
		PlexServerURL:      viper.GetString("PLEX_SERVER_URL"),
		PlexToken:          viper.GetString("PLEX_TOKEN"),
		PlexLibrarySection: viper.GetString("PLEX_LIBRARY_SECTION"),
		PlexAccountID:      viper.GetInt("PLEX_ACCOUNT_ID"),
		CompletionFraction: viper.GetFloat64("COMPLETION_FRACTION"),

		// Letterboxd
		LetterboxdUsername: viper.GetString("LETTERBOXD_USERNAME"),
		LetterboxdPassword: viper.GetString("LETTERBOXD_PASSWORD"),
		MatchThreshold:     viper.GetFloat64("MATCH_THRESHOLD"),

		// Discord
		DiscordWebhookURL:        viper.GetString("DISCORD_WEBHOOK_URL"),
		DiscordLoggingWebhookURL: viper.GetString("DISCORD_LOGGING_WEBHOOK_URL"),
		DiscordUserID:            viper.GetString("DISCORD_USER_ID"),

		// Diary
		DateThresholdHour: viper.GetInt("DATE_THRESHOLD_HOUR"),

		// Polling
		PollIntervalMinutes: viper.GetInt("POLL_INTERVAL_MINUTES"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		DatabaseFile: filepath.Join(configDir, "boxdarr.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.PlexServerURL == "" {
		return nil, fmt.Errorf("PLEX_SERVER_URL is required")
	}
	if config.PlexToken == "" {
		return nil, fmt.Errorf("PLEX_TOKEN is required")
	}
	if config.LetterboxdUsername == "" {
		return nil, fmt.Errorf("LETTERBOXD_USERNAME is required")
	}
	if config.LetterboxdPassword == "" {
		return nil, fmt.Errorf("LETTERBOXD_PASSWORD is required")
	}
	if config.DiscordWebhookURL == "" {
		return nil, fmt.Errorf("DISCORD_WEBHOOK_URL is required")
	}

	// Validate ranges
	if config.DateThresholdHour < 0 || config.DateThresholdHour > 23 {
		return nil, fmt.Errorf("DATE_THRESHOLD_HOUR must be between 0 and 23, got %d", config.DateThresholdHour)
	}
	if config.CompletionFraction <= 0 || config.CompletionFraction > 1 {
		return nil, fmt.Errorf("COMPLETION_FRACTION must be in (0, 1], got %v", config.CompletionFraction)
	}
	if config.MatchThreshold <= 0 || config.MatchThreshold > 1 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", config.MatchThreshold)
	}
	if config.PollIntervalMinutes < 1 {
		return nil, fmt.Errorf("POLL_INTERVAL_MINUTES must be at least 1, got %d", config.PollIntervalMinutes)
	}

	return config, nil
}
