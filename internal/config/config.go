// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed sources.
const (
	SourceAPI = "api"
	SourceRSS = "rss"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	APIBaseURL       string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64
	UserID           string

	FeedSource   string
	RSSURL       string
	FeedRegion   string
	FeedCategory string
	FeedPageSize int
	PollInterval time.Duration
	HTTPTimeout  time.Duration

	NotifyChatID int64
	NotifyRate   float64
	Location     *time.Location
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	source := strings.ToLower(envOrDefault("FEED_SOURCE", SourceAPI))
	if source != SourceAPI && source != SourceRSS {
		return nil, fmt.Errorf("FEED_SOURCE must be %q or %q, got %q", SourceAPI, SourceRSS, source)
	}
	rssURL := os.Getenv("RSS_URL")
	if source == SourceRSS && rssURL == "" {
		return nil, fmt.Errorf("RSS_URL is required when FEED_SOURCE=rss")
	}

	pageSize, err := positiveInt("FEED_PAGE_SIZE", 10)
	if err != nil {
		return nil, err
	}
	pollInterval, err := duration("POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := duration("HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	var chatID int64
	if raw := os.Getenv("NOTIFY_CHAT_ID"); raw != "" {
		chatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_CHAT_ID %q: %w", raw, err)
		}
	}

	rate := 20.0
	if raw := os.Getenv("NOTIFY_RATE"); raw != "" {
		rate, err = strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("NOTIFY_RATE must be a positive number, got %q", raw)
		}
	}

	loc := time.Local
	if raw := os.Getenv("TIMEZONE"); raw != "" {
		loc, err = time.LoadLocation(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", raw, err)
		}
	}

	return &Config{
		TelegramBotToken: token,
		APIBaseURL:       envOrDefault("API_BASE_URL", "http://localhost:8000"),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/hollowscan.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		UserID:           os.Getenv("HOLLOWSCAN_USER_ID"),
		FeedSource:       source,
		RSSURL:           rssURL,
		FeedRegion:       envOrDefault("FEED_REGION", "USA Stores"),
		FeedCategory:     envOrDefault("FEED_CATEGORY", "ALL"),
		FeedPageSize:     pageSize,
		PollInterval:     pollInterval,
		HTTPTimeout:      httpTimeout,
		NotifyChatID:     chatID,
		NotifyRate:       rate,
		Location:         loc,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}
