package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DisplayMode controls how the host renders the widget.
type DisplayMode string

const (
	DisplayInline DisplayMode = "inline"
	DisplayModal  DisplayMode = "modal"
)

// Config holds SDK configuration. Everything here is static for the
// lifetime of a widget instance; per-call state lives on the
// orchestrator.
type Config struct {
	APIBaseURL  string
	EmbedKey    string
	EmbedOrigin string

	// Slug mode: operate against one fixed event type instead of the
	// embed key's full list.
	EventSlug string
	EventOrg  string

	DisplayMode DisplayMode
	Theme       string
	Timezone    string
	LogLevel    string

	SlotCacheTTL   time.Duration
	SlotWindowDays int

	// AutoWidgetToken fetches a signed widget token before submission.
	AutoWidgetToken bool

	PaymentPublishableKey string

	RequestTimeout time.Duration
	MaxRetries     int

	// Redis profile storage (optional, server-side hosts).
	RedisAddr     string
	RedisPassword string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		APIBaseURL:            getEnv("CALEMLY_API_BASE_URL", "https://api.calemly.com"),
		EmbedKey:              getEnv("CALEMLY_EMBED_KEY", ""),
		EmbedOrigin:           getEnv("CALEMLY_EMBED_ORIGIN", ""),
		EventSlug:             getEnv("CALEMLY_EVENT_SLUG", ""),
		EventOrg:              getEnv("CALEMLY_EVENT_ORG", ""),
		DisplayMode:           DisplayMode(getEnv("CALEMLY_DISPLAY_MODE", string(DisplayInline))),
		Theme:                 getEnv("CALEMLY_THEME", "light"),
		Timezone:              getEnv("CALEMLY_TIMEZONE", ""),
		LogLevel:              getEnv("CALEMLY_LOG_LEVEL", "info"),
		SlotCacheTTL:          getEnvAsDuration("CALEMLY_SLOT_CACHE_TTL", 45*time.Second),
		SlotWindowDays:        getEnvAsInt("CALEMLY_SLOT_WINDOW_DAYS", 7),
		AutoWidgetToken:       getEnvAsBool("CALEMLY_AUTO_WIDGET_TOKEN", false),
		PaymentPublishableKey: getEnv("CALEMLY_PAYMENT_PUBLISHABLE_KEY", ""),
		RequestTimeout:        getEnvAsDuration("CALEMLY_REQUEST_TIMEOUT", 20*time.Second),
		MaxRetries:            getEnvAsInt("CALEMLY_MAX_RETRIES", 2),
		RedisAddr:             getEnv("CALEMLY_REDIS_ADDR", ""),
		RedisPassword:         getEnv("CALEMLY_REDIS_PASSWORD", ""),
	}
}

// Validate checks that the config names a usable widget context.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return errors.New("config: API base URL is required")
	}
	if c.EmbedKey == "" && c.EventSlug == "" {
		return errors.New("config: either an embed key or an event slug is required")
	}
	switch c.DisplayMode {
	case DisplayInline, DisplayModal, "":
	default:
		return errors.New("config: display mode must be inline or modal")
	}
	if c.SlotWindowDays <= 0 {
		return errors.New("config: slot window must be at least one day")
	}
	return nil
}

// SingleEvent reports whether the widget is pinned to one event type.
func (c *Config) SingleEvent() bool {
	return c.EventSlug != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
