// internal/config/config.go
package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	custom_errors "commit-tracker/internal/errors"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	FeedURL          string        `mapstructure:"FEED_URL"`
	FeedFormat       string        `mapstructure:"FEED_FORMAT"`
	WebhookURL       string        `mapstructure:"WEBHOOK_URL"`
	PollIntervalRaw  string        `mapstructure:"POLL_INTERVAL"`
	PollInterval     time.Duration `mapstructure:"-"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	EmbedTitle       string        `mapstructure:"EMBED_TITLE"`
	EmbedColorRaw    string        `mapstructure:"EMBED_COLOR"`
	EmbedColor       uint32        `mapstructure:"-"`
	BotName          string        `mapstructure:"BOT_NAME"`
	BotAvatarURL     string        `mapstructure:"BOT_AVATAR_URL"`
	LedgerDriver     string        `mapstructure:"LEDGER_DRIVER"`
	DBURL            string        `mapstructure:"DB_URL"`
	KeepLast         int64         `mapstructure:"KEEP_LAST"`
	TrimMargin       int64         `mapstructure:"TRIM_MARGIN"`
	NotifyRatePerSec float64       `mapstructure:"NOTIFY_RATE_PER_SEC"`
	HTTPAddr         string        `mapstructure:"HTTP_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FEED_URL", "https://commits.facepunch.com/r/rust_reboot")
	v.SetDefault("FEED_FORMAT", "json")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("POLL_INTERVAL", "50s")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("EMBED_TITLE", "New Commit")
	v.SetDefault("EMBED_COLOR", "#CD412B")
	v.SetDefault("BOT_NAME", "Commit Tracker")
	v.SetDefault("BOT_AVATAR_URL", "")
	v.SetDefault("LEDGER_DRIVER", "sqlite")
	v.SetDefault("DB_URL", "commits.db")
	v.SetDefault("KEEP_LAST", 1000)
	v.SetDefault("TRIM_MARGIN", 100)
	v.SetDefault("NOTIFY_RATE_PER_SEC", 1.0)
	v.SetDefault("HTTP_ADDR", "")

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize parses the raw fields and validates the result.
func (c *Config) normalize() error {
	interval, err := parseInterval(c.PollIntervalRaw)
	if err != nil || interval <= 0 {
		return invalid("POLL_INTERVAL", "must be a positive duration (e.g. 50s) or a number of seconds")
	}
	c.PollInterval = interval

	color, err := ParseColor(c.EmbedColorRaw)
	if err != nil {
		return invalid("EMBED_COLOR", "must be #RRGGBB, 0xRRGGBB or a decimal value up to 16777215")
	}
	c.EmbedColor = color

	c.FeedFormat = strings.ToLower(strings.TrimSpace(c.FeedFormat))
	c.LedgerDriver = strings.ToLower(strings.TrimSpace(c.LedgerDriver))

	switch {
	case !isHTTPURL(c.FeedURL):
		return invalid("FEED_URL", "must be an absolute http(s) URL")
	case c.WebhookURL == "":
		return invalid("WEBHOOK_URL", "is a required configuration field")
	case !isHTTPURL(c.WebhookURL):
		return invalid("WEBHOOK_URL", "must be an absolute http(s) URL")
	case c.FeedFormat != "json" && c.FeedFormat != "html":
		return invalid("FEED_FORMAT", "must be json or html")
	case c.LedgerDriver != "sqlite" && c.LedgerDriver != "postgres":
		return invalid("LEDGER_DRIVER", "must be sqlite or postgres")
	case c.DBURL == "":
		return invalid("DB_URL", "is a required configuration field")
	case c.RequestTimeout <= 0:
		return invalid("REQUEST_TIMEOUT", "must be positive")
	case c.KeepLast < 1:
		return invalid("KEEP_LAST", "must be at least 1")
	case c.TrimMargin < 0:
		return invalid("TRIM_MARGIN", "must not be negative")
	case c.NotifyRatePerSec <= 0:
		return invalid("NOTIFY_RATE_PER_SEC", "must be positive")
	}
	return nil
}

// ParseColor accepts #RRGGBB, 0xRRGGBB or a decimal number.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 16
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		s, base = s[2:], 16
	}
	n, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	if n > 0xFFFFFF {
		return 0, strconv.ErrRange
	}
	return uint32(n), nil
}

// parseInterval treats a bare integer as seconds.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func invalid(field, reason string) error {
	return &custom_errors.ErrInvalidConfig{Field: field, Reason: reason}
}
