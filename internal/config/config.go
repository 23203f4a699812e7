// Package config handles application configuration from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Feed kinds.
const (
	FeedMarketplace = "marketplace"
	FeedRSS         = "rss"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
	AllowedUsersRaw  string `env:"ALLOWED_USERS"`
	AllowedUsers     []int64

	StorageBackend string `env:"STORAGE_BACKEND,default=json"`
	DataDir        string `env:"DATA_DIR,default=./data"`
	DatabasePath   string `env:"DATABASE_PATH,default=./data/bot.db"`

	FeedKind          string `env:"FEED_KIND,default=marketplace"`
	MarketplaceURL    string `env:"MARKETPLACE_URL"`
	MarketplaceCookie string `env:"MARKETPLACE_COOKIE"`
	RSSURLTemplate    string `env:"RSS_URL_TEMPLATE"`

	SearchLatitude  float64 `env:"SEARCH_LATITUDE,default=-32.95"`
	SearchLongitude float64 `env:"SEARCH_LONGITUDE,default=-60.64"`
	SearchRadiusKM  int     `env:"SEARCH_RADIUS_KM,default=65"`

	PollIntervalMin time.Duration `env:"POLL_INTERVAL_MIN,default=185s"`
	PollIntervalMax time.Duration `env:"POLL_INTERVAL_MAX,default=353s"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT,default=30s"`
	FetchMinGap     time.Duration `env:"FETCH_MIN_GAP,default=2s"`
	NotifyDelay     time.Duration `env:"NOTIFY_DELAY,default=500ms"`
	HistorySize     int           `env:"HISTORY_SIZE,default=30"`

	// HTTPListenAddr enables the read-only HTTP API. It is unauthenticated,
	// so bind it to loopback or a private network only.
	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory, if present, is loaded first without overriding
// variables that are already set.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return loadFrom(ctx, envconfig.OsLookuper())
}

func loadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	users, err := parseUsers(cfg.AllowedUsersRaw)
	if err != nil {
		return nil, err
	}
	cfg.AllowedUsers = users

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseUsers(raw string) ([]int64, error) {
	var users []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		users = append(users, uid)
	}
	return users, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.FeedKind {
	case FeedMarketplace:
		if c.MarketplaceCookie == "" {
			return errors.New("MARKETPLACE_COOKIE is required for the marketplace feed")
		}
	case FeedRSS:
		if !strings.Contains(c.RSSURLTemplate, "{query}") {
			return errors.New("RSS_URL_TEMPLATE must contain a {query} placeholder")
		}
	default:
		return fmt.Errorf("unknown FEED_KIND %q", c.FeedKind)
	}

	if c.PollIntervalMin <= 0 || c.PollIntervalMax < c.PollIntervalMin {
		return fmt.Errorf("invalid poll interval range [%s, %s]", c.PollIntervalMin, c.PollIntervalMax)
	}
	if c.FetchMinGap < 0 {
		return fmt.Errorf("FETCH_MIN_GAP must not be negative, got %s", c.FetchMinGap)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("HISTORY_SIZE must be at least 1, got %d", c.HistorySize)
	}
	if c.SearchRadiusKM < 1 {
		return fmt.Errorf("SEARCH_RADIUS_KM must be at least 1, got %d", c.SearchRadiusKM)
	}
	return nil
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
