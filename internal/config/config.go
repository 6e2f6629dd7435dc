package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Proxy modes for the metadata client.
const (
	ProxyOff      = "off"
	ProxyAlways   = "always"
	ProxyFallback = "fallback"
)

type Config struct {
	Env  string `env:"ENV" env-default:"prod"`
	Port string `env:"PORT" env-default:"8080"`

	BotToken    string `env:"BOT_TOKEN" env-required:"true"`
	WebhookURL  string `env:"WEBHOOK_URL"`
	AdminChatID int64  `env:"ADMIN_CHAT_ID" env-default:"0"`

	TMDBAPIKey  string `env:"TMDB_API_KEY" env-required:"true"`
	TMDBAPIBase string `env:"TMDB_API_BASE" env-default:"https://api.themoviedb.org/3"`
	ProxyURL    string `env:"PROXY_API_URL"`
	ProxyMode   string `env:"PROXY_MODE"`

	SiteURL  string `env:"CINEFLOW_URL" env-required:"true"`
	SiteName string `env:"SITE_NAME" env-default:"Cineflow"`

	GateChats       []string `env:"GATE_CHATS" env-separator:","`
	GateInviteLinks []string `env:"GATE_INVITE_LINKS" env-separator:","`
	GateAllowUsers  []string `env:"GATE_ALLOW_USERS" env-separator:","`

	MongoURI    string        `env:"MONGODB_URI"`
	CacheDriver string        `env:"CACHE_DRIVER" env-default:"memory"`
	RedisAddr   string        `env:"REDIS_ADDR"`
	CacheTTL    time.Duration `env:"CACHE_TTL" env-default:"6h"`

	SessionTTL time.Duration `env:"SESSION_TTL" env-default:"180s"`
	NoticeTTL  time.Duration `env:"NOTICE_TTL" env-default:"15s"`
	MaxPages   int           `env:"MAX_PAGES" env-default:"5"`
	RateWindow time.Duration `env:"RATE_WINDOW" env-default:"2s"`
	RateBurst  int           `env:"RATE_BURST" env-default:"5"`
}

// Load reads the configuration from the environment. A .env file at path is
// applied first when present; variables already set in the process win.
func Load(path string) (*Config, error) {
	if path != "" {
		// missing .env is fine, the environment may carry everything
		_ = godotenv.Load(path)
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.BotToken = strings.TrimSpace(c.BotToken)
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	c.SiteURL = strings.TrimRight(strings.TrimSpace(c.SiteURL), "/")
	c.TMDBAPIBase = strings.TrimRight(strings.TrimSpace(c.TMDBAPIBase), "/")
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	c.GateChats = compact(c.GateChats)
	c.GateInviteLinks = compact(c.GateInviteLinks)
	c.GateAllowUsers = compact(c.GateAllowUsers)

	switch strings.ToLower(strings.TrimSpace(c.ProxyMode)) {
	case "":
		if c.ProxyURL != "" {
			c.ProxyMode = ProxyFallback
		} else {
			c.ProxyMode = ProxyOff
		}
	case ProxyOff, ProxyAlways, ProxyFallback:
		c.ProxyMode = strings.ToLower(strings.TrimSpace(c.ProxyMode))
	default:
		return fmt.Errorf("invalid PROXY_MODE %q", c.ProxyMode)
	}
	if c.ProxyMode != ProxyOff && c.ProxyURL == "" {
		return errors.New("PROXY_MODE requires PROXY_API_URL")
	}
	if c.Env != EnvDev && c.Env != EnvProd {
		return fmt.Errorf("invalid ENV %q", c.Env)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("MAX_PAGES must be positive, got %d", c.MaxPages)
	}
	if c.RateBurst <= 0 || c.RateWindow <= 0 {
		return errors.New("RATE_WINDOW and RATE_BURST must be positive")
	}
	if _, err := c.AllowedUsers(); err != nil {
		return err
	}
	return nil
}

// AllowedUsers parses GATE_ALLOW_USERS into user ids.
func (c *Config) AllowedUsers() ([]int64, error) {
	out := make([]int64, 0, len(c.GateAllowUsers))
	for _, s := range c.GateAllowUsers {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GATE_ALLOW_USERS entry %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func compact(vals []string) []string {
	out := vals[:0]
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
