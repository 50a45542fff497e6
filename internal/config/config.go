// Package config handles visawatch configuration from an optional YAML file
// with environment-variable overrides, loaded once at startup.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level visawatch configuration.
type Config struct {
	// Database is the SQLite path for account scheduling state.
	Database string `yaml:"database"`
	// CapturesDir is where diagnostic HTML/screenshot pairs are written.
	CapturesDir string `yaml:"captures_dir"`

	Telegram TelegramConfig `yaml:"telegram"`
	Browser  BrowserConfig  `yaml:"browser"`

	// CooldownMinutes is how long a rate-limited account is paused.
	CooldownMinutes int `yaml:"cooldown_minutes"`
	// MaxRetries bounds login attempts and per-click attempts.
	MaxRetries int `yaml:"max_retries"`
	// TimeoutMs bounds each element wait and page navigation.
	TimeoutMs int `yaml:"timeout_ms"`
	// CheckInterval is the scheduler cycle period.
	CheckInterval time.Duration `yaml:"check_interval"`

	// Seeds are first-run bootstrap accounts, inserted only when the
	// store is empty.
	Seeds []SeedConfig `yaml:"seeds"`
}

// TelegramConfig holds the notification credentials. Both fields empty
// disables notifications entirely.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Headless bool `yaml:"headless"`
	// Remote is the WebSocket URL of an external Chrome. Empty = launch.
	Remote string `yaml:"remote"`
}

// SeedConfig is one bootstrap account.
type SeedConfig struct {
	LoginURL string `yaml:"login_url"`
	Password string `yaml:"password"`
	Location string `yaml:"location"`
}

// Timeout returns the UI action timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Cooldown returns the rate-limit cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Load reads the optional YAML file at path (empty path skips the file),
// overlays recognised environment variables, and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	cfg.Browser.Headless = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv overlays the recognised environment variables on top of whatever
// the file provided. Environment wins.
func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v, ok := envInt("ACCOUNT_DELAY_MINUTES"); ok {
		c.CooldownMinutes = v
	}
	if v, ok := envInt("MAX_RETRIES"); ok {
		c.MaxRetries = v
	}
	if v, ok := envInt("TIMEOUT"); ok {
		c.TimeoutMs = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = envBool(v)
	}

	// Legacy numbered seed accounts.
	for i, loc := range []string{"Moscow", "St Petersburg"} {
		prefix := "ACCOUNT" + strconv.Itoa(i+1)
		url := os.Getenv(prefix + "_LOGIN_URL")
		pass := os.Getenv(prefix + "_PASSWORD")
		if url == "" || pass == "" {
			continue
		}
		if v := os.Getenv(prefix + "_LOCATION"); v != "" {
			loc = v
		}
		c.Seeds = append(c.Seeds, SeedConfig{LoginURL: url, Password: pass, Location: loc})
	}
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = "accounts.db"
	}
	if c.CapturesDir == "" {
		c.CapturesDir = "errors"
	}
	if c.CooldownMinutes <= 0 {
		c.CooldownMinutes = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 15000
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Minute
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Any non-empty unparseable value counts as enabled, matching
		// the old HEADLESS=anything behaviour.
		return true
	}
	return b
}
