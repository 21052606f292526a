package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kitbuilder587/boing-search/internal/rotation"
)

var (
	ErrMissingProxies   = errors.New("at least one proxy is required (use \"direct\" for no proxy)")
	ErrMissingAPIKey    = errors.New("SERPAPI_API_KEY is required")
	ErrInvalidPort      = errors.New("invalid server port")
	ErrNegativeSpacing  = errors.New("scrape spacing must not be negative")
	ErrInvalidRateLimit = errors.New("rate limit must be positive")
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Scrape    ScrapeConfig    `toml:"scrape"`
	SerpAPI   SerpAPIConfig   `toml:"serpapi"`
	Policy    PolicyConfig    `toml:"policy"`
	Telegram  TelegramConfig  `toml:"telegram"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// BasePath - публичный адрес сервиса, нужен для ссылок "next" в ответах.
	BasePath string `toml:"base_path"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string `toml:"level"`
	// Format: "json" или "console". Пусто - выбирается по уровню.
	Format string `toml:"format"`
}

type ScrapeConfig struct {
	BaseURL    string   `toml:"base_url"`
	NextURL    string   `toml:"next_url"`
	Region     string   `toml:"region"`
	Timeout    Duration `toml:"timeout"`
	Spacing    Duration `toml:"spacing"`
	Proxies    []string `toml:"proxies"`
	UserAgents []string `toml:"user_agents"`
}

type SerpAPIConfig struct {
	APIKey     string   `toml:"api_key"`
	BaseURL    string   `toml:"base_url"`
	Timeout    Duration `toml:"timeout"`
	AccountTTL Duration `toml:"account_ttl"`
}

type PolicyConfig struct {
	ExtraTerms []string `toml:"extra_terms"`
}

type TelegramConfig struct {
	Token string `toml:"token"`
	Debug bool   `toml:"debug"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// Duration reads "1s", "500ms" and the like from TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			BasePath: "http://localhost:8080/",
		},
		Log: LogConfig{Level: "info"},
		Scrape: ScrapeConfig{
			BaseURL: "http://lite.duckduckgo.com/lite/",
			NextURL: "https://lite.duckduckgo.com/lite/",
			Region:  "wt-wt",
			Timeout: Duration{15 * time.Second},
			Spacing: Duration{time.Second},
		},
		SerpAPI: SerpAPIConfig{
			BaseURL:    "https://serpapi.com",
			Timeout:    Duration{30 * time.Second},
			AccountTTL: Duration{5 * time.Minute},
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: 10},
	}
}

// Load builds the config from defaults, then the TOML file at path (if it
// exists), then environment variables. Env wins.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("HOST", c.Server.Host)
	c.Server.Port = getEnvIntOrDefault("PORT", c.Server.Port)
	c.Server.BasePath = getEnvOrDefault("BASE_PATH", c.Server.BasePath)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)

	c.Scrape.BaseURL = getEnvOrDefault("DUCKDUCK_BASE_URL", c.Scrape.BaseURL)
	c.Scrape.NextURL = getEnvOrDefault("DUCKDUCK_NEXT_URL", c.Scrape.NextURL)
	c.Scrape.Timeout.Duration = getEnvSecondsOrDefault("DUCKDUCK_TIMEOUT_SEC", c.Scrape.Timeout.Duration)
	c.Scrape.Spacing.Duration = getEnvSecondsOrDefault("SCRAPE_SPACING_SEC", c.Scrape.Spacing.Duration)
	c.Scrape.Proxies = getEnvListOrDefault("PROXIES", ",", c.Scrape.Proxies)
	// в User-Agent бывают запятые и точки с запятой
	c.Scrape.UserAgents = getEnvListOrDefault("USER_AGENTS", "|", c.Scrape.UserAgents)

	c.SerpAPI.APIKey = getEnvOrDefault("SERPAPI_API_KEY", c.SerpAPI.APIKey)
	c.SerpAPI.BaseURL = getEnvOrDefault("SERPAPI_BASE_URL", c.SerpAPI.BaseURL)
	c.SerpAPI.Timeout.Duration = getEnvSecondsOrDefault("SERPAPI_TIMEOUT_SEC", c.SerpAPI.Timeout.Duration)
	c.SerpAPI.AccountTTL.Duration = getEnvSecondsOrDefault("SERPAPI_ACCOUNT_TTL_SEC", c.SerpAPI.AccountTTL.Duration)

	c.Policy.ExtraTerms = getEnvListOrDefault("DENYLIST_EXTRA", ",", c.Policy.ExtraTerms)

	c.Telegram.Token = getEnvOrDefault("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Telegram.Debug = getEnvBoolOrDefault("TELEGRAM_DEBUG", c.Telegram.Debug)

	c.RateLimit.RequestsPerMinute = getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", c.RateLimit.RequestsPerMinute)
}

func (c *Config) Validate() error {
	if len(c.Scrape.Proxies) == 0 {
		return ErrMissingProxies
	}
	if _, err := rotation.ParseProxies(c.Scrape.Proxies); err != nil {
		return err
	}
	if c.SerpAPI.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Scrape.Spacing.Duration < 0 {
		return ErrNegativeSpacing
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// TelegramEnabled reports whether the bot surface should start.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key, sep string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
