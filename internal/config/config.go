// Package config loads brandwatch settings from defaults, an optional YAML
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every setting in the environment, e.g.
// BRANDWATCH_STORAGE_BACKEND.
const EnvPrefix = "BRANDWATCH"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Search    SearchConfig    `mapstructure:"search"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SearchConfig struct {
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	ProxyHost          string        `mapstructure:"proxy_host"`
	ProxyPort          int           `mapstructure:"proxy_port"`
	ProxyFile          string        `mapstructure:"proxy_file"`
	Endpoint           string        `mapstructure:"endpoint"`
	FallbackEndpoint   string        `mapstructure:"fallback_endpoint"`
	Limit              int           `mapstructure:"limit"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type ScrapeConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxURLs      int           `mapstructure:"max_urls"`
	// Datasets maps platform names to dataset IDs.
	Datasets map[string]string `mapstructure:"datasets"`
}

type CollectConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`
	MaxPages           int           `mapstructure:"max_pages"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Jitter             float64       `mapstructure:"jitter"`
	Fingerprint        string        `mapstructure:"fingerprint"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ProxyFile          string        `mapstructure:"proxy_file"`
	UserAgents         []string      `mapstructure:"user_agents"`
	RandomUserAgents   bool          `mapstructure:"random_user_agents"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type FeedsConfig struct {
	URLs     []string      `mapstructure:"urls"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

type SentimentConfig struct {
	// Provider is auto, llm or lexicon. auto uses the LLM when a key is set.
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	// Temperature 0 is valid and gives deterministic scoring.
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Backend is json, csv, sqlite or postgres.
	Backend  string `mapstructure:"backend"`
	Location string `mapstructure:"location"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	// Port serves /metrics during CLI runs (0 disables).
	Port int `mapstructure:"port"`
}

var defaults = map[string]any{
	"log.level":                   "info",
	"log.format":                  "text",
	"search.proxy_host":           "brd.superproxy.io",
	"search.proxy_port":           33335,
	"search.endpoint":             "https://www.google.com/search",
	"search.fallback_endpoint":    "https://html.duckduckgo.com/html",
	"search.limit":                10,
	"search.timeout":              30 * time.Second,
	"search.insecure_skip_verify": false,
	"scrape.base_url":             "https://api.brightdata.com",
	"scrape.poll_interval":        10 * time.Second,
	"scrape.max_wait":             300 * time.Second,
	"scrape.timeout":              30 * time.Second,
	"scrape.max_urls":             10,
	"collect.concurrency":         3,
	"collect.max_pages":           10,
	"collect.respect_robots":      true,
	"collect.requests_per_second": 2.0,
	"collect.jitter":              0.2,
	"collect.fingerprint":         "chrome",
	"collect.timeout":             20 * time.Second,
	"collect.random_user_agents":  false,
	"feeds.max_age":               7 * 24 * time.Hour,
	"feeds.interval":              500 * time.Millisecond,
	"sentiment.provider":          "auto",
	"sentiment.model":             "gpt-4o-mini",
	"sentiment.temperature":       0.1,
	"sentiment.timeout":           60 * time.Second,
	"storage.backend":             "json",
	"storage.location":            "./results",
	"server.addr":                 ":5000",
	"metrics.port":                0,
}

// legacyEnv maps settings onto the unprefixed variable names used by
// existing deployments.
var legacyEnv = map[string][]string{
	"search.username":    {"BRIGHT_DATA_USERNAME"},
	"search.password":    {"BRIGHT_DATA_PASSWORD"},
	"scrape.api_key":     {"BRIGHT_DATA_API_KEY"},
	"sentiment.api_key":  {"OPENAI_API_KEY"},
	"sentiment.base_url": {"OPENAI_BASE_URL"},
}

// New returns a viper instance with defaults and environment bindings set.
// Callers may bind cobra flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
	return v
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: %s: %w", p, err)
		}
	}
	return nil
}

// Load reads file (or brandwatch.yaml in the working directory when file is
// empty and one exists) into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else {
		v.SetConfigName("brandwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with. Missing credentials
// are valid.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Sentiment.Provider) {
	case "auto", "llm", "lexicon":
	default:
		errs = append(errs, fmt.Errorf("sentiment.provider must be auto, llm or lexicon, got %q", c.Sentiment.Provider))
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "json", "csv", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be json, csv, sqlite or postgres, got %q", c.Storage.Backend))
	}
	if c.Search.Limit < 1 {
		errs = append(errs, fmt.Errorf("search.limit must be at least 1, got %d", c.Search.Limit))
	}
	if c.Collect.Jitter < 0 || c.Collect.Jitter > 1 {
		errs = append(errs, fmt.Errorf("collect.jitter must be between 0 and 1, got %v", c.Collect.Jitter))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Credentials reports which external services are configured.
type Credentials struct {
	Search    bool `json:"bright_data_serp"`
	Scrape    bool `json:"bright_data_datasets"`
	Sentiment bool `json:"openai"`
}

func (c *Config) Credentials() Credentials {
	return Credentials{
		Search:    c.Search.Username != "" && c.Search.Password != "",
		Scrape:    c.Scrape.APIKey != "",
		Sentiment: c.Sentiment.APIKey != "",
	}
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
