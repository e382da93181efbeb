// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/spf13/viper"

	"repo-trend-tracker/internal/crawler"
	"repo-trend-tracker/internal/trend"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	Log           LogConfig    `mapstructure:"log"`
	HTTP          HTTPConfig   `mapstructure:"http"`
	DB            DBConfig     `mapstructure:"db"`
	Github        GithubConfig `mapstructure:"github"`
	Crawl         CrawlConfig  `mapstructure:"crawl"`
	Trend         TrendConfig  `mapstructure:"trend"`
	MigrationsURL string       `mapstructure:"migrations_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type GithubConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// CrawlConfig drives the periodic search crawl.
type CrawlConfig struct {
	SearchYears int           `mapstructure:"search_years"`
	MinStars    int           `mapstructure:"min_stars"`
	PerPage     int           `mapstructure:"per_page"`
	MaxPages    int           `mapstructure:"max_pages"`
	ItemDelay   time.Duration `mapstructure:"item_delay"`
	Schedule    string        `mapstructure:"schedule"`
	Concurrency int           `mapstructure:"concurrency"`
	OnStart     bool          `mapstructure:"on_start"`
}

// Options converts the crawl settings into the value consumed by the crawler.
func (c CrawlConfig) Options() crawler.Options {
	return crawler.Options{
		SearchYears: c.SearchYears,
		MinStars:    c.MinStars,
		PerPage:     c.PerPage,
		MaxPages:    c.MaxPages,
		ItemDelay:   c.ItemDelay,
		Schedule:    c.Schedule,
		Concurrency: c.Concurrency,
		OnStart:     c.OnStart,
	}
}

// TrendConfig holds the scoring weights and the promotion threshold.
type TrendConfig struct {
	GrowthWeight  float64 `mapstructure:"growth_weight"`
	PenaltyWeight float64 `mapstructure:"penalty_weight"`
	HalfLifeDays  float64 `mapstructure:"half_life_days"`
	Threshold     float64 `mapstructure:"threshold"`
}

// Params converts the scoring settings into the value consumed by the trend package.
func (t TrendConfig) Params() trend.Params {
	return trend.Params{
		GrowthWeight:  t.GrowthWeight,
		PenaltyWeight: t.PenaltyWeight,
		HalfLifeDays:  t.HalfLifeDays,
		Threshold:     t.Threshold,
	}
}

// tokenForHost is swapped in tests to keep the GitHub CLI config out of them.
var tokenForHost = func(host string) string {
	token, _ := auth.TokenForHost(host)
	return token
}

// LoadConfig reads configuration from file and/or environment variables.
// Nested keys map to environment variables by upper-casing and replacing
// dots with underscores, e.g. crawl.min_stars -> CRAWL_MIN_STARS.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.url", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.api_url", "")
	v.SetDefault("migrations_url", "file://migrations")
	v.SetDefault("crawl.search_years", 2)
	v.SetDefault("crawl.min_stars", 1000)
	v.SetDefault("crawl.per_page", 100)
	v.SetDefault("crawl.max_pages", 10)
	v.SetDefault("crawl.item_delay", "150ms")
	v.SetDefault("crawl.schedule", "0 0 0 */3 * *")
	v.SetDefault("crawl.concurrency", 1)
	v.SetDefault("crawl.on_start", false)
	v.SetDefault("trend.growth_weight", 1.0)
	v.SetDefault("trend.penalty_weight", 1.0)
	v.SetDefault("trend.half_life_days", 720.0)
	v.SetDefault("trend.threshold", 0.10)

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// .env entries load as flat keys (db_url); lift them onto the nested keys as
	// defaults so real environment variables still take precedence.
	for _, key := range v.AllKeys() {
		if flat := strings.ReplaceAll(key, ".", "_"); flat != key && v.InConfig(flat) {
			v.SetDefault(key, v.Get(flat))
		}
	}

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Github.Token == "" {
		cfg.Github.Token = tokenForHost("github.com")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DB.URL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.DB.Driver != DriverPostgres && c.DB.Driver != DriverSQLite {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	if c.Github.Token == "" {
		return errors.New("GITHUB_TOKEN is a required configuration field (or log in with the gh CLI)")
	}
	if c.Crawl.PerPage < 1 || c.Crawl.PerPage > 100 {
		return errors.New("CRAWL_PER_PAGE must be between 1 and 100")
	}
	if c.Crawl.MaxPages < 1 {
		return errors.New("CRAWL_MAX_PAGES must be at least 1")
	}
	if c.Crawl.SearchYears < 0 || c.Crawl.MinStars < 0 {
		return errors.New("CRAWL_SEARCH_YEARS and CRAWL_MIN_STARS must not be negative")
	}
	if c.Crawl.ItemDelay < 0 {
		return errors.New("CRAWL_ITEM_DELAY must not be negative")
	}
	if c.Crawl.Concurrency < 1 {
		return errors.New("CRAWL_CONCURRENCY must be at least 1")
	}
	if c.Crawl.Schedule == "" {
		return errors.New("CRAWL_SCHEDULE must not be empty")
	}
	if c.Trend.HalfLifeDays < 0 {
		return errors.New("TREND_HALF_LIFE_DAYS must not be negative")
	}
	return nil
}
