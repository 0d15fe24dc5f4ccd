package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Simulator  Simulator  `mapstructure:"simulator"`
	Model      Model      `mapstructure:"model"`
	Dashboard  Dashboard  `mapstructure:"dashboard"`
	News       News       `mapstructure:"news"`
	MarketData MarketData `mapstructure:"market_data"`
	Analysis   Analysis   `mapstructure:"analysis"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Simulator holds the configuration of the synthetic tick generator.
type Simulator struct {
	StartPrice float64 `mapstructure:"start_price"`
	Seed       int64   `mapstructure:"seed"`      // 0 seeds from the clock
	Retention  int     `mapstructure:"retention"` // 0 keeps every tick
}

// Model holds the stress model hyperparameters.
type Model struct {
	MinRows       int     `mapstructure:"min_rows"`
	Threshold     float64 `mapstructure:"threshold"`
	Trees         int     `mapstructure:"trees"`
	Clusters      int     `mapstructure:"clusters"`
	Contamination float64 `mapstructure:"contamination"`
	Seed          int64   `mapstructure:"seed"`
}

// Dashboard holds the configuration of the live refresh loop.
type Dashboard struct {
	Name            string        `mapstructure:"name"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MAWindow        int           `mapstructure:"ma_window"`
	Persist         bool          `mapstructure:"persist"`
}

// News holds the configuration for the headline search API.
type News struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"api_key"`
	Language       string        `mapstructure:"language"`
	SortBy         string        `mapstructure:"sort_by"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// MarketData holds the configuration for the daily bars API.
type MarketData struct {
	BaseURL        string        `mapstructure:"base_url"`
	KeyID          string        `mapstructure:"key_id"`
	SecretKey      string        `mapstructure:"secret_key"`
	Feed           string        `mapstructure:"feed"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Analysis holds the configuration of the batch pipeline.
type Analysis struct {
	Symbol             string  `mapstructure:"symbol"`
	Query              string  `mapstructure:"query"`
	VolatilityWindow   int     `mapstructure:"volatility_window"`
	TradingDays        int     `mapstructure:"trading_days"`
	SentimentThreshold float64 `mapstructure:"sentiment_threshold"`
	Contamination      float64 `mapstructure:"contamination"`
	TestSize           float64 `mapstructure:"test_size"`
	Seed               int64   `mapstructure:"seed"`
	HeadlinesShown     int     `mapstructure:"headlines_shown"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the web servers.
type Server struct {
	Port   int `mapstructure:"port"`
	UIPort int `mapstructure:"ui_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN   string `mapstructure:"dsn"`
	Reset bool   `mapstructure:"reset"`
}

// LoadConfig reads config.yml from path, falling back to defaults when the
// file is missing. Environment variables override both, e.g. NEWS_API_KEY.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	err = config.Validate()
	return
}

// Default returns the built-in configuration.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&config)
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulator.start_price", 100.0)
	v.SetDefault("simulator.seed", 0)
	v.SetDefault("simulator.retention", 0)

	v.SetDefault("model.min_rows", 30)
	v.SetDefault("model.threshold", 2.5)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.clusters", 3)
	v.SetDefault("model.contamination", 0.05)
	v.SetDefault("model.seed", 42)

	v.SetDefault("dashboard.name", "market-stress")
	v.SetDefault("dashboard.refresh_interval", time.Second)
	v.SetDefault("dashboard.ma_window", 10)
	v.SetDefault("dashboard.persist", true)

	v.SetDefault("news.base_url", "https://newsapi.org")
	v.SetDefault("news.api_key", "")
	v.SetDefault("news.language", "en")
	v.SetDefault("news.sort_by", "publishedAt")
	v.SetDefault("news.timeout", 10*time.Second)
	v.SetDefault("news.max_retries", 1)
	v.SetDefault("news.rate_limit", 5)       // requests per second
	v.SetDefault("news.rate_limit_burst", 1) // burst size

	v.SetDefault("market_data.base_url", "https://data.alpaca.markets")
	v.SetDefault("market_data.key_id", "")
	v.SetDefault("market_data.secret_key", "")
	v.SetDefault("market_data.feed", "iex")
	v.SetDefault("market_data.timeout", 10*time.Second)
	v.SetDefault("market_data.max_retries", 1)
	v.SetDefault("market_data.rate_limit", 5)
	v.SetDefault("market_data.rate_limit_burst", 1)

	v.SetDefault("analysis.symbol", "SPY")
	v.SetDefault("analysis.query", "stock market OR inflation OR recession")
	v.SetDefault("analysis.volatility_window", 10)
	v.SetDefault("analysis.trading_days", 252)
	v.SetDefault("analysis.sentiment_threshold", 0.1)
	v.SetDefault("analysis.contamination", 0.1)
	v.SetDefault("analysis.test_size", 0.3)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.headlines_shown", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ui_port", 8081)

	v.SetDefault("database.dsn", "market_stress.db")
	v.SetDefault("database.reset", false)
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Simulator.StartPrice < 1 {
		errs = append(errs, fmt.Errorf("simulator.start_price must be at least 1, got %v", c.Simulator.StartPrice))
	}
	if c.Model.MinRows < c.Model.Clusters {
		errs = append(errs, fmt.Errorf("model.min_rows (%d) must cover model.clusters (%d)", c.Model.MinRows, c.Model.Clusters))
	}
	if c.Simulator.Retention != 0 && c.Simulator.Retention < c.Model.MinRows {
		errs = append(errs, fmt.Errorf("simulator.retention (%d) is below model.min_rows (%d)", c.Simulator.Retention, c.Model.MinRows))
	}
	if c.Model.Contamination <= 0 || c.Model.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("model.contamination must be in (0, 0.5], got %v", c.Model.Contamination))
	}
	if c.Analysis.Contamination <= 0 || c.Analysis.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("analysis.contamination must be in (0, 0.5], got %v", c.Analysis.Contamination))
	}
	if c.Analysis.TestSize <= 0 || c.Analysis.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("analysis.test_size must be in (0, 1), got %v", c.Analysis.TestSize))
	}
	if c.Analysis.VolatilityWindow < 2 {
		errs = append(errs, fmt.Errorf("analysis.volatility_window must be at least 2, got %d", c.Analysis.VolatilityWindow))
	}
	if c.Dashboard.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("dashboard.refresh_interval must be positive, got %v", c.Dashboard.RefreshInterval))
	}
	return errors.Join(errs...)
}
