package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "REVIEWDASH"

type (
	AppConfig struct {
		Name      string `mapstructure:"name"`
		Env       string `mapstructure:"env"`
		LogLevel  string `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"` // json | console
	}

	HTTPConfig struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}

	DatabaseConfig struct {
		Driver       string `mapstructure:"driver"` // sqlite3 | pgx
		DSN          string `mapstructure:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	}

	IngestConfig struct {
		BatchSize       int           `mapstructure:"batch_size"`
		MaxAttempts     int           `mapstructure:"max_attempts"`
		BackoffBase     time.Duration `mapstructure:"backoff_base"`
		PageDelay       time.Duration `mapstructure:"page_delay"`
		DefaultMaxPages int           `mapstructure:"default_max_pages"`
		HardMaxPages    int           `mapstructure:"hard_max_pages"`
		DefaultCountry  string        `mapstructure:"default_country"`
		DefaultLanguage string        `mapstructure:"default_language"`
		Timeout         time.Duration `mapstructure:"timeout"`
	}

	PlayConfig struct {
		BaseURL  string        `mapstructure:"base_url"`
		PageSize int           `mapstructure:"page_size"`
		Timeout  time.Duration `mapstructure:"timeout"`
	}

	AppStoreConfig struct {
		RSSBaseURL    string        `mapstructure:"rss_base_url"`
		LookupBaseURL string        `mapstructure:"lookup_base_url"`
		Timeout       time.Duration `mapstructure:"timeout"`
	}

	KafkaConfig struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	}

	RedisConfig struct {
		Addr       string        `mapstructure:"addr"`
		Password   string        `mapstructure:"password"`
		DB         int           `mapstructure:"db"`
		SummaryTTL time.Duration `mapstructure:"summary_ttl"`
	}

	TracingConfig struct {
		Enabled     bool    `mapstructure:"enabled"`
		Endpoint    string  `mapstructure:"endpoint"`
		Insecure    bool    `mapstructure:"insecure"`
		SampleRatio float64 `mapstructure:"sample_ratio"`
	}
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Play     PlayConfig     `mapstructure:"play"`
	AppStore AppStoreConfig `mapstructure:"appstore"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

func defaultDBPath() string {
	// local default: ~/.reviewdash/data.db
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".reviewdash", "data.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reviewdash")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", defaultDBPath())
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.backoff_base", 1200*time.Millisecond)
	v.SetDefault("ingest.page_delay", 800*time.Millisecond)
	v.SetDefault("ingest.default_max_pages", 10)
	v.SetDefault("ingest.hard_max_pages", 50)
	v.SetDefault("ingest.default_country", "th")
	v.SetDefault("ingest.default_language", "th")
	v.SetDefault("ingest.timeout", 5*time.Minute)

	v.SetDefault("play.base_url", "https://play.google.com")
	v.SetDefault("play.page_size", 200)
	v.SetDefault("play.timeout", 15*time.Second)

	v.SetDefault("appstore.rss_base_url", "https://itunes.apple.com")
	v.SetDefault("appstore.lookup_base_url", "https://itunes.apple.com")
	v.SetDefault("appstore.timeout", 15*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "reviewdash.ingest")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.summary_ttl", time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// LoadConfig reads .env (if present), an optional config.yaml from the
// working directory or ./config, and REVIEWDASH_* environment variables, in
// increasing order of precedence.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// MustLoadConfig is LoadConfig for main packages.
func MustLoadConfig() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
