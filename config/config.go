package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type HTTP struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // optional, logs go to stdout as well
}

type Journal struct {
	Buffer int `yaml:"buffer"`
}

type Database struct {
	URL string `yaml:"url"` // empty disables the trade ledger
}

type Kafka struct {
	Brokers []string `yaml:"brokers"` // empty disables publishing
	Topic   string   `yaml:"topic"`
}

type Feed struct {
	URL      string        `yaml:"url"` // empty disables polling
	Symbols  []string      `yaml:"symbols"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Journal  Journal  `yaml:"journal"`
	Database Database `yaml:"database"`
	Kafka    Kafka    `yaml:"kafka"`
	Feed     Feed     `yaml:"feed"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":8080",
			RequestTimeout: 3 * time.Second,
			CORSOrigins:    []string{"http://localhost:3000"},
		},
		Log:     Log{Level: "info"},
		Journal: Journal{Buffer: 1024},
		Kafka:   Kafka{Topic: "quoter.events"},
		Feed: Feed{
			Interval: 5 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

// Load builds the configuration.
// Priority: ENV > .env file > YAML file > defaults.
// An empty path skips the YAML file; an empty envPath loads ./.env if present.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional and never overrides variables already set
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("QUOTER_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if err := envDuration("QUOTER_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout); err != nil {
		return err
	}
	if v := os.Getenv("QUOTER_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("QUOTER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QUOTER_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("QUOTER_JOURNAL_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: QUOTER_JOURNAL_BUFFER: %v", ErrInvalid, err)
		}
		cfg.Journal.Buffer = n
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("QUOTER_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("QUOTER_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("QUOTER_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("QUOTER_FEED_SYMBOLS"); v != "" {
		cfg.Feed.Symbols = splitList(v)
	}
	if err := envDuration("QUOTER_FEED_INTERVAL", &cfg.Feed.Interval); err != nil {
		return err
	}
	return envDuration("QUOTER_FEED_TIMEOUT", &cfg.Feed.Timeout)
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("%w: http.addr is required", ErrInvalid)
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("%w: http.request_timeout must be positive", ErrInvalid)
	}
	if c.Journal.Buffer <= 0 {
		return fmt.Errorf("%w: journal.buffer must be positive", ErrInvalid)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: kafka.topic is required when brokers are set", ErrInvalid)
	}
	if c.Feed.URL != "" {
		if len(c.Feed.Symbols) == 0 {
			return fmt.Errorf("%w: feed.symbols is required when feed.url is set", ErrInvalid)
		}
		if c.Feed.Interval <= 0 || c.Feed.Timeout <= 0 {
			return fmt.Errorf("%w: feed.interval and feed.timeout must be positive", ErrInvalid)
		}
	}
	return nil
}
