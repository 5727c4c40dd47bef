package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"LiqPool/pkg/cache"
	"LiqPool/pkg/clickhouse"
	xhttp "LiqPool/pkg/http"
	"LiqPool/pkg/kafka"
	"LiqPool/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		Digest     struct {
			Enabled    bool          `yaml:"enabled"`
			Interval   time.Duration `yaml:"interval" default:"1m"`
			MaxEntries int           `yaml:"max_entries" default:"500" validate:"gte=1"`
			Topic      string        `yaml:"topic" default:"liqpool.log-digest"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Server struct {
		xhttp.Config `yaml:",inline"`
		RateLimit    struct {
			Enabled bool          `yaml:"enabled" default:"true"`
			RPS     float64       `yaml:"rps" default:"20" validate:"gt=0"`
			Burst   int           `yaml:"burst" default:"40" validate:"gte=1"`
			IdleTTL time.Duration `yaml:"idle_ttl" default:"10m"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Pipeline struct {
		Symbol      string        `yaml:"symbol" validate:"required"`
		BasePeriod  int           `yaml:"base_period" default:"1" validate:"gte=1"`
		Resolutions []string      `yaml:"resolutions" validate:"required,min=1"`
		Ordering    string        `yaml:"ordering" default:"drop"`
		MaxSkew     time.Duration `yaml:"max_skew" default:"5m"`
		BufferSize  int           `yaml:"buffer_size" default:"1024" validate:"gte=1"`
		Throttle    time.Duration `yaml:"throttle"`
	} `yaml:"pipeline"`
	Detectors struct {
		Volatility       string `yaml:"volatility" default:"atr" validate:"oneof=atr realized"`
		VolatilityWindow int    `yaml:"volatility_window" default:"14" validate:"gte=2"`
		VolumeWindow     int    `yaml:"volume_window" default:"20" validate:"gte=1"`
		Gap              struct {
			Enabled      bool    `yaml:"enabled" default:"true"`
			MinSigma     float64 `yaml:"min_sigma" default:"0.5" validate:"gte=0"`
			MinPct       float64 `yaml:"min_pct" default:"0.1" validate:"gte=0"`
			MinRelVolume float64 `yaml:"min_rel_volume" default:"0.8" validate:"gte=0"`
			SigmaRef     float64 `yaml:"sigma_ref" default:"2" validate:"gt=0"`
			PctRef       float64 `yaml:"pct_ref" default:"1" validate:"gt=0"`
		} `yaml:"gap"`
		Swing struct {
			Enabled             bool    `yaml:"enabled" default:"true"`
			Lookback            int     `yaml:"lookback" default:"3" validate:"gte=2,lte=10"`
			MinSigma            float64 `yaml:"min_sigma" default:"0.25" validate:"gte=0"`
			RegularStrength     float64 `yaml:"regular_strength" default:"0.4" validate:"gte=0,lte=1"`
			SignificantStrength float64 `yaml:"significant_strength" default:"0.7" validate:"gte=0,lte=1"`
			MajorStrength       float64 `yaml:"major_strength" default:"1" validate:"gte=0,lte=1"`
		} `yaml:"swing"`
	} `yaml:"detectors"`
	Pools struct {
		MinStrength   float64                   `yaml:"min_strength" validate:"gte=0,lte=1"`
		DefaultTTL    time.Duration             `yaml:"default_ttl" default:"24h"`
		DefaultCap    int                       `yaml:"default_capacity" default:"1000" validate:"gte=1"`
		GracePeriod   time.Duration             `yaml:"grace_period" default:"1h"`
		SweepInterval time.Duration             `yaml:"sweep_interval" default:"1m"`
		Resolutions   map[string]PoolResolution `yaml:"resolutions" validate:"dive"`
		Wheel         struct {
			Seconds int `yaml:"seconds" default:"60" validate:"gte=1"`
			Minutes int `yaml:"minutes" default:"60" validate:"gte=1"`
			Hours   int `yaml:"hours" default:"24" validate:"gte=1"`
			Days    int `yaml:"days" default:"30" validate:"gte=1"`
		} `yaml:"wheel"`
	} `yaml:"pools"`
	Overlap struct {
		MinMembers      int                `yaml:"min_members" default:"2" validate:"gte=2"`
		MinStrength     float64            `yaml:"min_strength" validate:"gte=0"`
		Epsilon         float64            `yaml:"epsilon" default:"0.000000001" validate:"gte=0"`
		AllowSideMixing bool               `yaml:"allow_side_mixing"`
		Weights         map[string]float64 `yaml:"weights"`
	} `yaml:"overlap"`
	Feed struct {
		Type      string `yaml:"type" default:"kafka" validate:"oneof=kafka websocket"`
		Websocket struct {
			URL          string        `yaml:"url"`
			PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"websocket"`
		Reconnect struct {
			InitialInterval time.Duration `yaml:"initial_interval" default:"500ms"`
			MaxInterval     time.Duration `yaml:"max_interval" default:"30s"`
			MaxElapsed      time.Duration `yaml:"max_elapsed" default:"5m"`
		} `yaml:"reconnect"`
	} `yaml:"feed"`
	Sinks struct {
		Type       string        `yaml:"type" default:"none" validate:"oneof=none kafka clickhouse both"`
		MaxRetries uint64        `yaml:"max_retries" default:"3"`
		Backoff    time.Duration `yaml:"backoff" default:"200ms"`
	} `yaml:"sinks"`
	Kafka struct {
		kafka.Config `yaml:",inline"`
		BarsTopic    string `yaml:"bars_topic" default:"liqpool.bars"`
		PoolsTopic   string `yaml:"pools_topic" default:"liqpool.pool-events"`
		ZonesTopic   string `yaml:"zones_topic" default:"liqpool.zone-events"`
	} `yaml:"kafka"`
	ClickHouse struct {
		clickhouse.Config `yaml:",inline"`
		BarsTable         string `yaml:"bars_table" default:"bars_1m"`
		PoolEventsTable   string `yaml:"pool_events_table" default:"pool_events"`
		ZoneEventsTable   string `yaml:"zone_events_table" default:"zone_events"`
	} `yaml:"clickhouse"`
	Redis struct {
		cache.RedisConfig `yaml:",inline"`
		Enabled           bool          `yaml:"enabled"`
		SnapshotTTL       time.Duration `yaml:"snapshot_ttl" default:"10m"`
	} `yaml:"redis"`
	Backtest struct {
		Source string    `yaml:"source" default:"clickhouse" validate:"oneof=clickhouse sqlite"`
		SQLite string    `yaml:"sqlite_path" default:"bars.db"`
		Symbol string    `yaml:"symbol"`
		From   time.Time `yaml:"from"`
		To     time.Time `yaml:"to"`
	} `yaml:"backtest"`
}

// PoolResolution overrides pool policy for one resolution.
type PoolResolution struct {
	TTL          time.Duration `yaml:"ttl" validate:"gte=0"`
	HitTolerance float64       `yaml:"hit_tolerance" validate:"gte=0"`
	Capacity     int           `yaml:"capacity" validate:"gte=0"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LIQPOOL_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LIQPOOL_SYMBOL"); v != "" {
		c.Pipeline.Symbol = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_BARS_TOPIC"); v != "" {
		c.Kafka.BarsTopic = v
	}
	if v := os.Getenv("FEED_TYPE"); v != "" {
		c.Feed.Type = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch strings.ToLower(c.Pipeline.Ordering) {
	case "drop", "raise":
	case "recalc":
		return fmt.Errorf("pipeline.ordering: recalc is not supported, use drop or raise")
	default:
		return fmt.Errorf("pipeline.ordering must be 'drop' or 'raise', got '%s'", c.Pipeline.Ordering)
	}
	s := c.Detectors.Swing
	if !(s.RegularStrength <= s.SignificantStrength && s.SignificantStrength <= s.MajorStrength) {
		return fmt.Errorf("detectors.swing: tier strengths must be non-decreasing")
	}
	if c.Feed.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when feed.type is kafka")
	}
	if c.Feed.Type == "websocket" && c.Feed.Websocket.URL == "" {
		return fmt.Errorf("feed.websocket.url is required when feed.type is websocket")
	}
	if (c.Sinks.Type == "kafka" || c.Sinks.Type == "both") && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when sinks.type is %s", c.Sinks.Type)
	}
	for name, w := range c.Overlap.Weights {
		if w < 0 {
			return fmt.Errorf("overlap.weights[%s] must not be negative", name)
		}
	}
	if !c.Backtest.From.IsZero() && !c.Backtest.To.IsZero() && !c.Backtest.From.Before(c.Backtest.To) {
		return fmt.Errorf("backtest.from must be before backtest.to")
	}
	return nil
}
