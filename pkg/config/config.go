package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	applogger "SignalSim/pkg/logger"
	"SignalSim/pkg/util"

	"gopkg.in/yaml.v3"
)

// ModelSpec names one upstream predictor and the horizons it was trained for.
type ModelSpec struct {
	Name     string `yaml:"name"`
	Horizons []int  `yaml:"horizons"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowRequest     time.Duration `yaml:"slow_request"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		applogger.Config `yaml:",inline"`
		Digest           struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Simulation struct {
		StartingCapital float64       `yaml:"starting_capital"`
		PositionSize    float64       `yaml:"position_size"`
		Source          string        `yaml:"source"` // clickhouse or csv
		CSVPath         string        `yaml:"csv_path"`
		Parallelism     int           `yaml:"parallelism"`
		RunTimeout      time.Duration `yaml:"run_timeout"`
		PriceStaleness  time.Duration `yaml:"price_staleness"` // 0: exact timestamp lookups only
		Models          []ModelSpec   `yaml:"models"`
	} `yaml:"simulation"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic"`
		EventsTopic  string   `yaml:"events_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"queue"`
	Results struct {
		CacheTTL     time.Duration `yaml:"cache_ttl"`
		RateCapacity float64       `yaml:"rate_capacity"`
		RateRefill   float64       `yaml:"rate_refill"`
	} `yaml:"results"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SIM_SOURCE"); v != "" {
		c.Simulation.Source = v
	}
	if v := os.Getenv("SIM_CSV_PATH"); v != "" {
		c.Simulation.CSVPath = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}

	// overrides may break invariants checked at load time
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Simulation.StartingCapital == 0 {
		c.Simulation.StartingCapital = 10000
	}
	if c.Simulation.PositionSize == 0 {
		c.Simulation.PositionSize = 0.1
	}
	if c.Simulation.Source == "" {
		c.Simulation.Source = "clickhouse"
	}
	if c.Simulation.Parallelism <= 0 {
		c.Simulation.Parallelism = 2
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = "signalsim:queue"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "signalsim"
	}
	if c.Results.CacheTTL == 0 {
		c.Results.CacheTTL = 5 * time.Minute
	}
	if c.Results.RateCapacity == 0 {
		c.Results.RateCapacity = 3
	}
	if c.Results.RateRefill == 0 {
		c.Results.RateRefill = 0.1
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	s := c.Simulation
	if s.StartingCapital <= 0 {
		return fmt.Errorf("simulation.starting_capital must be > 0, got %v", s.StartingCapital)
	}
	if s.PositionSize <= 0 || s.PositionSize > 1 {
		return fmt.Errorf("simulation.position_size must be in (0, 1], got %v", s.PositionSize)
	}
	switch s.Source {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source 'clickhouse'")
		}
	case "csv":
		if s.CSVPath == "" {
			return fmt.Errorf("simulation.csv_path is required for source 'csv'")
		}
	default:
		return fmt.Errorf("simulation.source must be 'clickhouse' or 'csv', got '%s'", s.Source)
	}
	if s.PriceStaleness < 0 {
		return fmt.Errorf("simulation.price_staleness must be >= 0, got %s", s.PriceStaleness)
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("simulation.models cannot be empty")
	}
	for _, m := range s.Models {
		if m.Name == "" {
			return fmt.Errorf("simulation.models: name is required")
		}
		if len(m.Horizons) == 0 {
			return fmt.Errorf("simulation.models[%s]: horizons cannot be empty", m.Name)
		}
		for _, h := range m.Horizons {
			if h <= 0 {
				return fmt.Errorf("simulation.models[%s]: horizon must be > 0, got %d", m.Name, h)
			}
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.SignalsTopic == "" && c.Kafka.EventsTopic == "" {
			return fmt.Errorf("kafka needs signals_topic or events_topic")
		}
	}
	if c.Log.Digest.Enabled && (!c.Kafka.Enabled || c.Log.Digest.Topic == "") {
		return fmt.Errorf("log.digest requires kafka and a topic")
	}
	return nil
}
