package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Validator struct {
		MaxAge               time.Duration `yaml:"max_age"`
		PriceMin             float64       `yaml:"price_min"`
		PriceMax             float64       `yaml:"price_max"`
		OutlierThreshold     float64       `yaml:"outlier_threshold"`
		ConsensusWeight      float64       `yaml:"consensus_weight"`
		HistoricalDataWindow int           `yaml:"historical_data_window"`
		CrossSourceWindow    time.Duration `yaml:"cross_source_window"`
		MinHistoryPoints     int           `yaml:"min_history_points"`
		ZScoreThreshold      float64       `yaml:"z_score_threshold"`
		CacheSize            int           `yaml:"validation_cache_size"`
		CacheTTL             time.Duration `yaml:"validation_cache_ttl"`
	} `yaml:"validator"`
	Aggregator struct {
		OutlierThreshold float64 `yaml:"outlier_threshold"`
		DecayLambda      float64 `yaml:"decay_lambda"`
		AgreementPenalty float64 `yaml:"agreement_penalty"`
	} `yaml:"aggregator"`
	Cache struct {
		TTL             time.Duration `yaml:"ttl"`
		MaxSize         int           `yaml:"max_size"`
		EvictionPolicy  string        `yaml:"eviction_policy"` // lru, lfu, ttl
		MemoryLimit     int64         `yaml:"memory_limit"`
		Compression     bool          `yaml:"compression"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"cache"`
	Feeds     []FeedConfig     `yaml:"feeds"`
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Kafka     struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		ConsensusTopic string   `yaml:"consensus_topic"`
		UpdatesTopic   string   `yaml:"updates_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Producer       struct {
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
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
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
}

// FeedConfig declares one consensus feed and the sources expected to serve it.
type FeedConfig struct {
	Category string   `yaml:"category"` // crypto, forex, commodity, stock
	Name     string   `yaml:"name"`     // BASE/QUOTE
	Sources  []string `yaml:"sources"`
}

// ExchangeConfig declares one source adapter.
type ExchangeConfig struct {
	Name           string        `yaml:"name"`
	Kind           string        `yaml:"kind"` // websocket or rest
	URL            string        `yaml:"url"`
	Pairs          []string      `yaml:"pairs"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
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

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_CONSENSUS_TOPIC"); v != "" {
		c.Kafka.ConsensusTopic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("feeds cannot be empty")
	}
	for _, f := range c.Feeds {
		if !strings.Contains(f.Name, "/") {
			return fmt.Errorf("feed name must be BASE/QUOTE, got '%s'", f.Name)
		}
		if len(f.Sources) == 0 {
			return fmt.Errorf("feed %s needs at least one source", f.Name)
		}
	}
	for _, e := range c.Exchanges {
		if e.Kind != "websocket" && e.Kind != "rest" {
			return fmt.Errorf("exchange kind must be 'websocket' or 'rest', got '%s'", e.Kind)
		}
		if e.URL == "" {
			return fmt.Errorf("exchange %s url is required", e.Name)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}
