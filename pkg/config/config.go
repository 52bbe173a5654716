package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrFatalConfig marks configuration problems that must prevent the loop from starting.
var ErrFatalConfig = errors.New("fatal configuration error")

// StrategyConfig describes one strategy template.
type StrategyConfig struct {
	ID              string  `yaml:"id" toml:"id" validate:"required"`
	Bias            float64 `yaml:"bias" toml:"bias" validate:"gte=-1,lte=1"`
	RequiredCapital float64 `yaml:"required_capital" toml:"required_capital" validate:"gt=0"`
	MaxLoss         float64 `yaml:"max_loss" toml:"max_loss" validate:"gte=0"`
	Underlying      string  `yaml:"underlying" toml:"underlying"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Logging     struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Loop struct {
		Cadence           time.Duration `yaml:"cadence" default:"1s" validate:"gt=0"`
		PrepareDeadline   time.Duration `yaml:"prepare_deadline" default:"100ms" validate:"gt=0"`
		FanoutDeadline    time.Duration `yaml:"fanout_deadline" default:"600ms" validate:"gt=0"`
		SynthesisDeadline time.Duration `yaml:"synthesis_deadline" default:"100ms" validate:"gt=0"`
		GateDeadline      time.Duration `yaml:"gate_deadline" default:"150ms" validate:"gt=0"`
		Symbols           []string      `yaml:"symbols" validate:"min=1,dive,required"`
		DefaultSize       float64       `yaml:"default_size" default:"1" validate:"gt=0"`
	} `yaml:"loop"`
	Risk struct {
		MaxVaR            float64 `yaml:"max_var" toml:"max_var" default:"50000" validate:"gt=0"`
		MaxConcentration  float64 `yaml:"max_concentration" toml:"max_concentration" default:"0.25" validate:"gt=0,lte=1"`
		AttenuationFactor float64 `yaml:"attenuation_factor" toml:"attenuation_factor" default:"0.5" validate:"gt=0,lt=1"`
		LimitsFile        string  `yaml:"limits_file" toml:"-"`
	} `yaml:"risk"`
	Regime struct {
		HighVolThreshold              float64             `yaml:"high_vol_threshold" default:"0.45" validate:"gt=0"`
		TrendThreshold                float64             `yaml:"trend_threshold" default:"1.0" validate:"gt=0"`
		CorrelationBreakdownThreshold float64             `yaml:"correlation_breakdown_threshold" default:"0.2"`
		MinBars                       int                 `yaml:"min_bars" default:"20" validate:"gte=3"`
		Eligibility                   map[string][]string `yaml:"eligibility"`
	} `yaml:"regime"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"dive"`
	Producers  struct {
		Enabled     []string `yaml:"enabled" default:"[\"technical\",\"sentiment\",\"flow\"]"`
		Sentiment   struct {
			Window     time.Duration `yaml:"window" default:"30m"`
			Saturation int           `yaml:"saturation" default:"5"`
		} `yaml:"sentiment"`
		Flow struct {
			FullPremium float64 `yaml:"full_premium" default:"1000000"`
		} `yaml:"flow"`
		Fundamental struct {
			URL      string        `yaml:"url"`
			Timeout  time.Duration `yaml:"timeout" default:"400ms"`
			CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
			Retries  int           `yaml:"retries" default:"1"`
		} `yaml:"fundamental"`
	} `yaml:"producers"`
	Schedule struct {
		Mode     string `yaml:"mode" default:"regular" validate:"oneof=regular extended always"`
		Timezone string `yaml:"timezone" default:"America/New_York"`
	} `yaml:"schedule"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		AuditTopic    string   `yaml:"audit_topic" default:"tradeloop.cycles"`
		FeedbackTopic string   `yaml:"feedback_topic" default:"tradeloop.outcomes"`
		RequiredAcks  int      `yaml:"required_acks" default:"1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradeloop-feedback"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"tradeloop.outcomes.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradeloop"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"10s"`
		Lookback         int           `yaml:"lookback" default:"120" validate:"gt=0"`
		Timeframe        string        `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"tradeloop"`
	} `yaml:"redis"`
	Postgres struct {
		Enabled  bool   `yaml:"enabled"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"5432"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database" default:"portfolio"`
		SSLMode  string `yaml:"ssl_mode" default:"disable"`

		// MaxSnapshotAge treats older portfolio snapshots as missing.
		MaxSnapshotAge time.Duration `yaml:"max_snapshot_age" default:"5m"`
	} `yaml:"postgres"`
	Execution struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"2s"`
		LockTTL time.Duration `yaml:"lock_ttl" default:"24h"`
		Breaker struct {
			Interval            time.Duration `yaml:"interval" default:"60s"`
			OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
			ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"3"`
		} `yaml:"breaker"`
	} `yaml:"execution"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"finnhub"`
	Alerts struct {
		Cooldown    time.Duration `yaml:"cooldown" default:"5m"`
		WebhookURL  string        `yaml:"webhook_url"`
		QueuePrefix string        `yaml:"queue_prefix" default:"tradeloop:alerts"`
		Workers     int           `yaml:"workers" default:"2"`
		RetryLimit  int           `yaml:"retry_limit" default:"3"`
	} `yaml:"alerts"`
	Profiling struct {
		ServerAddress string `yaml:"server_address"`
		AppName       string `yaml:"app_name" default:"tradeloop"`
	} `yaml:"profiling"`
}

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrFatalConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, applies the optional TOML risk overlay and
// overrides from environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if c.Risk.LimitsFile != "" {
		if err := c.applyRiskOverlay(c.Risk.LimitsFile); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("TRADELOOP_SYMBOLS"); v != "" {
		c.Loop.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("EXECUTION_URL"); v != "" {
		c.Execution.URL = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("RISK_MAX_VAR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: RISK_MAX_VAR: %v", ErrFatalConfig, err)
		}
		c.Risk.MaxVaR = f
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

type riskOverlay struct {
	Risk struct {
		MaxVaR            *float64 `toml:"max_var"`
		MaxConcentration  *float64 `toml:"max_concentration"`
		AttenuationFactor *float64 `toml:"attenuation_factor"`
	} `toml:"risk"`
}

// applyRiskOverlay merges desk-managed limits from a TOML file.
func (c *Config) applyRiskOverlay(path string) error {
	var o riskOverlay
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return fmt.Errorf("%w: risk limits file: %v", ErrFatalConfig, err)
	}
	if o.Risk.MaxVaR != nil {
		c.Risk.MaxVaR = *o.Risk.MaxVaR
	}
	if o.Risk.MaxConcentration != nil {
		c.Risk.MaxConcentration = *o.Risk.MaxConcentration
	}
	if o.Risk.AttenuationFactor != nil {
		c.Risk.AttenuationFactor = *o.Risk.AttenuationFactor
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field budgets. Every failure wraps ErrFatalConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	stages := c.StageBudget()
	if stages > c.Loop.Cadence {
		return fmt.Errorf("%w: stage deadlines (%s) exceed cadence %s", ErrFatalConfig, stages, c.Loop.Cadence)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers required when kafka is enabled", ErrFatalConfig)
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("%w: finnhub.api_key required when finnhub is enabled", ErrFatalConfig)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.User == "" {
		return fmt.Errorf("%w: postgres.dsn or postgres.user required", ErrFatalConfig)
	}
	return nil
}

// StageBudget returns the sum of all per-stage deadlines.
func (c *Config) StageBudget() time.Duration {
	return c.Loop.PrepareDeadline + c.Loop.FanoutDeadline + c.Loop.SynthesisDeadline + c.Loop.GateDeadline
}
