package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BrokerRabbitMQ = "rabbitmq"
	BrokerRedis    = "redis"

	UpstreamLeave = "leave"
	UpstreamFail  = "fail"
)

// Environment variables that override values from the file.
const (
	EnvDatabaseURL     = "DATABASE_URL"
	EnvAMQPAddr        = "AMQP_ADDR"
	EnvRedisURL        = "REDIS_URL"
	EnvInferenceURL    = "INFERENCE_URL"
	EnvInferenceAPIKey = "INFERENCE_API_KEY"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Inference InferenceConfig `yaml:"inference"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the per-IP limit on POST /enqueue. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DatabaseConfig selects and configures the job store database.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres or sqlite
	AutoMigrate bool   `yaml:"auto_migrate"`

	// postgres
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// sqlite
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// BrokerConfig selects the message broker.
type BrokerConfig struct {
	Driver string `yaml:"driver"` // rabbitmq or redis
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	URL        string           `yaml:"url"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange straight to the queue.
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag string `yaml:"tag"` // empty: the worker id
}

// RedisConfig holds the Redis Streams broker settings.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	Password      string        `yaml:"password"`
	Stream        string        `yaml:"stream"`
	ConsumerGroup string        `yaml:"consumer_group"`
	Consumer      string        `yaml:"consumer"` // defaults to the hostname
	Block         time.Duration `yaml:"block"`
	ClaimMinIdle  time.Duration `yaml:"claim_min_idle"`
}

// InferenceConfig holds the inference endpoint settings.
type InferenceConfig struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	ContentType     string        `yaml:"content_type"`
	MaxResponseSize int64         `yaml:"max_response_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	OnUpstreamError string        `yaml:"on_upstream_error"` // leave or fail
	RequeueDelay    time.Duration `yaml:"requeue_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, then applies environment
// overrides and defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvDatabaseURL, &c.Database.URL},
		{EnvAMQPAddr, &c.RabbitMQ.URL},
		{EnvRedisURL, &c.Redis.URL},
		{EnvInferenceURL, &c.Inference.URL},
		{EnvInferenceAPIKey, &c.Inference.APIKey},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.env); ok && v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Broker.Driver == "" {
		c.Broker.Driver = BrokerRabbitMQ
	}
	if c.Worker.OnUpstreamError == "" {
		c.Worker.OnUpstreamError = UpstreamLeave
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the sections every process needs: database and broker.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateBroker()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL != "" {
			return nil
		}
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q (must be %s or %s)", c.Database.Driver, DriverPostgres, DriverSQLite)
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.Driver {
	case BrokerRabbitMQ:
		if c.RabbitMQ.URL == "" {
			if c.RabbitMQ.Host == "" {
				return fmt.Errorf("rabbitmq host is required")
			}
			if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
				return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
			}
		}
		if c.RabbitMQ.Exchange.Name != "" && c.RabbitMQ.Exchange.Type == "" {
			return fmt.Errorf("rabbitmq exchange type is required when an exchange is set")
		}
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	case BrokerRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required")
		}
		if c.Redis.Stream == "" {
			return fmt.Errorf("redis stream is required")
		}
	default:
		return fmt.Errorf("unsupported broker driver: %q (must be %s or %s)", c.Broker.Driver, BrokerRabbitMQ, BrokerRedis)
	}
	return nil
}

// ValidateAPIConfig checks everything the api-service needs.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server rate_limit must not be negative")
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server max_body_bytes must not be negative")
	}

	return c.Validate()
}

// ValidateWorkerConfig checks everything the worker-service needs.
func (c *Config) ValidateWorkerConfig() error {
	if c.Inference.URL == "" {
		return fmt.Errorf("inference url is required")
	}

	if c.Inference.Timeout < 0 {
		return fmt.Errorf("inference timeout must not be negative")
	}

	if c.Worker.OnUpstreamError != UpstreamLeave && c.Worker.OnUpstreamError != UpstreamFail {
		return fmt.Errorf("worker on_upstream_error must be %s or %s, got %q", UpstreamLeave, UpstreamFail, c.Worker.OnUpstreamError)
	}

	if c.Worker.RequeueDelay < 0 {
		return fmt.Errorf("worker requeue_delay must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.Validate()
}
