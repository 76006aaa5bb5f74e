// Package bootstrap turns configuration into the process-wide handles
// shared by the binaries: logger, database connection and broker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/config"
	"github.com/cuongbtq/inference-hitl/internal/queue"
	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/cuongbtq/inference-hitl/shared/postgresql"
	"github.com/cuongbtq/inference-hitl/shared/rabbitmq"
	"github.com/cuongbtq/inference-hitl/shared/redisstream"
	"github.com/cuongbtq/inference-hitl/shared/sqlite"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// InitDatabase opens the configured database and, when auto_migrate is
// set, creates the schema.
func InitDatabase(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (storage.Conn, error) {
	var (
		conn storage.Conn
		err  error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err = initPostgreSQL(cfg, log)
	case config.DriverSQLite:
		conn, err = initSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, conn.GetDB(), conn.Dialect()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema is up to date", slog.String("dialect", conn.Dialect()))
	}
	return conn, nil
}

func initPostgreSQL(cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		URL:             cfg.URL,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}

	return postgresql.NewClient(dbConfig, log)
}

func initSQLite(cfg *config.DatabaseConfig, log *slog.Logger) (*sqlite.Client, error) {
	return sqlite.NewClient(&sqlite.Config{
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout,
	}, log)
}

// InitBroker connects to the configured broker. consumerTag names this
// process to the broker when it subscribes.
func InitBroker(ctx context.Context, cfg *config.Config, consumerTag string, log *slog.Logger) (queue.Broker, error) {
	switch cfg.Broker.Driver {
	case config.BrokerRabbitMQ:
		client, err := initRabbitMQ(&cfg.RabbitMQ, log)
		if err != nil {
			return nil, err
		}
		tag := cfg.RabbitMQ.Consumer.Tag
		if tag == "" {
			tag = consumerTag
		}
		return queue.NewRabbitMQ(client, tag, log), nil

	case config.BrokerRedis:
		client, err := redisstream.NewClient(ctx, redisstream.Config{
			URL:           cfg.Redis.URL,
			Password:      cfg.Redis.Password,
			Stream:        cfg.Redis.Stream,
			ConsumerGroup: cfg.Redis.ConsumerGroup,
			Consumer:      redisConsumerName(cfg.Redis.Consumer, os.Hostname, consumerTag),
			Block:         cfg.Redis.Block,
			ClaimMinIdle:  cfg.Redis.ClaimMinIdle,
		}, log)
		if err != nil {
			return nil, err
		}
		return queue.NewRedis(client, log), nil

	default:
		return nil, fmt.Errorf("unsupported broker driver: %q", cfg.Broker.Driver)
	}
}

// redisConsumerName picks the consumer name within the group. Pending
// entries belong to a name, so it must survive restarts: the configured
// name, else the hostname, else fallback.
func redisConsumerName(configured string, hostname func() (string, error), fallback string) string {
	if configured != "" {
		return configured
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}

func initRabbitMQ(cfg *config.RabbitMQConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		URL:                cfg.URL,
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, log)
}
