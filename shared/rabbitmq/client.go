package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the client has been closed or lost its
// connection.
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// ErrPublishNacked is returned when the broker refuses a published message.
var ErrPublishNacked = errors.New("broker did not confirm message")

// Config holds RabbitMQ connection configuration
type Config struct {
	URL                string // takes precedence over the discrete fields when set
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string // empty means the default exchange
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
}

// DSN returns the AMQP URL for the config.
func (c *Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		vhost,
	)
}

// routingKey is the key messages are published with. With the default
// exchange the queue name is the routing key.
func (c *Config) routingKey() string {
	if c.ExchangeName == "" {
		return c.QueueName
	}
	if c.RoutingKey == "" {
		return c.QueueName
	}
	return c.RoutingKey
}

// Client represents a RabbitMQ client. Publishing happens on a dedicated
// confirm-mode channel; every consumer gets its own channel.
type Client struct {
	config *Config
	conn   *amqp.Connection
	logger *slog.Logger

	mu          sync.Mutex // guards pubChannel and isConnected
	pubChannel  *amqp.Channel
	isConnected bool
	closeChan   chan *amqp.Error
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(c.config.DSN(), amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.pubChannel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(c.pubChannel); err != nil {
		c.pubChannel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	// Publisher confirms: Publish blocks until the broker has taken
	// responsibility for the message.
	if err := c.pubChannel.Confirm(false); err != nil {
		c.pubChannel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	c.closeChan = make(chan *amqp.Error, 1)
	c.conn.NotifyClose(c.closeChan)
	go c.watchConnection(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
	)

	return nil
}

// watchConnection flips isConnected once the connection drops.
func (c *Client) watchConnection(closeChan <-chan *amqp.Error) {
	amqpErr, ok := <-closeChan
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ connection lost",
			slog.String("reason", amqpErr.Reason),
			slog.Int("code", amqpErr.Code),
		)
	}
}

// setup declares exchange, queue, and bindings. Declarations are
// idempotent, so this is safe to run for every channel.
func (c *Client) setup(channel *amqp.Channel) error {
	if c.config.ExchangeName != "" {
		err := channel.ExchangeDeclare(
			c.config.ExchangeName,       // name
			c.config.ExchangeType,       // type
			c.config.ExchangeDurable,    // durable
			c.config.ExchangeAutoDelete, // auto-deleted
			false,                       // internal
			false,                       // no-wait
			nil,                         // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	_, err := channel.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if c.config.ExchangeName != "" {
		err = channel.QueueBind(
			c.config.QueueName,    // queue name
			c.config.routingKey(), // routing key
			c.config.ExchangeName, // exchange
			false,                 // no-wait
			nil,                   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	return nil
}

// Publish publishes a persistent message and waits for the broker's
// confirmation.
func (c *Client) Publish(ctx context.Context, body []byte, contentType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return ErrNotConnected
	}

	confirmation, err := c.pubChannel.PublishWithDeferredConfirmWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		c.config.routingKey(), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publisher confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.Int("body_size", len(body)),
		slog.String("content_type", contentType),
		slog.Uint64("delivery_tag", confirmation.DeliveryTag),
	)

	return nil
}

// Consume opens a dedicated channel with the given prefetch and starts a
// manual-ack consumer on the queue. The returned channel is closed when
// the underlying AMQP channel or connection closes.
//
// release cancels the consumer and closes its channel; the broker then
// requeues whatever this consumer still holds unacked. It is safe to call
// more than once.
func (c *Client) Consume(consumerTag string, prefetchCount int) (messages <-chan amqp.Delivery, release func() error, err error) {
	c.mu.Lock()
	connected := c.isConnected
	c.mu.Unlock()
	if !connected {
		return nil, nil, ErrNotConnected
	}

	channel, err := c.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		return nil, nil, err
	}

	// prefetch_size 0: no byte limit; global false: per-consumer.
	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		channel.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := channel.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		channel.Close()
		return nil, nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetchCount),
	)

	var once sync.Once
	release = func() error {
		var releaseErr error
		once.Do(func() {
			if err := channel.Cancel(consumerTag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
				releaseErr = fmt.Errorf("failed to cancel consumer: %w", err)
			}
			if err := channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) && releaseErr == nil {
				releaseErr = fmt.Errorf("failed to close consumer channel: %w", err)
			}
			c.logger.Info("Stopped consuming messages from RabbitMQ",
				slog.String("consumer_tag", consumerTag),
			)
		})
		return releaseErr
	}

	return deliveries, release, nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	if c.pubChannel != nil {
		if err := c.pubChannel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
