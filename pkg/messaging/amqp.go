package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPConfig holds AMQP publisher configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	// Expiration of published messages in milliseconds, empty for none
	Expiration string
}

// AMQPPublisher publishes run summaries to a queue
type AMQPPublisher struct {
	logger *logrus.Logger
	config AMQPConfig
	dial   Dialer

	mu      sync.Mutex
	conn    Connection
	channel Channel
}

// NewAMQPPublisher creates a publisher. The connection is opened on first publish.
func NewAMQPPublisher(logger *logrus.Logger, config AMQPConfig, dial Dialer) *AMQPPublisher {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	if dial == nil {
		dial = DialAMQP
	}
	return &AMQPPublisher{
		logger: logger,
		config: config,
		dial:   dial,
	}
}

// connect opens the connection and channel and declares the queue
func (p *AMQPPublisher) connect() error {
	if p.channel != nil {
		return nil
	}
	if p.config.URL == "" || p.config.QueueName == "" {
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	conn, err := p.dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.config.QueueName,
		p.config.Durable, // Durable
		false,            // Delete when unused
		false,            // Exclusive
		false,            // No-wait
		nil,              // Arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.logger.WithField("queue", p.config.QueueName).Info("Connected to AMQP server")
	return nil
}

// Publish sends the summary as a persistent JSON message. The context bounds
// the whole connect and publish sequence.
func (p *AMQPPublisher) Publish(ctx context.Context, summary *RunSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary to JSON: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.connect(); err != nil {
			done <- err
			return
		}
		done <- p.channel.Publish(
			p.config.ExchangeName, // Exchange
			p.config.RoutingKey,   // Routing key
			false,                 // Mandatory
			false,                 // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				MessageId:    summary.RunID,
				Expiration:   p.config.Expiration,
				Headers: amqp.Table{
					"x-run-id":     summary.RunID,
					"x-exceptions": int32(summary.Exceptions()),
				},
			},
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to publish run summary to AMQP: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("publishing to AMQP aborted: %w", ctx.Err())
	}

	p.logger.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"queue":  p.config.QueueName,
	}).Info("Published run summary")
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
