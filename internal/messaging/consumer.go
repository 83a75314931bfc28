package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"menu-orders/internal/logger"
)

// ErrPermanent marks a message that must not be redelivered
var ErrPermanent = errors.New("permanent message failure")

// MessageHandler processes one message body
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	conn        *Connection
	logger      *logger.Logger
	queueName   string
	consumerTag string
	prefetch    int
}

// NewConsumer creates a new message consumer
func NewConsumer(conn *Connection, log *logger.Logger, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		logger:      log,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

// StartConsuming blocks delivering messages to handler until ctx is done
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	if c.conn.IsClosed() {
		if err := c.conn.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	err := c.conn.Channel().Qos(
		c.prefetch, // prefetch count
		0,          // prefetch size
		false,      // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.conn.Channel().Consume(
		c.queueName,   // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consumer_started",
		fmt.Sprintf("Started consuming from queue %s", c.queueName),
		"", map[string]interface{}{
			"queue":    c.queueName,
			"consumer": c.consumerTag,
			"prefetch": c.prefetch,
		})

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "",
					errors.New("delivery channel closed"), nil)
				if err := c.conn.Reconnect(ctx); err != nil {
					return fmt.Errorf("failed to reconnect after channel closed: %w", err)
				}
				return c.StartConsuming(ctx, handler)
			}

			if ctx.Err() != nil {
				if nackErr := d.Nack(false, true); nackErr != nil {
					c.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
				}
				return ctx.Err()
			}

			c.processMessage(ctx, d, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, delivery amqp091.Delivery, handler MessageHandler) {
	startTime := time.Now()

	processingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := handler(processingCtx, delivery.Body)
	duration := time.Since(startTime)

	fields := map[string]interface{}{
		"queue":        c.queueName,
		"duration_ms":  duration.Milliseconds(),
		"delivery_tag": delivery.DeliveryTag,
	}

	if err != nil {
		c.logger.Error("message_processing_failed", "Failed to process message", "", err, fields)

		requeue := !errors.Is(err, ErrPermanent)
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
		}
		return
	}

	c.logger.Debug("message_processed", "Successfully processed message", "", fields)
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("message_ack_failed", "Failed to ack message", "", ackErr, nil)
	}
}

// Cancel stops delivery to this consumer and leaves the connection open
func (c *Consumer) Cancel() error {
	if c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Channel().Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("consumer_cancel_failed", "Failed to cancel consumer", "", err, nil)
		return err
	}
	return nil
}
