package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"menu-orders/internal/logger"
	"menu-orders/internal/messaging"
	"menu-orders/internal/models"
)

// LaunchStore persists the last response seen on the live path
type LaunchStore interface {
	Record(ctx context.Context, resp Response) error
	LastResponse(ctx context.Context) (*Response, error)
	Acknowledge(ctx context.Context, key string) error
}

// Consumer is the live delivery stream
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Cancel() error
}

// AMQPSource reads live notifications from RabbitMQ and serves cold starts
// from the launch store.
type AMQPSource struct {
	consumer Consumer
	launch   LaunchStore
	logger   *logger.Logger
}

// NewAMQPSource creates a source over a consumer and a launch store
func NewAMQPSource(consumer Consumer, launch LaunchStore, log *logger.Logger) *AMQPSource {
	return &AMQPSource{
		consumer: consumer,
		launch:   launch,
		logger:   log,
	}
}

// LastResponse returns the unacknowledged response recorded before startup
func (s *AMQPSource) LastResponse(ctx context.Context) (*Response, error) {
	return s.launch.LastResponse(ctx)
}

// Acknowledge marks a response as handled in the launch store
func (s *AMQPSource) Acknowledge(ctx context.Context, key string) error {
	return s.launch.Acknowledge(ctx, key)
}

// Subscribe starts consuming in the background until the subscription is released
func (s *AMQPSource) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &amqpSubscription{
		consumer: s.consumer,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		err := s.consumer.StartConsuming(subCtx, func(ctx context.Context, body []byte) error {
			resp, err := decodeResponse(body)
			if err != nil {
				// redelivery would fail the same way
				return fmt.Errorf("%w: %v", messaging.ErrPermanent, err)
			}
			if err := s.launch.Record(ctx, resp); err != nil {
				s.logger.Error("launch_record_failed", "Failed to record last response", "", err, map[string]interface{}{
					"identifier": resp.Identifier,
				})
			}
			handler(ctx, resp)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("notification_consumer_failed", "Notification consumer stopped", "", err, nil)
		}
	}()

	return sub, nil
}

type amqpSubscription struct {
	consumer Consumer
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	err      error
}

// Unsubscribe stops the delivery loop before cancelling the broker consumer,
// so the closed delivery channel is never mistaken for a lost connection.
func (s *amqpSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.consumer.Cancel()
		<-s.done
	})
	return s.err
}

func decodeResponse(body []byte) (Response, error) {
	var msg models.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return Response{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	return Response{Identifier: msg.Identifier, Payload: msg.Data}, nil
}
