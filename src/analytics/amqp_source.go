package analytics

import (
	"context"
	"fmt"
	"sync"

	"trading-relay/src/logger"
	"trading-relay/src/models"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPSource consumes analytics frames from a RabbitMQ queue.
type AMQPSource struct {
	Config models.MAnalyticsSourceConfig
	Logger *logger.Logger
	decoder

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewAMQPSource(cfg models.MAnalyticsSourceConfig, log *logger.Logger) *AMQPSource {
	return &AMQPSource{
		Config:  cfg,
		Logger:  log,
		decoder: decoder{name: cfg.Name, log: log},
	}
}

func (s *AMQPSource) Name() string { return s.Config.Name }

// Start connects, declares the queue and consumes until ctx is cancelled.
func (s *AMQPSource) Start(ctx context.Context, out chan<- models.MEvent, wg *sync.WaitGroup) error {
	conn, err := amqp091.Dial(s.Config.URL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(64, 0, false); err != nil {
		s.Logger.Warning("Failed to set QoS: %v", err)
	}
	if _, err := ch.QueueDeclare(s.Config.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue %s: %w", s.Config.Queue, err)
	}
	msgs, err := ch.Consume(
		s.Config.Queue,
		"",    // consumer
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to register consumer for queue %s: %w", s.Config.Queue, err)
	}

	s.mu.Lock()
	s.conn, s.ch = conn, ch
	s.mu.Unlock()

	go func() {
		defer wg.Done()
		s.consume(ctx, msgs, out)
		s.Logger.Info("Consumer for queue %s has shut down", s.Config.Queue)
	}()
	s.Logger.Info("Successfully started consumer for queue: %s", s.Config.Queue)
	return nil
}

func (s *AMQPSource) consume(ctx context.Context, msgs <-chan amqp091.Delivery, out chan<- models.MEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			if !s.forward(ctx, d.Body, out) {
				return
			}
		}
	}
}

// Stop closes the channel and connection; the consume loop then ends.
func (s *AMQPSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	if s.ch != nil {
		s.ch.Close()
	}
	err := s.conn.Close()
	s.conn, s.ch = nil, nil
	return err
}
