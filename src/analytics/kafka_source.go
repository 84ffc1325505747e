package analytics

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"trading-relay/src/logger"
	"trading-relay/src/models"

	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes analytics frames from a Kafka topic.
type KafkaSource struct {
	Config models.MAnalyticsSourceConfig
	Logger *logger.Logger
	decoder

	newReader func() messageReader
	mu        sync.Mutex
	reader    messageReader
}

func NewKafkaSource(cfg models.MAnalyticsSourceConfig, log *logger.Logger) *KafkaSource {
	s := &KafkaSource{
		Config:  cfg,
		Logger:  log,
		decoder: decoder{name: cfg.Name, log: log},
	}
	s.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1e6,
			MaxWait:  500 * time.Millisecond,
		})
	}
	return s
}

func (s *KafkaSource) Name() string { return s.Config.Name }

// Start reads the topic until ctx is cancelled or the reader fails.
func (s *KafkaSource) Start(ctx context.Context, out chan<- models.MEvent, wg *sync.WaitGroup) error {
	r := s.newReader()
	s.mu.Lock()
	s.reader = r
	s.mu.Unlock()

	go func() {
		defer wg.Done()
		defer r.Close()
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					s.Logger.Error("%s: read failed: %v", s.Config.Name, err)
				}
				return
			}
			if !s.forward(ctx, m.Value, out) {
				return
			}
		}
	}()
	s.Logger.Info("Consuming topic %s", s.Config.Topic)
	return nil
}

// Stop closes the reader, which ends the read loop.
func (s *KafkaSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
