package analytics

import (
	"context"
	"strings"
	"sync/atomic"

	"trading-relay/src/codec"
	"trading-relay/src/helpers"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
)

// NewSources builds one source per configured entry.
func NewSources(cfg models.MAnalyticsConfig, log *logger.Logger) ([]interfaces.IEventSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	out := make([]interfaces.IEventSource, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		switch strings.ToLower(sc.Type) {
		case "amqp":
			if sc.URL == "" || sc.Queue == "" {
				return nil, helpers.NewConfigurationError("analytics source %s needs url and queue", sc.Name)
			}
			out = append(out, NewAMQPSource(sc, log.Named(sc.Name)))
		case "kafka":
			if len(sc.Brokers) == 0 || sc.Topic == "" {
				return nil, helpers.NewConfigurationError("analytics source %s needs brokers and topic", sc.Name)
			}
			out = append(out, NewKafkaSource(sc, log.Named(sc.Name)))
		default:
			return nil, helpers.NewConfigurationError("analytics source %s has unsupported type %q", sc.Name, sc.Type)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// decoder turns raw payloads into relayable events and counts rejects.
type decoder struct {
	name     string
	log      *logger.Logger
	rejected atomic.Int64
}

// forward decodes payload and hands it to out. It returns false once ctx
// is cancelled.
func (d *decoder) forward(ctx context.Context, payload []byte, out chan<- models.MEvent) bool {
	evt, err := codec.DecodeEvent(payload)
	if err != nil {
		d.rejected.Add(1)
		d.log.Warning("%s: dropping frame: %v", d.name, err)
		return true
	}
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *decoder) Rejected() int64 {
	return d.rejected.Load()
}
