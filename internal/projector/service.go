// Package projector consumes payment and order events and keeps the redis
// order status cache warm for the read path.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/posdesk/pos-core.git/internal/events"
	kafkax "github.com/posdesk/pos-core.git/internal/kafka"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/redisx"
)

type Service struct {
	Redis *redis.Client
}

func NewService(rdb *redis.Client) *Service {
	return &Service{Redis: rdb}
}

// Handle processes one event. Returning nil commits the offset, so only
// transient failures (redis down) come back as errors; malformed messages
// are logged and dropped.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("projector: drop malformed message at offset %d: %v", m.Offset, err)
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, "projector", env.EventID)
	if s.Redis != nil {
		if seen, err := redisx.Exists(ctx, s.Redis, dedupKey); err == nil && seen {
			return nil
		}
	}

	var err error
	switch env.EventType {
	case events.EventPaymentSettled:
		p, perr := kafkax.UnwrapPayload[events.PaymentSettledPayload](env.Payload)
		if perr != nil {
			log.Printf("projector: drop %s %s: %v", env.EventType, env.EventID, perr)
			return nil
		}
		err = s.cacheStatus(ctx, p.OrderID, pos.OrderClosed)
	case events.EventPaymentRefunded:
		p, perr := kafkax.UnwrapPayload[events.PaymentRefundedPayload](env.Payload)
		if perr != nil {
			log.Printf("projector: drop %s %s: %v", env.EventType, env.EventID, perr)
			return nil
		}
		err = s.cacheStatus(ctx, p.OrderID, pos.OrderCancelled)
	case events.EventOrderClosed:
		p, perr := kafkax.UnwrapPayload[events.OrderClosedPayload](env.Payload)
		if perr != nil {
			log.Printf("projector: drop %s %s: %v", env.EventType, env.EventID, perr)
			return nil
		}
		err = s.cacheStatus(ctx, p.OrderID, pos.OrderClosed)
	default:
		log.Printf("projector: skip unknown event type %q", env.EventType)
		return nil
	}
	if err != nil {
		return err
	}
	// Marked after the write so a transient failure is retried on redelivery.
	_ = redisx.MarkOnce(ctx, s.Redis, dedupKey)
	return nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, status pos.OrderStatus) error {
	if s.Redis == nil {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": status})
	return s.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
