package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/posdesk/pos-core.git/internal/kafka"
)

const (
	EventPaymentSettled  = "PaymentSettled"
	EventPaymentRefunded = "PaymentRefunded"
	EventOrderClosed     = "OrderClosed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentSettledPayload struct {
	PaymentID       string `json:"payment_id"`
	OrderID         string `json:"order_id"`
	BusinessID      string `json:"business_id"`
	AmountCents     int64  `json:"amount_cents"`
	TipCents        int64  `json:"tip_cents"`
	GiftCardCharged int64  `json:"gift_card_charged"`
	GatewayCharged  int64  `json:"gateway_charged"`
}

type PaymentRefundedPayload struct {
	PaymentID        string `json:"payment_id"`
	OrderID          string `json:"order_id"`
	BusinessID       string `json:"business_id"`
	GiftCardToppedUp int64  `json:"gift_card_topped_up"`
	GatewayRefunded  int64  `json:"gateway_refunded"`
}

type OrderClosedPayload struct {
	OrderID    string `json:"order_id"`
	BusinessID string `json:"business_id"`
}

// Partition key = order_id so every event of one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// Publisher is satisfied by kafkax.Producer. One publisher per topic.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Emitter publishes domain events. The zero/nil emitter and nil publishers
// are no-ops, so wiring kafka stays optional (tests, STORE=memory mode).
type Emitter struct {
	Service string

	PaymentSettled  Publisher
	PaymentRefunded Publisher
	OrderClosed     Publisher
}

func (e *Emitter) EmitPaymentSettled(orderID string, p PaymentSettledPayload) {
	if e == nil {
		return
	}
	e.emit(e.PaymentSettled, EventPaymentSettled, orderID, p)
}

func (e *Emitter) EmitPaymentRefunded(orderID string, p PaymentRefundedPayload) {
	if e == nil {
		return
	}
	e.emit(e.PaymentRefunded, EventPaymentRefunded, orderID, p)
}

func (e *Emitter) EmitOrderClosed(orderID, businessID string) {
	if e == nil {
		return
	}
	e.emit(e.OrderClosed, EventOrderClosed, orderID, OrderClosedPayload{OrderID: orderID, BusinessID: businessID})
}

func (e *Emitter) emit(p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
