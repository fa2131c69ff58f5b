package events

import (
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type capture struct {
	key     []byte
	value   []byte
	headers []kafkago.Header
	calls   int
}

func (c *capture) Publish(key, value []byte, headers ...kafkago.Header) {
	c.key, c.value, c.headers = key, value, headers
	c.calls++
}

func TestEmitterEnvelope(t *testing.T) {
	pub := &capture{}
	em := &Emitter{Service: "pos-api", PaymentSettled: pub}

	em.EmitPaymentSettled("ord-1", PaymentSettledPayload{
		PaymentID: "pay-1", OrderID: "ord-1", BusinessID: "biz-1",
		AmountCents: 9000, TipCents: 1000, GiftCardCharged: 5000, GatewayCharged: 5000,
	})

	require.Equal(t, 1, pub.calls)
	require.Equal(t, []byte("ord-1"), pub.key, "partitioned by order id")

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.value, &env))
	require.NotEmpty(t, env.EventID)
	require.Equal(t, EventPaymentSettled, env.EventType)
	require.Equal(t, 1, env.EventVersion)
	require.Equal(t, "pos-api", env.Producer)
	require.Equal(t, "ord-1", env.CorrelationID)
	require.False(t, env.OccurredAt.IsZero())

	var p PaymentSettledPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, int64(5000), p.GiftCardCharged)

	require.Len(t, pub.headers, 2)
	require.Equal(t, "x-event-type", pub.headers[0].Key)
	require.Equal(t, []byte(EventPaymentSettled), pub.headers[0].Value)
}

func TestEmitterNilSafety(t *testing.T) {
	t.Run("nil emitter", func(t *testing.T) {
		var em *Emitter
		em.EmitOrderClosed("ord-1", "biz-1")
		em.EmitPaymentRefunded("ord-1", PaymentRefundedPayload{})
	})

	t.Run("nil publisher", func(t *testing.T) {
		em := &Emitter{Service: "pos-api"}
		em.EmitPaymentSettled("ord-1", PaymentSettledPayload{})
	})
}
