package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type CheckoutSession struct {
	SessionID string
	URL       string
}

// Gateway is the external payment processor boundary. The real processor
// lives outside this repo; everything here treats it as a collaborator that
// can create checkout sessions and refund them.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, amountCents int64, currency, successURL, cancelURL, paymentID string) (CheckoutSession, error)
	Refund(ctx context.Context, sessionID string, amountCents int64) error
}

// StubGateway fakes checkout sessions in memory. Used when no gateway is
// configured (local runs, STORE=memory mode) and by tests.
type StubGateway struct {
	mu       sync.Mutex
	sessions map[string]int64 // session id -> amount
	refunds  map[string]int64
}

func NewStubGateway() *StubGateway {
	return &StubGateway{sessions: map[string]int64{}, refunds: map[string]int64{}}
}

func (g *StubGateway) CreateCheckoutSession(ctx context.Context, amountCents int64, currency, successURL, cancelURL, paymentID string) (CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "sess_" + uuid.NewString()
	g.sessions[id] = amountCents
	return CheckoutSession{SessionID: id, URL: fmt.Sprintf("https://checkout.invalid/%s", id)}, nil
}

func (g *StubGateway) Refund(ctx context.Context, sessionID string, amountCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[sessionID]; !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	g.refunds[sessionID] += amountCents
	return nil
}

// Sessions reports how many checkout sessions have been created.
func (g *StubGateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Refunded reports the total refunded for a session.
func (g *StubGateway) Refunded(sessionID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[sessionID]
}
