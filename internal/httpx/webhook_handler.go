package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/posdesk/pos-core.git/internal/payment"
	"github.com/posdesk/pos-core.git/internal/redisx"
)

// WebhookHandler receives gateway checkout notifications. Delivery is
// at-least-once, so every branch must tolerate replays: redis dedup is the
// fast path and the orchestrator's status checks are the truth.
type WebhookHandler struct {
	Orch  *payment.Orchestrator
	Redis *redis.Client
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/checkout", h.checkout)
}

type checkoutEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func (h *WebhookHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var ev checkoutEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if ev.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var dedupKey string
	if ev.EventID != "" && h.Redis != nil {
		dedupKey = fmt.Sprintf(redisx.KeyDedup, "webhook", ev.EventID)
		if seen, err := redisx.Exists(ctx, h.Redis, dedupKey); err == nil && seen {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	var err error
	switch ev.Type {
	case "checkout.completed":
		err = h.Orch.ConfirmSuccess(ctx, ev.SessionID)
	case "checkout.expired":
		err = h.Orch.CancelPending(ctx, ev.SessionID)
	default:
		log.Printf("ignoring webhook type %q", ev.Type)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	// Marked only after successful processing, so a transient failure still
	// gets the gateway's retry.
	if dedupKey != "" {
		_ = redisx.MarkOnce(ctx, h.Redis, dedupKey)
	}
	w.WriteHeader(http.StatusOK)
}
