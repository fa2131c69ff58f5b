package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/posdesk/pos-core.git/internal/payment"
)

type PaymentsHandler struct {
	Orch *payment.Orchestrator
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.create)
	r.Post("/payments/{id}/refund", h.refund)
}

type createPaymentReq struct {
	OrderID        string `json:"order_id"`
	GiftCardCode   string `json:"gift_card_code,omitempty"`
	GiftCardAmount *int64 `json:"gift_card_amount_cents,omitempty"`
	TipCents       int64  `json:"tip_cents,omitempty"`
}

func (h *PaymentsHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req createPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Orch.Create(ctx, caller, payment.CreateInput{
		OrderID:        req.OrderID,
		GiftCardCode:   req.GiftCardCode,
		GiftCardAmount: req.GiftCardAmount,
		TipCents:       req.TipCents,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	out := map[string]any{"payment": res.Payment}
	if res.CheckoutURL != "" {
		out["checkout_url"] = res.CheckoutURL
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Orch.RefundFull(ctx, caller, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
