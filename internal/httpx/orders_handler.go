package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/orders"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/redisx"
)

type OrdersHandler struct {
	Svc   *orders.Service
	Redis *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Delete("/orders/{id}", h.delete)
	r.Post("/orders/{id}/lines", h.addLine)
	r.Patch("/orders/{id}/lines/{lineID}", h.updateLine)
	r.Delete("/orders/{id}/lines/{lineID}", h.removeLine)
	r.Post("/orders/{id}/close", h.close)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/reopen", h.reopen)
	r.Post("/orders/{id}/discount", h.setDiscount)
	r.Post("/orders/{id}/move", h.moveLines)
}

type createOrderReq struct {
	ReservationID string `json:"reservation_id"`
	TableLabel    string `json:"table_label"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.Create(ctx, caller, orders.CreateInput{
		ReservationID: req.ReservationID,
		TableLabel:    req.TableLabel,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, lines, err := h.Svc.Get(ctx, caller, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o, "lines": lines})
}

// getStatus serves the cached status when present, falling back to the
// database and refilling the cache.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}
	o, _, err := h.Svc.Get(ctx, caller, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

type addLineReq struct {
	CatalogItemID string          `json:"catalog_item_id"`
	Qty           decimal.Decimal `json:"qty"`
	DiscountID    string          `json:"discount_id,omitempty"`
}

func (h *OrdersHandler) addLine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req addLineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	line, err := h.Svc.AddLine(ctx, caller, orders.AddLineInput{
		OrderID:       chi.URLParam(r, "id"),
		CatalogItemID: req.CatalogItemID,
		Qty:           req.Qty,
		DiscountID:    req.DiscountID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

type updateLineReq struct {
	Qty        *decimal.Decimal `json:"qty,omitempty"`
	DiscountID *string          `json:"discount_id,omitempty"`
}

func (h *OrdersHandler) updateLine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req updateLineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	line, err := h.Svc.UpdateLine(ctx, caller, orders.UpdateLineInput{
		LineID:     chi.URLParam(r, "lineID"),
		Qty:        req.Qty,
		DiscountID: req.DiscountID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *OrdersHandler) removeLine(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, func(ctx context.Context, caller pos.Caller) error {
		return h.Svc.RemoveLine(ctx, caller, chi.URLParam(r, "lineID"))
	})
}

func (h *OrdersHandler) close(w http.ResponseWriter, r *http.Request) {
	h.statusAction(w, r, pos.OrderClosed, h.Svc.Close)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.statusAction(w, r, pos.OrderCancelled, h.Svc.Cancel)
}

func (h *OrdersHandler) reopen(w http.ResponseWriter, r *http.Request) {
	h.statusAction(w, r, pos.OrderOpen, h.Svc.Reopen)
}

func (h *OrdersHandler) delete(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, func(ctx context.Context, caller pos.Caller) error {
		return h.Svc.Delete(ctx, caller, chi.URLParam(r, "id"))
	})
}

type setDiscountReq struct {
	DiscountID string `json:"discount_id"`
	Auto       bool   `json:"auto,omitempty"`
}

func (h *OrdersHandler) setDiscount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req setDiscountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	var err error
	if req.Auto {
		err = h.Svc.AutoOrderDiscount(ctx, caller, orderID)
	} else {
		err = h.Svc.SetOrderDiscount(ctx, caller, orderID, req.DiscountID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveLinesReq struct {
	TargetOrderID string `json:"target_order_id"`
	Moves         []struct {
		LineID string           `json:"line_id"`
		Qty    *decimal.Decimal `json:"qty,omitempty"`
	} `json:"moves"`
}

func (h *OrdersHandler) moveLines(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	var req moveLinesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	in := orders.MoveInput{
		SourceOrderID: chi.URLParam(r, "id"),
		TargetOrderID: req.TargetOrderID,
	}
	for _, m := range req.Moves {
		in.Moves = append(in.Moves, orders.LineMove{LineID: m.LineID, Qty: m.Qty})
	}
	if err := h.Svc.MoveLines(ctx, caller, in); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) lineAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, pos.Caller) error) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := fn(ctx, caller); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) statusAction(w http.ResponseWriter, r *http.Request, to pos.OrderStatus,
	fn func(context.Context, pos.Caller, string) error) {
	caller, ok := callerFrom(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing caller headers"})
		return
	}
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := fn(ctx, caller, orderID); err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, to)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, status pos.OrderStatus) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
