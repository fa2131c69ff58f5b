// Package store provides the in-memory pos.Store used by tests and by
// STORE=memory mode. Transactions are serialized and rolled back by
// restoring a snapshot of the whole dataset, which is exactly the
// all-or-nothing behavior the service layer relies on.
package store

import (
	"sort"
	"strings"
	"time"

	"github.com/posdesk/pos-core.git/internal/pos"
)

type memData struct {
	businesses  map[string]pos.Business
	items       map[string]pos.CatalogItem
	orders      map[string]pos.Order
	lines       map[string]pos.OrderLine
	discounts   map[string]pos.Discount
	eligibility map[string]bool // discountID + "|" + catalogItemID
	taxRules    map[string]pos.TaxRule
	stockItems  map[string]pos.StockItem
	movements   []pos.StockMovement
	giftCards   map[string]pos.GiftCard
	payments    map[string]pos.Payment
}

func newMemData() memData {
	return memData{
		businesses:  map[string]pos.Business{},
		items:       map[string]pos.CatalogItem{},
		orders:      map[string]pos.Order{},
		lines:       map[string]pos.OrderLine{},
		discounts:   map[string]pos.Discount{},
		eligibility: map[string]bool{},
		taxRules:    map[string]pos.TaxRule{},
		stockItems:  map[string]pos.StockItem{},
		giftCards:   map[string]pos.GiftCard{},
		payments:    map[string]pos.Payment{},
	}
}

func (d *memData) clone() memData {
	c := newMemData()
	for k, v := range d.businesses {
		c.businesses[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = v
	}
	for k, v := range d.discounts {
		c.discounts[k] = v
	}
	for k, v := range d.eligibility {
		c.eligibility[k] = v
	}
	for k, v := range d.taxRules {
		c.taxRules[k] = v
	}
	for k, v := range d.stockItems {
		c.stockItems[k] = v
	}
	for k, v := range d.giftCards {
		c.giftCards[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	c.movements = append(c.movements, d.movements...)
	return c
}

func eligKey(discountID, catalogItemID string) string { return discountID + "|" + catalogItemID }

func (d *memData) getBusiness(id string) (pos.Business, error) {
	b, ok := d.businesses[id]
	if !ok {
		return pos.Business{}, pos.ErrNotFound
	}
	return b, nil
}

func (d *memData) getCatalogItem(id string) (pos.CatalogItem, error) {
	it, ok := d.items[id]
	if !ok {
		return pos.CatalogItem{}, pos.ErrNotFound
	}
	return it, nil
}

func (d *memData) getOrder(id string) (pos.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return pos.Order{}, pos.ErrNotFound
	}
	return o, nil
}

func (d *memData) updateOrder(o pos.Order) error {
	if _, ok := d.orders[o.ID]; !ok {
		return pos.ErrNotFound
	}
	d.orders[o.ID] = o
	return nil
}

func (d *memData) getOrderLine(id string) (pos.OrderLine, error) {
	l, ok := d.lines[id]
	if !ok {
		return pos.OrderLine{}, pos.ErrNotFound
	}
	return l, nil
}

func (d *memData) updateOrderLine(l pos.OrderLine) error {
	if _, ok := d.lines[l.ID]; !ok {
		return pos.ErrNotFound
	}
	d.lines[l.ID] = l
	return nil
}

func (d *memData) listOrderLines(orderID string) []pos.OrderLine {
	var out []pos.OrderLine
	for _, l := range d.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PerformedAt.Equal(out[j].PerformedAt) {
			return out[i].PerformedAt.Before(out[j].PerformedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (d *memData) getDiscount(id string) (pos.Discount, error) {
	dd, ok := d.discounts[id]
	if !ok {
		return pos.Discount{}, pos.ErrNotFound
	}
	return dd, nil
}

func (d *memData) listActiveDiscounts(businessID string, scope pos.DiscountScope, now time.Time) []pos.Discount {
	var out []pos.Discount
	for _, dd := range d.discounts {
		if dd.BusinessID != businessID || dd.Scope != scope || dd.Status != pos.DiscountActive {
			continue
		}
		if now.Before(dd.StartsAt) || now.After(dd.EndsAt) {
			continue
		}
		out = append(out, dd)
	}
	return out
}

func (d *memData) listTaxRules(country, taxClass string, now time.Time) []pos.TaxRule {
	var out []pos.TaxRule
	for _, r := range d.taxRules {
		if r.Country != country || r.TaxClass != taxClass {
			continue
		}
		if now.Before(r.ValidFrom) || now.After(r.ValidTo) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (d *memData) getStockItem(id string) (pos.StockItem, error) {
	s, ok := d.stockItems[id]
	if !ok {
		return pos.StockItem{}, pos.ErrNotFound
	}
	return s, nil
}

func (d *memData) getStockItemByCatalogItem(catalogItemID string) (pos.StockItem, error) {
	for _, s := range d.stockItems {
		if s.CatalogItemID == catalogItemID {
			return s, nil
		}
	}
	return pos.StockItem{}, pos.ErrNotFound
}

func (d *memData) updateStockItem(s pos.StockItem, expectedVersion int) error {
	cur, ok := d.stockItems[s.ID]
	if !ok {
		return pos.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return pos.ErrVersionConflict
	}
	d.stockItems[s.ID] = s
	return nil
}

func (d *memData) listStockMovements(stockItemID string) []pos.StockMovement {
	var out []pos.StockMovement
	for _, m := range d.movements {
		if m.StockItemID == stockItemID {
			out = append(out, m)
		}
	}
	return out
}

func (d *memData) getGiftCard(id string) (pos.GiftCard, error) {
	g, ok := d.giftCards[id]
	if !ok {
		return pos.GiftCard{}, pos.ErrNotFound
	}
	return g, nil
}

func (d *memData) getGiftCardByCode(businessID, code string) (pos.GiftCard, error) {
	for _, g := range d.giftCards {
		if g.BusinessID == businessID && strings.EqualFold(g.Code, code) {
			return g, nil
		}
	}
	return pos.GiftCard{}, pos.ErrNotFound
}

func (d *memData) updateGiftCard(g pos.GiftCard, expectedVersion int) error {
	cur, ok := d.giftCards[g.ID]
	if !ok {
		return pos.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return pos.ErrVersionConflict
	}
	d.giftCards[g.ID] = g
	return nil
}

func (d *memData) insertPayment(p pos.Payment) error {
	for _, ex := range d.payments {
		if ex.OrderID == p.OrderID && ex.IsOpen {
			return pos.ErrOpenPaymentExists
		}
	}
	d.payments[p.ID] = p
	return nil
}

func (d *memData) getPayment(id string) (pos.Payment, error) {
	p, ok := d.payments[id]
	if !ok {
		return pos.Payment{}, pos.ErrNotFound
	}
	return p, nil
}

func (d *memData) getPaymentBySession(sessionID string) (pos.Payment, error) {
	if sessionID == "" {
		return pos.Payment{}, pos.ErrNotFound
	}
	for _, p := range d.payments {
		if p.SessionID == sessionID {
			return p, nil
		}
	}
	return pos.Payment{}, pos.ErrNotFound
}

func (d *memData) updatePayment(p pos.Payment) error {
	if _, ok := d.payments[p.ID]; !ok {
		return pos.ErrNotFound
	}
	d.payments[p.ID] = p
	return nil
}
