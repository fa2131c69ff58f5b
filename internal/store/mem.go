package store

import (
	"context"
	"sync"
	"time"

	"github.com/posdesk/pos-core.git/internal/pos"
)

// Mem is the thread-safe wrapper around memData. Individual operations take
// the data lock; WithinTx holds it for the whole function and rolls back by
// restoring a snapshot, so a failed transaction leaves nothing behind.
type Mem struct {
	mu sync.Mutex
	d  memData
}

var _ pos.Store = (*Mem)(nil)

func NewMem() *Mem { return &Mem{d: newMemData()} }

func (m *Mem) WithinTx(ctx context.Context, fn func(pos.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.d.clone()
	if err := fn(&memTx{d: &m.d}); err != nil {
		m.d = snap
		return err
	}
	return nil
}

func (m *Mem) lock() func() { m.mu.Lock(); return m.mu.Unlock }

func (m *Mem) GetBusiness(ctx context.Context, id string) (pos.Business, error) {
	defer m.lock()()
	return m.d.getBusiness(id)
}

func (m *Mem) InsertBusiness(ctx context.Context, b pos.Business) error {
	defer m.lock()()
	m.d.businesses[b.ID] = b
	return nil
}

func (m *Mem) GetCatalogItem(ctx context.Context, id string) (pos.CatalogItem, error) {
	defer m.lock()()
	return m.d.getCatalogItem(id)
}

func (m *Mem) InsertCatalogItem(ctx context.Context, it pos.CatalogItem) error {
	defer m.lock()()
	m.d.items[it.ID] = it
	return nil
}

func (m *Mem) InsertOrder(ctx context.Context, o pos.Order) error {
	defer m.lock()()
	m.d.orders[o.ID] = o
	return nil
}

func (m *Mem) GetOrder(ctx context.Context, id string) (pos.Order, error) {
	defer m.lock()()
	return m.d.getOrder(id)
}

func (m *Mem) UpdateOrder(ctx context.Context, o pos.Order) error {
	defer m.lock()()
	return m.d.updateOrder(o)
}

func (m *Mem) DeleteOrder(ctx context.Context, id string) error {
	defer m.lock()()
	delete(m.d.orders, id)
	return nil
}

func (m *Mem) InsertOrderLine(ctx context.Context, l pos.OrderLine) error {
	defer m.lock()()
	m.d.lines[l.ID] = l
	return nil
}

func (m *Mem) GetOrderLine(ctx context.Context, id string) (pos.OrderLine, error) {
	defer m.lock()()
	return m.d.getOrderLine(id)
}

func (m *Mem) UpdateOrderLine(ctx context.Context, l pos.OrderLine) error {
	defer m.lock()()
	return m.d.updateOrderLine(l)
}

func (m *Mem) DeleteOrderLine(ctx context.Context, id string) error {
	defer m.lock()()
	delete(m.d.lines, id)
	return nil
}

func (m *Mem) ListOrderLines(ctx context.Context, orderID string) ([]pos.OrderLine, error) {
	defer m.lock()()
	return m.d.listOrderLines(orderID), nil
}

func (m *Mem) InsertDiscount(ctx context.Context, d pos.Discount) error {
	defer m.lock()()
	m.d.discounts[d.ID] = d
	return nil
}

func (m *Mem) GetDiscount(ctx context.Context, id string) (pos.Discount, error) {
	defer m.lock()()
	return m.d.getDiscount(id)
}

func (m *Mem) ListActiveDiscounts(ctx context.Context, businessID string, scope pos.DiscountScope, now time.Time) ([]pos.Discount, error) {
	defer m.lock()()
	return m.d.listActiveDiscounts(businessID, scope, now), nil
}

func (m *Mem) InsertDiscountEligibility(ctx context.Context, e pos.DiscountEligibility) error {
	defer m.lock()()
	m.d.eligibility[eligKey(e.DiscountID, e.CatalogItemID)] = true
	return nil
}

func (m *Mem) HasDiscountEligibility(ctx context.Context, discountID, catalogItemID string) (bool, error) {
	defer m.lock()()
	return m.d.eligibility[eligKey(discountID, catalogItemID)], nil
}

func (m *Mem) InsertTaxRule(ctx context.Context, r pos.TaxRule) error {
	defer m.lock()()
	m.d.taxRules[r.ID] = r
	return nil
}

func (m *Mem) ListTaxRules(ctx context.Context, country, taxClass string, now time.Time) ([]pos.TaxRule, error) {
	defer m.lock()()
	return m.d.listTaxRules(country, taxClass, now), nil
}

func (m *Mem) InsertStockItem(ctx context.Context, s pos.StockItem) error {
	defer m.lock()()
	m.d.stockItems[s.ID] = s
	return nil
}

func (m *Mem) GetStockItem(ctx context.Context, id string) (pos.StockItem, error) {
	defer m.lock()()
	return m.d.getStockItem(id)
}

func (m *Mem) GetStockItemByCatalogItem(ctx context.Context, catalogItemID string) (pos.StockItem, error) {
	defer m.lock()()
	return m.d.getStockItemByCatalogItem(catalogItemID)
}

func (m *Mem) UpdateStockItem(ctx context.Context, s pos.StockItem, expectedVersion int) error {
	defer m.lock()()
	return m.d.updateStockItem(s, expectedVersion)
}

func (m *Mem) InsertStockMovement(ctx context.Context, mv pos.StockMovement) error {
	defer m.lock()()
	m.d.movements = append(m.d.movements, mv)
	return nil
}

func (m *Mem) ListStockMovements(ctx context.Context, stockItemID string) ([]pos.StockMovement, error) {
	defer m.lock()()
	return m.d.listStockMovements(stockItemID), nil
}

func (m *Mem) InsertGiftCard(ctx context.Context, g pos.GiftCard) error {
	defer m.lock()()
	m.d.giftCards[g.ID] = g
	return nil
}

func (m *Mem) GetGiftCard(ctx context.Context, id string) (pos.GiftCard, error) {
	defer m.lock()()
	return m.d.getGiftCard(id)
}

func (m *Mem) GetGiftCardByCode(ctx context.Context, businessID, code string) (pos.GiftCard, error) {
	defer m.lock()()
	return m.d.getGiftCardByCode(businessID, code)
}

func (m *Mem) UpdateGiftCard(ctx context.Context, g pos.GiftCard, expectedVersion int) error {
	defer m.lock()()
	return m.d.updateGiftCard(g, expectedVersion)
}

func (m *Mem) InsertPayment(ctx context.Context, p pos.Payment) error {
	defer m.lock()()
	return m.d.insertPayment(p)
}

func (m *Mem) GetPayment(ctx context.Context, id string) (pos.Payment, error) {
	defer m.lock()()
	return m.d.getPayment(id)
}

func (m *Mem) GetPaymentBySession(ctx context.Context, sessionID string) (pos.Payment, error) {
	defer m.lock()()
	return m.d.getPaymentBySession(sessionID)
}

func (m *Mem) UpdatePayment(ctx context.Context, p pos.Payment) error {
	defer m.lock()()
	return m.d.updatePayment(p)
}

// memTx is the view handed to WithinTx callbacks. The caller already holds
// the data lock, so operations touch memData directly.
type memTx struct {
	d *memData
}

var _ pos.Store = (*memTx)(nil)

func (t *memTx) WithinTx(ctx context.Context, fn func(pos.Store) error) error { return fn(t) }

func (t *memTx) GetBusiness(ctx context.Context, id string) (pos.Business, error) {
	return t.d.getBusiness(id)
}

func (t *memTx) InsertBusiness(ctx context.Context, b pos.Business) error {
	t.d.businesses[b.ID] = b
	return nil
}

func (t *memTx) GetCatalogItem(ctx context.Context, id string) (pos.CatalogItem, error) {
	return t.d.getCatalogItem(id)
}

func (t *memTx) InsertCatalogItem(ctx context.Context, it pos.CatalogItem) error {
	t.d.items[it.ID] = it
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o pos.Order) error {
	t.d.orders[o.ID] = o
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, id string) (pos.Order, error) {
	return t.d.getOrder(id)
}

func (t *memTx) UpdateOrder(ctx context.Context, o pos.Order) error { return t.d.updateOrder(o) }

func (t *memTx) DeleteOrder(ctx context.Context, id string) error {
	delete(t.d.orders, id)
	return nil
}

func (t *memTx) InsertOrderLine(ctx context.Context, l pos.OrderLine) error {
	t.d.lines[l.ID] = l
	return nil
}

func (t *memTx) GetOrderLine(ctx context.Context, id string) (pos.OrderLine, error) {
	return t.d.getOrderLine(id)
}

func (t *memTx) UpdateOrderLine(ctx context.Context, l pos.OrderLine) error {
	return t.d.updateOrderLine(l)
}

func (t *memTx) DeleteOrderLine(ctx context.Context, id string) error {
	delete(t.d.lines, id)
	return nil
}

func (t *memTx) ListOrderLines(ctx context.Context, orderID string) ([]pos.OrderLine, error) {
	return t.d.listOrderLines(orderID), nil
}

func (t *memTx) InsertDiscount(ctx context.Context, d pos.Discount) error {
	t.d.discounts[d.ID] = d
	return nil
}

func (t *memTx) GetDiscount(ctx context.Context, id string) (pos.Discount, error) {
	return t.d.getDiscount(id)
}

func (t *memTx) ListActiveDiscounts(ctx context.Context, businessID string, scope pos.DiscountScope, now time.Time) ([]pos.Discount, error) {
	return t.d.listActiveDiscounts(businessID, scope, now), nil
}

func (t *memTx) InsertDiscountEligibility(ctx context.Context, e pos.DiscountEligibility) error {
	t.d.eligibility[eligKey(e.DiscountID, e.CatalogItemID)] = true
	return nil
}

func (t *memTx) HasDiscountEligibility(ctx context.Context, discountID, catalogItemID string) (bool, error) {
	return t.d.eligibility[eligKey(discountID, catalogItemID)], nil
}

func (t *memTx) InsertTaxRule(ctx context.Context, r pos.TaxRule) error {
	t.d.taxRules[r.ID] = r
	return nil
}

func (t *memTx) ListTaxRules(ctx context.Context, country, taxClass string, now time.Time) ([]pos.TaxRule, error) {
	return t.d.listTaxRules(country, taxClass, now), nil
}

func (t *memTx) InsertStockItem(ctx context.Context, s pos.StockItem) error {
	t.d.stockItems[s.ID] = s
	return nil
}

func (t *memTx) GetStockItem(ctx context.Context, id string) (pos.StockItem, error) {
	return t.d.getStockItem(id)
}

func (t *memTx) GetStockItemByCatalogItem(ctx context.Context, catalogItemID string) (pos.StockItem, error) {
	return t.d.getStockItemByCatalogItem(catalogItemID)
}

func (t *memTx) UpdateStockItem(ctx context.Context, s pos.StockItem, expectedVersion int) error {
	return t.d.updateStockItem(s, expectedVersion)
}

func (t *memTx) InsertStockMovement(ctx context.Context, mv pos.StockMovement) error {
	t.d.movements = append(t.d.movements, mv)
	return nil
}

func (t *memTx) ListStockMovements(ctx context.Context, stockItemID string) ([]pos.StockMovement, error) {
	return t.d.listStockMovements(stockItemID), nil
}

func (t *memTx) InsertGiftCard(ctx context.Context, g pos.GiftCard) error {
	t.d.giftCards[g.ID] = g
	return nil
}

func (t *memTx) GetGiftCard(ctx context.Context, id string) (pos.GiftCard, error) {
	return t.d.getGiftCard(id)
}

func (t *memTx) GetGiftCardByCode(ctx context.Context, businessID, code string) (pos.GiftCard, error) {
	return t.d.getGiftCardByCode(businessID, code)
}

func (t *memTx) UpdateGiftCard(ctx context.Context, g pos.GiftCard, expectedVersion int) error {
	return t.d.updateGiftCard(g, expectedVersion)
}

func (t *memTx) InsertPayment(ctx context.Context, p pos.Payment) error {
	return t.d.insertPayment(p)
}

func (t *memTx) GetPayment(ctx context.Context, id string) (pos.Payment, error) {
	return t.d.getPayment(id)
}

func (t *memTx) GetPaymentBySession(ctx context.Context, sessionID string) (pos.Payment, error) {
	return t.d.getPaymentBySession(sessionID)
}

func (t *memTx) UpdatePayment(ctx context.Context, p pos.Payment) error {
	return t.d.updatePayment(p)
}
