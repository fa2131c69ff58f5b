package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/posdesk/pos-core.git/internal/pos"
)

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements pos.Store on Postgres. The one-open-payment rule is a
// partial unique index (payments(order_id) WHERE is_open); optimistic
// concurrency is a version column compared in the UPDATE's WHERE clause.
type Store struct {
	pool *pgxpool.Pool
	q    queryer
}

var _ pos.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store { return &Store{pool: pool, q: pool} }

func (s *Store) WithinTx(ctx context.Context, fn func(pos.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return pos.ErrNotFound
	}
	return err
}

func (s *Store) GetBusiness(ctx context.Context, id string) (pos.Business, error) {
	var b pos.Business
	err := s.q.QueryRow(ctx, `SELECT id, name, country, created_at FROM businesses WHERE id=$1`, id).
		Scan(&b.ID, &b.Name, &b.Country, &b.CreatedAt)
	return b, notFound(err)
}

func (s *Store) InsertBusiness(ctx context.Context, b pos.Business) error {
	_, err := s.q.Exec(ctx, `INSERT INTO businesses(id, name, country, created_at) VALUES ($1,$2,$3,$4)`,
		b.ID, b.Name, b.Country, b.CreatedAt)
	return err
}

func (s *Store) GetCatalogItem(ctx context.Context, id string) (pos.CatalogItem, error) {
	var it pos.CatalogItem
	err := s.q.QueryRow(ctx, `SELECT id, business_id, name, type, unit_price, tax_class, created_at
	                          FROM catalog_items WHERE id=$1`, id).
		Scan(&it.ID, &it.BusinessID, &it.Name, &it.Type, &it.UnitPrice, &it.TaxClass, &it.CreatedAt)
	return it, notFound(err)
}

func (s *Store) InsertCatalogItem(ctx context.Context, it pos.CatalogItem) error {
	_, err := s.q.Exec(ctx, `INSERT INTO catalog_items(id, business_id, name, type, unit_price, tax_class, created_at)
	                         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		it.ID, it.BusinessID, it.Name, it.Type, it.UnitPrice, it.TaxClass, it.CreatedAt)
	return err
}

func (s *Store) InsertOrder(ctx context.Context, o pos.Order) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO orders(id, business_id, employee_id, reservation_id, status, table_label,
		                   tip_amount, discount_id, discount_snapshot, created_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.BusinessID, o.EmployeeID, o.ReservationID, o.Status, o.TableLabel,
		o.TipAmount, o.DiscountID, o.DiscountSnapshot, o.CreatedAt, o.ClosedAt)
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (pos.Order, error) {
	var o pos.Order
	err := s.q.QueryRow(ctx, `
		SELECT id, business_id, employee_id, reservation_id, status, table_label,
		       tip_amount, discount_id, discount_snapshot, created_at, closed_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.BusinessID, &o.EmployeeID, &o.ReservationID, &o.Status, &o.TableLabel,
			&o.TipAmount, &o.DiscountID, &o.DiscountSnapshot, &o.CreatedAt, &o.ClosedAt)
	return o, notFound(err)
}

func (s *Store) UpdateOrder(ctx context.Context, o pos.Order) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE orders SET status=$2, table_label=$3, tip_amount=$4, discount_id=$5,
		       discount_snapshot=$6, closed_at=$7
		WHERE id=$1`,
		o.ID, o.Status, o.TableLabel, o.TipAmount, o.DiscountID, o.DiscountSnapshot, o.ClosedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pos.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	return err
}

func (s *Store) InsertOrderLine(ctx context.Context, l pos.OrderLine) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO order_lines(id, order_id, business_id, catalog_item_id, qty, item_name,
		       unit_price, tax_class, tax_rate_percent, catalog_type, discount_id,
		       discount_snapshot, performed_by, performed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.ID, l.OrderID, l.BusinessID, l.CatalogItemID, l.Qty, l.ItemName,
		l.UnitPrice, l.TaxClass, l.TaxRatePercent, l.CatalogType, l.DiscountID,
		l.DiscountSnapshot, l.PerformedBy, l.PerformedAt)
	return err
}

const lineColumns = `id, order_id, business_id, catalog_item_id, qty, item_name, unit_price,
	tax_class, tax_rate_percent, catalog_type, discount_id, discount_snapshot,
	performed_by, performed_at`

func scanLine(row pgx.Row) (pos.OrderLine, error) {
	var l pos.OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.BusinessID, &l.CatalogItemID, &l.Qty, &l.ItemName,
		&l.UnitPrice, &l.TaxClass, &l.TaxRatePercent, &l.CatalogType, &l.DiscountID,
		&l.DiscountSnapshot, &l.PerformedBy, &l.PerformedAt)
	return l, err
}

func (s *Store) GetOrderLine(ctx context.Context, id string) (pos.OrderLine, error) {
	l, err := scanLine(s.q.QueryRow(ctx, `SELECT `+lineColumns+` FROM order_lines WHERE id=$1`, id))
	return l, notFound(err)
}

func (s *Store) UpdateOrderLine(ctx context.Context, l pos.OrderLine) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE order_lines SET order_id=$2, qty=$3, discount_id=$4, discount_snapshot=$5,
		       performed_by=$6, performed_at=$7
		WHERE id=$1`,
		l.ID, l.OrderID, l.Qty, l.DiscountID, l.DiscountSnapshot, l.PerformedBy, l.PerformedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pos.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteOrderLine(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM order_lines WHERE id=$1`, id)
	return err
}

func (s *Store) ListOrderLines(ctx context.Context, orderID string) ([]pos.OrderLine, error) {
	rows, err := s.q.Query(ctx, `SELECT `+lineColumns+` FROM order_lines
	                             WHERE order_id=$1 ORDER BY performed_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.OrderLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) InsertDiscount(ctx context.Context, d pos.Discount) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO discounts(id, business_id, code, type, scope, value, starts_at, ends_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.BusinessID, d.Code, d.Type, d.Scope, d.Value, d.StartsAt, d.EndsAt, d.Status)
	return err
}

func (s *Store) GetDiscount(ctx context.Context, id string) (pos.Discount, error) {
	var d pos.Discount
	err := s.q.QueryRow(ctx, `SELECT id, business_id, code, type, scope, value, starts_at, ends_at, status
	                          FROM discounts WHERE id=$1`, id).
		Scan(&d.ID, &d.BusinessID, &d.Code, &d.Type, &d.Scope, &d.Value, &d.StartsAt, &d.EndsAt, &d.Status)
	return d, notFound(err)
}

func (s *Store) ListActiveDiscounts(ctx context.Context, businessID string, scope pos.DiscountScope, now time.Time) ([]pos.Discount, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, business_id, code, type, scope, value, starts_at, ends_at, status
		FROM discounts
		WHERE business_id=$1 AND scope=$2 AND status='ACTIVE' AND starts_at<=$3 AND ends_at>=$3`,
		businessID, scope, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.Discount
	for rows.Next() {
		var d pos.Discount
		if err := rows.Scan(&d.ID, &d.BusinessID, &d.Code, &d.Type, &d.Scope, &d.Value,
			&d.StartsAt, &d.EndsAt, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) InsertDiscountEligibility(ctx context.Context, e pos.DiscountEligibility) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO discount_eligibility(discount_id, catalog_item_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, e.DiscountID, e.CatalogItemID)
	return err
}

func (s *Store) HasDiscountEligibility(ctx context.Context, discountID, catalogItemID string) (bool, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM discount_eligibility
	                          WHERE discount_id=$1 AND catalog_item_id=$2`,
		discountID, catalogItemID).Scan(&n)
	return n > 0, err
}

func (s *Store) InsertTaxRule(ctx context.Context, r pos.TaxRule) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO tax_rules(id, country, tax_class, rate_percent, valid_from, valid_to)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.Country, r.TaxClass, r.RatePercent, r.ValidFrom, r.ValidTo)
	return err
}

func (s *Store) ListTaxRules(ctx context.Context, country, taxClass string, now time.Time) ([]pos.TaxRule, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, country, tax_class, rate_percent, valid_from, valid_to
		FROM tax_rules
		WHERE country=$1 AND tax_class=$2 AND valid_from<=$3 AND valid_to>=$3`,
		country, taxClass, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.TaxRule
	for rows.Next() {
		var r pos.TaxRule
		if err := rows.Scan(&r.ID, &r.Country, &r.TaxClass, &r.RatePercent, &r.ValidFrom, &r.ValidTo); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertStockItem(ctx context.Context, it pos.StockItem) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO stock_items(id, business_id, catalog_item_id, qty, avg_unit_cost, version)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		it.ID, it.BusinessID, it.CatalogItemID, it.Qty, it.AvgUnitCost, it.Version)
	return err
}

func (s *Store) GetStockItem(ctx context.Context, id string) (pos.StockItem, error) {
	var it pos.StockItem
	err := s.q.QueryRow(ctx, `SELECT id, business_id, catalog_item_id, qty, avg_unit_cost, version
	                          FROM stock_items WHERE id=$1`, id).
		Scan(&it.ID, &it.BusinessID, &it.CatalogItemID, &it.Qty, &it.AvgUnitCost, &it.Version)
	return it, notFound(err)
}

func (s *Store) GetStockItemByCatalogItem(ctx context.Context, catalogItemID string) (pos.StockItem, error) {
	var it pos.StockItem
	err := s.q.QueryRow(ctx, `SELECT id, business_id, catalog_item_id, qty, avg_unit_cost, version
	                          FROM stock_items WHERE catalog_item_id=$1`, catalogItemID).
		Scan(&it.ID, &it.BusinessID, &it.CatalogItemID, &it.Qty, &it.AvgUnitCost, &it.Version)
	return it, notFound(err)
}

func (s *Store) UpdateStockItem(ctx context.Context, it pos.StockItem, expectedVersion int) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE stock_items SET qty=$2, avg_unit_cost=$3, version=$4
		WHERE id=$1 AND version=$5`,
		it.ID, it.Qty, it.AvgUnitCost, it.Version, expectedVersion)
	if err != nil {
		return err
	}
	// The row was read moments ago; zero rows means the version moved on.
	if ct.RowsAffected() == 0 {
		return pos.ErrVersionConflict
	}
	return nil
}

func (s *Store) InsertStockMovement(ctx context.Context, m pos.StockMovement) error {
	var cost decimal.NullDecimal
	if m.UnitCost != nil {
		cost = decimal.NullDecimal{Decimal: *m.UnitCost, Valid: true}
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO stock_movements(id, stock_item_id, type, delta, unit_cost, order_line_id, note, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.StockItemID, m.Type, m.Delta, cost, m.OrderLineID, m.Note, m.At)
	return err
}

func (s *Store) ListStockMovements(ctx context.Context, stockItemID string) ([]pos.StockMovement, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, stock_item_id, type, delta, unit_cost, order_line_id, note, at
		FROM stock_movements WHERE stock_item_id=$1 ORDER BY at, id`, stockItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.StockMovement
	for rows.Next() {
		var m pos.StockMovement
		var cost decimal.NullDecimal
		if err := rows.Scan(&m.ID, &m.StockItemID, &m.Type, &m.Delta, &cost, &m.OrderLineID, &m.Note, &m.At); err != nil {
			return nil, err
		}
		if cost.Valid {
			c := cost.Decimal
			m.UnitCost = &c
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertGiftCard(ctx context.Context, g pos.GiftCard) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO gift_cards(id, business_id, code, balance_cents, status, expires_at, issued_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		g.ID, g.BusinessID, g.Code, g.BalanceCents, g.Status, g.ExpiresAt, g.IssuedAt, g.Version)
	return err
}

const giftCardColumns = `id, business_id, code, balance_cents, status, expires_at, issued_at, version`

func scanGiftCard(row pgx.Row) (pos.GiftCard, error) {
	var g pos.GiftCard
	err := row.Scan(&g.ID, &g.BusinessID, &g.Code, &g.BalanceCents, &g.Status,
		&g.ExpiresAt, &g.IssuedAt, &g.Version)
	return g, err
}

func (s *Store) GetGiftCard(ctx context.Context, id string) (pos.GiftCard, error) {
	g, err := scanGiftCard(s.q.QueryRow(ctx, `SELECT `+giftCardColumns+` FROM gift_cards WHERE id=$1`, id))
	return g, notFound(err)
}

func (s *Store) GetGiftCardByCode(ctx context.Context, businessID, code string) (pos.GiftCard, error) {
	g, err := scanGiftCard(s.q.QueryRow(ctx, `SELECT `+giftCardColumns+` FROM gift_cards
	                                         WHERE business_id=$1 AND lower(code)=lower($2)`,
		businessID, code))
	return g, notFound(err)
}

func (s *Store) UpdateGiftCard(ctx context.Context, g pos.GiftCard, expectedVersion int) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE gift_cards SET balance_cents=$2, status=$3, expires_at=$4, version=$5
		WHERE id=$1 AND version=$6`,
		g.ID, g.BalanceCents, g.Status, g.ExpiresAt, g.Version, expectedVersion)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pos.ErrVersionConflict
	}
	return nil
}

func (s *Store) InsertPayment(ctx context.Context, p pos.Payment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO payments(id, business_id, order_id, employee_id, amount_cents, tip_cents,
		       currency, method, status, is_open, gift_card_id, gift_card_planned,
		       gift_card_charged, session_id, inventory_applied, inventory_applied_at,
		       created_at, completed_at, refunded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		p.ID, p.BusinessID, p.OrderID, p.EmployeeID, p.AmountCents, p.TipCents,
		p.Currency, p.Method, p.Status, p.IsOpen, p.GiftCardID, p.GiftCardPlanned,
		p.GiftCardCharged, p.SessionID, p.InventoryApplied, p.InventoryAppliedAt,
		p.CreatedAt, p.CompletedAt, p.RefundedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pos.ErrOpenPaymentExists
	}
	return err
}

const paymentColumns = `id, business_id, order_id, employee_id, amount_cents, tip_cents,
	currency, method, status, is_open, gift_card_id, gift_card_planned, gift_card_charged,
	session_id, inventory_applied, inventory_applied_at, created_at, completed_at, refunded_at`

func scanPayment(row pgx.Row) (pos.Payment, error) {
	var p pos.Payment
	err := row.Scan(&p.ID, &p.BusinessID, &p.OrderID, &p.EmployeeID, &p.AmountCents, &p.TipCents,
		&p.Currency, &p.Method, &p.Status, &p.IsOpen, &p.GiftCardID, &p.GiftCardPlanned,
		&p.GiftCardCharged, &p.SessionID, &p.InventoryApplied, &p.InventoryAppliedAt,
		&p.CreatedAt, &p.CompletedAt, &p.RefundedAt)
	return p, err
}

func (s *Store) GetPayment(ctx context.Context, id string) (pos.Payment, error) {
	p, err := scanPayment(s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	return p, notFound(err)
}

func (s *Store) GetPaymentBySession(ctx context.Context, sessionID string) (pos.Payment, error) {
	p, err := scanPayment(s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
	                                        WHERE session_id=$1 AND session_id<>''`, sessionID))
	return p, notFound(err)
}

func (s *Store) UpdatePayment(ctx context.Context, p pos.Payment) error {
	ct, err := s.q.Exec(ctx, `
		UPDATE payments SET status=$2, is_open=$3, gift_card_charged=$4, session_id=$5,
		       inventory_applied=$6, inventory_applied_at=$7, completed_at=$8, refunded_at=$9
		WHERE id=$1`,
		p.ID, p.Status, p.IsOpen, p.GiftCardCharged, p.SessionID,
		p.InventoryApplied, p.InventoryAppliedAt, p.CompletedAt, p.RefundedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pos.ErrNotFound
	}
	return nil
}
