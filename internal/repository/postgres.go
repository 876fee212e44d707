package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранилище данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// InTx выполняет fn в транзакции. Конфликты сериализации, дедлоки и обрывы соединения
// повторяются целиком, поэтому fn должна читать всё нужное заново через tx.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if err := fn(&pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", model.ErrNotFound, what, id)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func uuidStrings(ids []uuid.UUID) []string {
	res := make([]string, len(ids))
	for i, id := range ids {
		res[i] = id.String()
	}
	return res
}

// --- участники ---

const partyColumns = `id, role, name, country, currency, commission_per_order, payout_profile, created_at`

func scanParty(row pgx.Row) (*model.Party, error) {
	var (
		p      model.Party
		payout []byte
	)
	if err := row.Scan(&p.ID, &p.Role, &p.Name, &p.Country, &p.Currency, &p.CommissionPerOrder, &payout, &p.CreatedAt); err != nil {
		return nil, err
	}
	profile, err := model.DecodePayoutProfile(payout)
	if err != nil {
		return nil, err
	}
	p.Payout = profile
	return &p, nil
}

func (t *pgTx) CreateParty(ctx context.Context, p *model.Party) error {
	var payout []byte
	if p.Payout != nil {
		b, err := json.Marshal(p.Payout)
		if err != nil {
			return fmt.Errorf("encode payout profile: %w", err)
		}
		payout = b
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO parties (`+partyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Role, p.Name, p.Country, p.Currency, p.CommissionPerOrder, payout, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (t *pgTx) GetParty(ctx context.Context, id uuid.UUID) (*model.Party, error) {
	p, err := scanParty(t.tx.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "party", id)
	}
	return p, nil
}

func (t *pgTx) LockParty(ctx context.Context, id uuid.UUID) (*model.Party, error) {
	p, err := scanParty(t.tx.QueryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "party", id)
	}
	return p, nil
}

func (t *pgTx) GetParties(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Party, error) {
	res := make(map[uuid.UUID]model.Party, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	rows, err := t.tx.Query(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("select parties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		res[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// --- товары и остатки ---

func (t *pgTx) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO products (id, name, price, currency, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Price, p.Currency, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (t *pgTx) queryProducts(ctx context.Context, sql string, args ...any) ([]model.Product, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	res := make(map[uuid.UUID]model.Product, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	list, err := t.queryProducts(ctx,
		`SELECT id, name, price, currency, created_at FROM products WHERE id = ANY($1::uuid[])`,
		uuidStrings(ids),
	)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		res[p.ID] = p
	}
	return res, nil
}

func (t *pgTx) ListProducts(ctx context.Context) ([]model.Product, error) {
	return t.queryProducts(ctx, `SELECT id, name, price, currency, created_at FROM products ORDER BY name`)
}

func (t *pgTx) LockStock(ctx context.Context, keys []model.StockKey) (map[model.StockKey]*model.Stock, error) {
	res := make(map[model.StockKey]*model.Stock, len(keys))
	for _, k := range keys {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO stock (product_id, country) VALUES ($1, $2) ON CONFLICT (product_id, country) DO NOTHING`,
			k.ProductID, k.Country,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return nil, fmt.Errorf("%w: product %s", model.ErrNotFound, k.ProductID)
			}
			return nil, fmt.Errorf("insert stock: %w", err)
		}

		s := &model.Stock{ProductID: k.ProductID, Country: k.Country}
		err = t.tx.QueryRow(ctx,
			`SELECT purchased_qty, delivered_qty FROM stock WHERE product_id = $1 AND country = $2 FOR UPDATE`,
			k.ProductID, k.Country,
		).Scan(&s.PurchasedQty, &s.DeliveredQty)
		if err != nil {
			return nil, fmt.Errorf("lock stock: %w", err)
		}
		res[k] = s
	}
	return res, nil
}

func (t *pgTx) SaveStock(ctx context.Context, stocks []*model.Stock) error {
	for _, s := range stocks {
		_, err := t.tx.Exec(ctx,
			`UPDATE stock SET purchased_qty = $3, delivered_qty = $4 WHERE product_id = $1 AND country = $2`,
			s.ProductID, s.Country, s.PurchasedQty, s.DeliveredQty,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
				return &model.InsufficientStockError{Key: s.Key(), Requested: s.DeliveredQty, Left: s.PurchasedQty}
			}
			return fmt.Errorf("update stock: %w", err)
		}
	}
	return nil
}

func (t *pgTx) ListStock(ctx context.Context) ([]model.Stock, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT product_id, country, purchased_qty, delivered_qty FROM stock ORDER BY product_id, country`,
	)
	if err != nil {
		return nil, fmt.Errorf("select stock: %w", err)
	}
	defer rows.Close()

	var res []model.Stock
	for rows.Next() {
		var s model.Stock
		if err := rows.Scan(&s.ProductID, &s.Country, &s.PurchasedQty, &s.DeliveredQty); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func statusStrings(statuses []model.ShipmentStatus) []string {
	res := make([]string, len(statuses))
	for i, s := range statuses {
		res[i] = string(s)
	}
	return res
}

func (t *pgTx) ReservedQuantities(ctx context.Context) (map[model.StockKey]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT (i->>'productRef')::uuid, o.country, SUM((i->>'quantity')::bigint)::bigint
		 FROM orders o CROSS JOIN LATERAL jsonb_array_elements(o.items) AS i
		 WHERE o.status = ANY($1)
		 GROUP BY 1, 2`,
		statusStrings(model.OpenStatuses()),
	)
	if err != nil {
		return nil, fmt.Errorf("select reserved: %w", err)
	}
	defer rows.Close()

	res := make(map[model.StockKey]int64)
	for rows.Next() {
		var (
			k   model.StockKey
			qty int64
		)
		if err := rows.Scan(&k.ProductID, &k.Country, &qty); err != nil {
			return nil, fmt.Errorf("scan reserved: %w", err)
		}
		res[k] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// --- заказы ---

const orderColumns = `id, country, currency, items, total, collected_amount, discount, status, driver_id,
	created_by, investment_ids, customer_name, customer_phone, address, created_at, shipped_at,
	delivered_at, updated_at, return_submitted, return_reason, return_verified_at, return_verified_by,
	inventory_adjusted, commission_accrued_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o           model.Order
		items, invs []byte
	)
	err := row.Scan(
		&o.ID, &o.Country, &o.Currency, &items, &o.Total, &o.CollectedAmount, &o.Discount, &o.Status, &o.DriverID,
		&o.CreatedBy, &invs, &o.CustomerName, &o.CustomerPhone, &o.Address, &o.CreatedAt, &o.ShippedAt,
		&o.DeliveredAt, &o.UpdatedAt, &o.ReturnSubmitted, &o.ReturnReason, &o.ReturnVerifiedAt, &o.ReturnVerifiedBy,
		&o.InventoryAdjusted, &o.CommissionAccruedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if len(invs) > 0 {
		if err := json.Unmarshal(invs, &o.InvestmentIDs); err != nil {
			return nil, fmt.Errorf("decode order investments: %w", err)
		}
	}
	return &o, nil
}

func orderArgs(o *model.Order) ([]any, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	ids := o.InvestmentIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	invs, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode order investments: %w", err)
	}
	return []any{
		o.ID, o.Country, o.Currency, items, o.Total, o.CollectedAmount, o.Discount, o.Status, o.DriverID,
		o.CreatedBy, invs, o.CustomerName, o.CustomerPhone, o.Address, o.CreatedAt, o.ShippedAt,
		o.DeliveredAt, o.UpdatedAt, o.ReturnSubmitted, o.ReturnReason, o.ReturnVerifiedAt, o.ReturnVerifiedBy,
		o.InventoryAdjusted, o.CommissionAccruedAt,
	}, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *model.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return o, nil
}

func (t *pgTx) LockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET
			country = $2, currency = $3, items = $4, total = $5, collected_amount = $6, discount = $7,
			status = $8, driver_id = $9, created_by = $10, investment_ids = $11, customer_name = $12,
			customer_phone = $13, address = $14, created_at = $15, shipped_at = $16, delivered_at = $17,
			updated_at = $18, return_submitted = $19, return_reason = $20, return_verified_at = $21,
			return_verified_by = $22, inventory_adjusted = $23, commission_accrued_at = $24
		 WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", model.ErrNotFound, o.ID)
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Country != "" {
		add("country = $%d", string(f.Country))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.DriverID != nil {
		add("driver_id = $%d", *f.DriverID)
	}
	if f.AgentID != nil {
		add("created_by = $%d", *f.AgentID)
	}

	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// --- инвестиции ---

const investmentColumns = `id, investor_id, product_id, owner_id, amount, quantity, currency, profit_per_unit,
	status, units_sold, total_profit, total_revenue, created_at`

func scanInvestment(row pgx.Row) (*model.Investment, error) {
	var inv model.Investment
	err := row.Scan(
		&inv.ID, &inv.InvestorID, &inv.ProductID, &inv.OwnerID, &inv.Amount, &inv.Quantity, &inv.Currency,
		&inv.ProfitPerUnit, &inv.Status, &inv.UnitsSold, &inv.TotalProfit, &inv.TotalRevenue, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) queryInvestments(ctx context.Context, sql string, args ...any) ([]*model.Investment, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select investments: %w", err)
	}
	defer rows.Close()

	var res []*model.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		res = append(res, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func derefInvestments(list []*model.Investment) []model.Investment {
	res := make([]model.Investment, 0, len(list))
	for _, inv := range list {
		res = append(res, *inv)
	}
	return res
}

func (t *pgTx) CreateInvestment(ctx context.Context, inv *model.Investment) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO investments (`+investmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		inv.ID, inv.InvestorID, inv.ProductID, inv.OwnerID, inv.Amount, inv.Quantity, inv.Currency,
		inv.ProfitPerUnit, inv.Status, inv.UnitsSold, inv.TotalProfit, inv.TotalRevenue, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert investment: %w", err)
	}
	return nil
}

func (t *pgTx) ActiveInvestments(ctx context.Context, productIDs []uuid.UUID) ([]model.Investment, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	list, err := t.queryInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE product_id = ANY($1::uuid[]) AND status = $2
		 ORDER BY created_at`,
		uuidStrings(productIDs), string(model.InvestmentActive),
	)
	if err != nil {
		return nil, err
	}
	return derefInvestments(list), nil
}

func (t *pgTx) LockInvestments(ctx context.Context, ids []uuid.UUID) ([]*model.Investment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.queryInvestments(ctx,
		`SELECT `+investmentColumns+` FROM investments WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`,
		uuidStrings(ids),
	)
}

func (t *pgTx) SaveInvestments(ctx context.Context, invs []*model.Investment) error {
	for _, inv := range invs {
		_, err := t.tx.Exec(ctx,
			`UPDATE investments SET status = $2, units_sold = $3, total_profit = $4, total_revenue = $5 WHERE id = $1`,
			inv.ID, inv.Status, inv.UnitsSold, inv.TotalProfit, inv.TotalRevenue,
		)
		if err != nil {
			return fmt.Errorf("update investment: %w", err)
		}
	}
	return nil
}

func (t *pgTx) ListInvestments(ctx context.Context, investorID *uuid.UUID) ([]model.Investment, error) {
	sql := `SELECT ` + investmentColumns + ` FROM investments`
	var args []any
	if investorID != nil {
		sql += ` WHERE investor_id = $1`
		args = append(args, *investorID)
	}
	sql += ` ORDER BY created_at`

	list, err := t.queryInvestments(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return derefInvestments(list), nil
}

// --- начисления ---

func (t *pgTx) InsertAccrual(ctx context.Context, a model.Accrual) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO accruals (order_id, role, party_id, amount, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_id, role, party_id) DO NOTHING`,
		a.OrderID, a.Role, a.PartyID, a.Amount, a.Currency, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert accrual: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) EarnedTotal(ctx context.Context, partyID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(a.amount), 0)
		 FROM accruals a JOIN orders o ON o.id = a.order_id
		 WHERE a.party_id = $1 AND o.status = $2`,
		partyID, string(model.StatusDelivered),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum accruals: %w", err)
	}
	return total, nil
}

// --- выплаты ---

const remittanceColumns = `id, requester_id, requester_role, amount, sent_amount, currency, note, status,
	approver_id, approved_at, sender_id, created_at, sent_at`

func scanRemittance(row pgx.Row) (*model.Remittance, error) {
	var (
		r    model.Remittance
		sent decimal.NullDecimal
	)
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.RequesterRole, &r.Amount, &sent, &r.Currency, &r.Note, &r.Status,
		&r.ApproverID, &r.ApprovedAt, &r.SenderID, &r.CreatedAt, &r.SentAt,
	)
	if err != nil {
		return nil, err
	}
	if sent.Valid {
		r.SentAmount = &sent.Decimal
	}
	return &r, nil
}

func remittanceArgs(r *model.Remittance) []any {
	var sent decimal.NullDecimal
	if r.SentAmount != nil {
		sent = decimal.NewNullDecimal(*r.SentAmount)
	}
	return []any{
		r.ID, r.RequesterID, r.RequesterRole, r.Amount, sent, r.Currency, r.Note, r.Status,
		r.ApproverID, r.ApprovedAt, r.SenderID, r.CreatedAt, r.SentAt,
	}
}

func (t *pgTx) CreateRemittance(ctx context.Context, r *model.Remittance) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO remittances (`+remittanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		remittanceArgs(r)...,
	)
	if err != nil {
		return fmt.Errorf("insert remittance: %w", err)
	}
	return nil
}

func (t *pgTx) GetRemittance(ctx context.Context, id uuid.UUID) (*model.Remittance, error) {
	r, err := scanRemittance(t.tx.QueryRow(ctx, `SELECT `+remittanceColumns+` FROM remittances WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "remittance", id)
	}
	return r, nil
}

func (t *pgTx) LockRemittance(ctx context.Context, id uuid.UUID) (*model.Remittance, error) {
	r, err := scanRemittance(t.tx.QueryRow(ctx, `SELECT `+remittanceColumns+` FROM remittances WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "remittance", id)
	}
	return r, nil
}

func (t *pgTx) UpdateRemittance(ctx context.Context, r *model.Remittance) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE remittances SET
			requester_id = $2, requester_role = $3, amount = $4, sent_amount = $5, currency = $6, note = $7,
			status = $8, approver_id = $9, approved_at = $10, sender_id = $11, created_at = $12, sent_at = $13
		 WHERE id = $1`,
		remittanceArgs(r)...,
	)
	if err != nil {
		return fmt.Errorf("update remittance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: remittance %s", model.ErrNotFound, r.ID)
	}
	return nil
}

func (t *pgTx) ListRemittances(ctx context.Context, f model.RemittanceFilter) ([]model.Remittance, error) {
	var (
		conds []string
		args  []any
	)
	if f.RequesterID != nil {
		args = append(args, *f.RequesterID)
		conds = append(conds, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + remittanceColumns + ` FROM remittances`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select remittances: %w", err)
	}
	defer rows.Close()

	var res []model.Remittance
	for rows.Next() {
		r, err := scanRemittance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan remittance: %w", err)
		}
		res = append(res, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func (t *pgTx) SentTotal(ctx context.Context, partyID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(sent_amount), 0) FROM remittances WHERE requester_id = $1 AND status = $2`,
		partyID, string(model.RemittanceSent),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum remittances: %w", err)
	}
	return total, nil
}
