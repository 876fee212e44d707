package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

type accrualKey struct {
	OrderID uuid.UUID
	Role    model.Role
	PartyID uuid.UUID
}

type memState struct {
	parties     map[uuid.UUID]model.Party
	products    map[uuid.UUID]model.Product
	stock       map[model.StockKey]model.Stock
	orders      map[uuid.UUID]model.Order
	investments map[uuid.UUID]model.Investment
	accruals    map[accrualKey]model.Accrual
	remittances map[uuid.UUID]model.Remittance
}

func (s *memState) clone() *memState {
	return &memState{
		parties:     maps.Clone(s.parties),
		products:    maps.Clone(s.products),
		stock:       maps.Clone(s.stock),
		orders:      maps.Clone(s.orders),
		investments: maps.Clone(s.investments),
		accruals:    maps.Clone(s.accruals),
		remittances: maps.Clone(s.remittances),
	}
}

// MemoryRepository хранилище в памяти процесса. Транзакции выполняются по одной
// над копией состояния, которая подменяет текущее только при успехе.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memState{
		parties:     make(map[uuid.UUID]model.Party),
		products:    make(map[uuid.UUID]model.Product),
		stock:       make(map[model.StockKey]model.Stock),
		orders:      make(map[uuid.UUID]model.Order),
		investments: make(map[uuid.UUID]model.Investment),
		accruals:    make(map[accrualKey]model.Accrual),
		remittances: make(map[uuid.UUID]model.Remittance),
	}}
}

// InTx реализует Store.
func (m *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next := m.state.clone()
	if err := fn(&memTx{s: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

// Close реализует Store.
func (m *MemoryRepository) Close() error { return nil }

type memTx struct {
	s *memState
}

func copyOrder(o model.Order) model.Order {
	o.Items = slices.Clone(o.Items)
	o.InvestmentIDs = slices.Clone(o.InvestmentIDs)
	return o
}

func (t *memTx) CreateParty(_ context.Context, p *model.Party) error {
	if _, ok := t.s.parties[p.ID]; ok {
		return fmt.Errorf("insert party: duplicate id %s", p.ID)
	}
	t.s.parties[p.ID] = *p
	return nil
}

func (t *memTx) GetParty(_ context.Context, id uuid.UUID) (*model.Party, error) {
	p, ok := t.s.parties[id]
	if !ok {
		return nil, fmt.Errorf("%w: party %s", model.ErrNotFound, id)
	}
	return &p, nil
}

func (t *memTx) LockParty(ctx context.Context, id uuid.UUID) (*model.Party, error) {
	return t.GetParty(ctx, id)
}

func (t *memTx) GetParties(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Party, error) {
	res := make(map[uuid.UUID]model.Party, len(ids))
	for _, id := range ids {
		if p, ok := t.s.parties[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (t *memTx) CreateProduct(_ context.Context, p *model.Product) error {
	if _, ok := t.s.products[p.ID]; ok {
		return fmt.Errorf("insert product: duplicate id %s", p.ID)
	}
	t.s.products[p.ID] = *p
	return nil
}

func (t *memTx) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	res := make(map[uuid.UUID]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (t *memTx) ListProducts(_ context.Context) ([]model.Product, error) {
	res := slices.Collect(maps.Values(t.s.products))
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (t *memTx) LockStock(_ context.Context, keys []model.StockKey) (map[model.StockKey]*model.Stock, error) {
	res := make(map[model.StockKey]*model.Stock, len(keys))
	for _, k := range keys {
		if _, ok := t.s.products[k.ProductID]; !ok {
			return nil, fmt.Errorf("%w: product %s", model.ErrNotFound, k.ProductID)
		}
		s, ok := t.s.stock[k]
		if !ok {
			s = model.Stock{ProductID: k.ProductID, Country: k.Country}
		}
		res[k] = &s
	}
	return res, nil
}

func (t *memTx) SaveStock(_ context.Context, stocks []*model.Stock) error {
	for _, s := range stocks {
		if s.DeliveredQty < 0 || s.DeliveredQty > s.PurchasedQty {
			return &model.InsufficientStockError{Key: s.Key(), Requested: s.DeliveredQty, Left: s.PurchasedQty}
		}
		t.s.stock[s.Key()] = *s
	}
	return nil
}

func (t *memTx) ListStock(_ context.Context) ([]model.Stock, error) {
	res := slices.Collect(maps.Values(t.s.stock))
	sort.Slice(res, func(i, j int) bool {
		if a, b := res[i].ProductID.String(), res[j].ProductID.String(); a != b {
			return a < b
		}
		return res[i].Country < res[j].Country
	})
	return res, nil
}

func (t *memTx) ReservedQuantities(_ context.Context) (map[model.StockKey]int64, error) {
	res := make(map[model.StockKey]int64)
	for _, o := range t.s.orders {
		if !o.Status.IsOpen() {
			continue
		}
		for _, it := range o.Items {
			res[model.StockKey{ProductID: it.ProductID, Country: o.Country}] += it.Quantity
		}
	}
	return res, nil
}

func (t *memTx) CreateOrder(_ context.Context, o *model.Order) error {
	if _, ok := t.s.orders[o.ID]; ok {
		return fmt.Errorf("insert order: duplicate id %s", o.ID)
	}
	t.s.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, id)
	}
	o = copyOrder(o)
	return &o, nil
}

func (t *memTx) LockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) UpdateOrder(_ context.Context, o *model.Order) error {
	if _, ok := t.s.orders[o.ID]; !ok {
		return fmt.Errorf("%w: order %s", model.ErrNotFound, o.ID)
	}
	t.s.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) ListOrders(_ context.Context, f model.OrderFilter) ([]model.Order, error) {
	var res []model.Order
	for _, o := range t.s.orders {
		if f.Country != "" && o.Country != f.Country {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
			continue
		}
		if f.DriverID != nil && (o.DriverID == nil || *o.DriverID != *f.DriverID) {
			continue
		}
		if f.AgentID != nil && o.CreatedBy != *f.AgentID {
			continue
		}
		res = append(res, copyOrder(o))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (t *memTx) CreateInvestment(_ context.Context, inv *model.Investment) error {
	if _, ok := t.s.investments[inv.ID]; ok {
		return fmt.Errorf("insert investment: duplicate id %s", inv.ID)
	}
	t.s.investments[inv.ID] = *inv
	return nil
}

func sortInvestments(list []model.Investment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

func (t *memTx) ActiveInvestments(_ context.Context, productIDs []uuid.UUID) ([]model.Investment, error) {
	var res []model.Investment
	for _, inv := range t.s.investments {
		if inv.Status == model.InvestmentActive && slices.Contains(productIDs, inv.ProductID) {
			res = append(res, inv)
		}
	}
	sortInvestments(res)
	return res, nil
}

func (t *memTx) LockInvestments(_ context.Context, ids []uuid.UUID) ([]*model.Investment, error) {
	var res []*model.Investment
	for _, id := range ids {
		if inv, ok := t.s.investments[id]; ok {
			res = append(res, &inv)
		}
	}
	return res, nil
}

func (t *memTx) SaveInvestments(_ context.Context, invs []*model.Investment) error {
	for _, inv := range invs {
		if _, ok := t.s.investments[inv.ID]; !ok {
			return fmt.Errorf("%w: investment %s", model.ErrNotFound, inv.ID)
		}
		t.s.investments[inv.ID] = *inv
	}
	return nil
}

func (t *memTx) ListInvestments(_ context.Context, investorID *uuid.UUID) ([]model.Investment, error) {
	var res []model.Investment
	for _, inv := range t.s.investments {
		if investorID != nil && inv.InvestorID != *investorID {
			continue
		}
		res = append(res, inv)
	}
	sortInvestments(res)
	return res, nil
}

func (t *memTx) InsertAccrual(_ context.Context, a model.Accrual) (bool, error) {
	key := accrualKey{OrderID: a.OrderID, Role: a.Role, PartyID: a.PartyID}
	if _, ok := t.s.accruals[key]; ok {
		return false, nil
	}
	t.s.accruals[key] = a
	return true, nil
}

func (t *memTx) EarnedTotal(_ context.Context, partyID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for key, a := range t.s.accruals {
		if key.PartyID != partyID {
			continue
		}
		if o, ok := t.s.orders[key.OrderID]; ok && o.Status == model.StatusDelivered {
			total = total.Add(a.Amount)
		}
	}
	return total, nil
}

func (t *memTx) CreateRemittance(_ context.Context, r *model.Remittance) error {
	if _, ok := t.s.remittances[r.ID]; ok {
		return fmt.Errorf("insert remittance: duplicate id %s", r.ID)
	}
	t.s.remittances[r.ID] = *r
	return nil
}

func (t *memTx) GetRemittance(_ context.Context, id uuid.UUID) (*model.Remittance, error) {
	r, ok := t.s.remittances[id]
	if !ok {
		return nil, fmt.Errorf("%w: remittance %s", model.ErrNotFound, id)
	}
	return &r, nil
}

func (t *memTx) LockRemittance(ctx context.Context, id uuid.UUID) (*model.Remittance, error) {
	return t.GetRemittance(ctx, id)
}

func (t *memTx) UpdateRemittance(_ context.Context, r *model.Remittance) error {
	if _, ok := t.s.remittances[r.ID]; !ok {
		return fmt.Errorf("%w: remittance %s", model.ErrNotFound, r.ID)
	}
	t.s.remittances[r.ID] = *r
	return nil
}

func (t *memTx) ListRemittances(_ context.Context, f model.RemittanceFilter) ([]model.Remittance, error) {
	var res []model.Remittance
	for _, r := range t.s.remittances {
		if f.RequesterID != nil && r.RequesterID != *f.RequesterID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (t *memTx) SentTotal(_ context.Context, partyID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range t.s.remittances {
		if r.RequesterID == partyID && r.Status == model.RemittanceSent && r.SentAmount != nil {
			total = total.Add(*r.SentAmount)
		}
	}
	return total, nil
}
