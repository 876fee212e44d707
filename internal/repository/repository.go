// Package repository содержит транзакционное хранилище бэк-офиса: PostgreSQL и in-memory.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// Store открывает транзакции над хранилищем.
type Store interface {
	// InTx выполняет fn в одной транзакции: все изменения фиксируются вместе или
	// не фиксируются вовсе, если fn вернула ошибку.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx операции, доступные внутри транзакции. Lock* блокируют строки до конца транзакции.
type Tx interface {
	CreateParty(ctx context.Context, p *model.Party) error
	GetParty(ctx context.Context, id uuid.UUID) (*model.Party, error)
	LockParty(ctx context.Context, id uuid.UUID) (*model.Party, error)
	GetParties(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Party, error)

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)

	// LockStock блокирует остатки в переданном порядке, создавая недостающие строки.
	LockStock(ctx context.Context, keys []model.StockKey) (map[model.StockKey]*model.Stock, error)
	SaveStock(ctx context.Context, stocks []*model.Stock) error
	ListStock(ctx context.Context) ([]model.Stock, error)
	// ReservedQuantities суммирует количества в открытых заказах.
	ReservedQuantities(ctx context.Context) (map[model.StockKey]int64, error)

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)

	CreateInvestment(ctx context.Context, inv *model.Investment) error
	ActiveInvestments(ctx context.Context, productIDs []uuid.UUID) ([]model.Investment, error)
	LockInvestments(ctx context.Context, ids []uuid.UUID) ([]*model.Investment, error)
	SaveInvestments(ctx context.Context, invs []*model.Investment) error
	ListInvestments(ctx context.Context, investorID *uuid.UUID) ([]model.Investment, error)

	// InsertAccrual сохраняет начисление; false, если по этому заказу, роли и участнику
	// начисление уже было.
	InsertAccrual(ctx context.Context, a model.Accrual) (bool, error)
	// EarnedTotal сумма начислений участника по заказам, которые сейчас в статусе delivered.
	EarnedTotal(ctx context.Context, partyID uuid.UUID) (decimal.Decimal, error)

	CreateRemittance(ctx context.Context, r *model.Remittance) error
	GetRemittance(ctx context.Context, id uuid.UUID) (*model.Remittance, error)
	LockRemittance(ctx context.Context, id uuid.UUID) (*model.Remittance, error)
	UpdateRemittance(ctx context.Context, r *model.Remittance) error
	ListRemittances(ctx context.Context, f model.RemittanceFilter) ([]model.Remittance, error)
	// SentTotal сумма фактически отправленных выплат участника.
	SentTotal(ctx context.Context, partyID uuid.UUID) (decimal.Decimal, error)
}
