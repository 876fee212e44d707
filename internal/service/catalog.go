package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/inventory"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
)

// CreatePartyInput данные нового участника.
type CreatePartyInput struct {
	Role               model.Role          `json:"role" validate:"required,role"`
	Name               string              `json:"name" validate:"required,max=200"`
	Country            model.Country       `json:"country" validate:"omitempty,country"`
	Currency           string              `json:"currency" validate:"omitempty,currency"`
	CommissionPerOrder decimal.Decimal     `json:"commissionPerOrder" validate:"gte=0"`
	Payout             model.PayoutProfile `json:"-" validate:"-"`
}

// CreateParty регистрирует участника. Валюта кошелька агента всегда валюта расчётов,
// водителя валюта его страны.
func (s *Service) CreateParty(ctx context.Context, actor Actor, in CreatePartyInput) (*model.Party, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.validate.Payout(in.Payout); err != nil {
		return nil, err
	}
	if in.Role == model.RoleDriver && in.Country == "" {
		return nil, &model.ValidationError{Field: "country", Reason: "is required for drivers"}
	}

	cur := in.Currency
	switch in.Role {
	case model.RoleAgent:
		cur = s.engine.SettlementCurrency()
	case model.RoleDriver:
		cur = in.Country.Currency()
	default:
		if cur == "" {
			cur = s.rates.Current().Pivot()
		}
	}
	if !s.rates.Current().Known(cur) && cur != s.engine.SettlementCurrency() {
		return nil, &model.ValidationError{Field: "currency", Reason: "unknown currency " + cur}
	}

	p := &model.Party{
		ID:                 uuid.New(),
		Role:               in.Role,
		Name:               in.Name,
		Country:            in.Country,
		Currency:           cur,
		CommissionPerOrder: in.CommissionPerOrder,
		Payout:             in.Payout,
		CreatedAt:          s.now(),
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.CreateParty(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// BootstrapOwner создаёт владельца с заданным идентификатором, если его ещё нет. Нужен,
// чтобы на пустой базе было кому выдать первую сессию.
func (s *Service) BootstrapOwner(ctx context.Context, id uuid.UUID, name string) (*model.Party, error) {
	var p *model.Party
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetParty(ctx, id)
		switch {
		case err == nil:
			if existing.Role != model.RoleOwner {
				return fmt.Errorf("%w: party %s is a %s", model.ErrForbidden, id, existing.Role)
			}
			p = existing
			return nil
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		p = &model.Party{
			ID:        id,
			Role:      model.RoleOwner,
			Name:      name,
			Currency:  s.rates.Current().Pivot(),
			CreatedAt: s.now(),
		}
		return tx.CreateParty(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetParty возвращает участника. Реквизиты выплаты видны полностью только самому участнику.
func (s *Service) GetParty(ctx context.Context, actor Actor, id uuid.UUID) (*model.Party, error) {
	var p *model.Party
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetParty(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if actor.ID != p.ID && p.Payout != nil {
		p.Payout = p.Payout.Masked()
	}
	return p, nil
}

// CreateProductInput данные товара каталога.
type CreateProductInput struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Currency string          `json:"currency" validate:"required,currency"`
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, in CreateProductInput) (*model.Product, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	p := &model.Product{
		ID:        uuid.New(),
		Name:      in.Name,
		Price:     in.Price,
		Currency:  in.Currency,
		CreatedAt: s.now(),
	}
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PurchaseInput закупка товара для страны.
type PurchaseInput struct {
	Country  model.Country `json:"country" validate:"required,country"`
	Quantity int64         `json:"quantity" validate:"gt=0"`
}

// PurchaseStock увеличивает закупленное количество товара в стране.
func (s *Service) PurchaseStock(ctx context.Context, actor Actor, productID uuid.UUID, in PurchaseInput) (*model.Stock, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	key := model.StockKey{ProductID: productID, Country: in.Country}
	var res model.Stock
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		stocks, err := tx.LockStock(ctx, []model.StockKey{key})
		if err != nil {
			return err
		}
		st := stocks[key]
		if err := inventory.Purchase(st, in.Quantity); err != nil {
			return err
		}
		if err := tx.SaveStock(ctx, []*model.Stock{st}); err != nil {
			return err
		}
		res = *st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// StockReport остатки по товарам и странам с резервом открытых заказов.
func (s *Service) StockReport(ctx context.Context) ([]model.StockReport, error) {
	var res []model.StockReport
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		stocks, err := tx.ListStock(ctx)
		if err != nil {
			return err
		}
		reserved, err := tx.ReservedQuantities(ctx)
		if err != nil {
			return err
		}
		products, err := tx.ListProducts(ctx)
		if err != nil {
			return err
		}
		names := make(map[uuid.UUID]string, len(products))
		for _, p := range products {
			names[p.ID] = p.Name
		}
		res = inventory.Report(stocks, reserved, names)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateInvestmentInput финансирование товара инвестором.
type CreateInvestmentInput struct {
	InvestorID    uuid.UUID       `json:"investorRef" validate:"required"`
	ProductID     uuid.UUID       `json:"productRef" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Quantity      int64           `json:"quantity" validate:"gt=0"`
	ProfitPerUnit decimal.Decimal `json:"profitPerUnit" validate:"gte=0"`
}

// CreateInvestment регистрирует инвестицию в валюте кошелька инвестора.
func (s *Service) CreateInvestment(ctx context.Context, actor Actor, in CreateInvestmentInput) (*model.Investment, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var inv *model.Investment
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		investor, err := tx.GetParty(ctx, in.InvestorID)
		if err != nil {
			return err
		}
		if investor.Role != model.RoleInvestor {
			return &model.ValidationError{Field: "investorRef", Reason: "party is not an investor"}
		}
		products, err := tx.GetProducts(ctx, []uuid.UUID{in.ProductID})
		if err != nil {
			return err
		}
		if _, ok := products[in.ProductID]; !ok {
			return fmt.Errorf("%w: product %s", model.ErrNotFound, in.ProductID)
		}

		inv = &model.Investment{
			ID:            uuid.New(),
			InvestorID:    investor.ID,
			ProductID:     in.ProductID,
			OwnerID:       actor.ID,
			Amount:        in.Amount,
			Quantity:      in.Quantity,
			Currency:      investor.Currency,
			ProfitPerUnit: in.ProfitPerUnit,
			Status:        model.InvestmentActive,
			TotalProfit:   decimal.Zero,
			TotalRevenue:  decimal.Zero,
			CreatedAt:     s.now(),
		}
		return tx.CreateInvestment(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvestments возвращает инвестиции. Инвестор видит только свои.
func (s *Service) ListInvestments(ctx context.Context, actor Actor, investorID *uuid.UUID) ([]model.Investment, error) {
	switch actor.Role {
	case model.RoleInvestor:
		investorID = &actor.ID
	case model.RoleOwner, model.RoleManager:
	default:
		return nil, requireRole(actor, model.RoleOwner, model.RoleManager, model.RoleInvestor)
	}

	var res []model.Investment
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.ListInvestments(ctx, investorID)
		return err
	})
	return res, err
}
