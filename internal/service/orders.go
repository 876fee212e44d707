package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/fulfillment"
	"github.com/mmeshcher/cod-backoffice/internal/inventory"
	"github.com/mmeshcher/cod-backoffice/internal/metrics"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/notify"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
)

// OrderItemInput позиция нового заказа.
type OrderItemInput struct {
	ProductID uuid.UUID       `json:"productRef" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

// CreateOrderInput данные нового заказа. Total, если не задан, считается как сумма
// позиций минус скидка.
type CreateOrderInput struct {
	Country         model.Country    `json:"country" validate:"required,country"`
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	Total           decimal.Decimal  `json:"total" validate:"gte=0"`
	Discount        decimal.Decimal  `json:"discount" validate:"gte=0"`
	CollectedAmount decimal.Decimal  `json:"collectedAmount" validate:"gte=0"`
	CustomerName    string           `json:"customerName" validate:"max=200"`
	CustomerPhone   string           `json:"customerPhone" validate:"max=40"`
	Address         string           `json:"address" validate:"max=500"`
}

// OrderView заказ с именами связанных участников.
type OrderView struct {
	model.Order
	DriverName      string                 `json:"driverName,omitempty"`
	AgentName       string                 `json:"agentName,omitempty"`
	AllowedStatuses []model.ShipmentStatus `json:"allowedStatuses"`
}

func orderEvent(typ string, o *model.Order, at time.Time) notify.Event {
	return notify.Event{Type: typ, OrderID: ref(o.ID), Status: string(o.Status), At: at}
}

func immutable(o *model.Order) error {
	return fmt.Errorf("%w: order %s return verified at %s", model.ErrImmutable, o.ID, o.ReturnVerifiedAt.Format(time.RFC3339))
}

// CreateOrder регистрирует заказ в статусе pending и запоминает активные инвестиции
// по его товарам.
func (s *Service) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*model.Order, error) {
	if err := requireRole(actor, model.RoleAgent, model.RoleManager, model.RoleOwner); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	var o *model.Order
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		ids := make([]uuid.UUID, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}
		products, err := tx.GetProducts(ctx, ids)
		if err != nil {
			return err
		}

		o = &model.Order{
			ID:              uuid.New(),
			Country:         in.Country,
			Currency:        in.Country.Currency(),
			Total:           in.Total,
			CollectedAmount: in.CollectedAmount,
			Discount:        in.Discount,
			Status:          model.StatusPending,
			CreatedBy:       actor.ID,
			CustomerName:    in.CustomerName,
			CustomerPhone:   in.CustomerPhone,
			Address:         in.Address,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for i, it := range in.Items {
			p, ok := products[it.ProductID]
			if !ok {
				return &model.ValidationError{Field: fmt.Sprintf("items[%d].productRef", i), Reason: "unknown product"}
			}
			o.Items = append(o.Items, model.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}
		if !o.Total.IsPositive() {
			o.Total = o.ItemsTotal().Sub(o.Discount)
		}
		if o.Total.IsNegative() {
			return &model.ValidationError{Field: "discount", Reason: "exceeds the items total"}
		}

		invs, err := tx.ActiveInvestments(ctx, ids)
		if err != nil {
			return err
		}
		for _, inv := range invs {
			o.InvestmentIDs = append(o.InvestmentIDs, inv.ID)
		}

		return tx.CreateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, orderEvent(notify.OrderCreated, o, now))
	return o, nil
}

func canSeeOrder(actor Actor, o *model.Order) error {
	switch actor.Role {
	case model.RoleOwner, model.RoleManager:
		return nil
	case model.RoleDriver:
		if o.DriverID != nil && *o.DriverID == actor.ID {
			return nil
		}
	case model.RoleAgent:
		if o.CreatedBy == actor.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s", model.ErrForbidden, o.ID)
}

// GetOrder возвращает заказ с именами водителя и агента.
func (s *Service) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*OrderView, error) {
	var view *OrderView
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := canSeeOrder(actor, o); err != nil {
			return err
		}

		ids := []uuid.UUID{o.CreatedBy}
		if o.DriverID != nil {
			ids = append(ids, *o.DriverID)
		}
		parties, err := tx.GetParties(ctx, ids)
		if err != nil {
			return err
		}

		view = &OrderView{Order: *o, AgentName: parties[o.CreatedBy].Name}
		if o.DriverID != nil {
			view.DriverName = parties[*o.DriverID].Name
		}
		if o.Locked() {
			view.AllowedStatuses = []model.ShipmentStatus{}
		} else {
			view.AllowedStatuses = fulfillment.Next(o.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListOrders возвращает заказы по фильтру. Водитель видит только свои заказы, агент
// только созданные им.
func (s *Service) ListOrders(ctx context.Context, actor Actor, f model.OrderFilter) ([]model.Order, error) {
	f, err := scopeOrders(actor, f)
	if err != nil {
		return nil, err
	}

	var res []model.Order
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.ListOrders(ctx, f)
		return err
	})
	return res, err
}

func scopeOrders(actor Actor, f model.OrderFilter) (model.OrderFilter, error) {
	switch actor.Role {
	case model.RoleOwner, model.RoleManager:
	case model.RoleDriver:
		f.DriverID = &actor.ID
	case model.RoleAgent:
		f.AgentID = &actor.ID
	default:
		return f, requireRole(actor, model.RoleOwner, model.RoleManager, model.RoleDriver, model.RoleAgent)
	}
	if f.Country != "" && !f.Country.Supported() {
		return f, &model.ValidationError{Field: "country", Reason: "unsupported country"}
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return f, &model.ValidationError{Field: "status", Reason: "unknown status " + string(st)}
		}
	}
	return f, nil
}

// AssignDriver назначает водителя. Заказ в статусе pending при этом переходит в assigned.
func (s *Service) AssignDriver(ctx context.Context, actor Actor, orderID, driverID uuid.UUID) (*model.Order, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}

	var (
		o     *model.Order
		moved fulfillment.Transition
	)
	now := s.now()
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		moved = nil

		var err error
		o, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Locked() {
			return immutable(o)
		}
		if !o.Status.IsOpen() {
			return fmt.Errorf("%w: cannot assign a driver to a %s order", model.ErrInvalidTransition, o.Status)
		}

		driver, err := tx.GetParty(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.Role != model.RoleDriver {
			return &model.ValidationError{Field: "driverRef", Reason: "party is not a driver"}
		}
		if driver.Country != o.Country {
			return &model.CountryMismatchError{OrderCountry: o.Country, DriverCountry: driver.Country}
		}

		o.DriverID = &driver.ID
		if o.Status == model.StatusPending {
			t, err := fulfillment.Plan(o.Status, model.StatusAssigned)
			if err != nil {
				return err
			}
			o.Status = t.To()
			moved = t
		}
		o.UpdatedAt = now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	events := []notify.Event{orderEvent(notify.OrderDriverAssigned, o, now)}
	if moved != nil {
		recordTransition(moved)
		events = append(events, orderEvent(notify.OrderStatusChanged, o, now))
	}
	s.publish(ctx, events...)
	return o, nil
}

func recordTransition(t fulfillment.Transition) {
	kind := "simple"
	if _, ok := t.(fulfillment.SettlingTransition); ok {
		kind = "settling"
	}
	metrics.OrderTransitions.WithLabelValues(string(t.From()), string(t.To()), kind).Inc()
}

// SetStatus переводит заказ в новый статус по таблице переходов. Повтор текущего статуса
// ничего не меняет. Переход в delivered списывает остаток и начисляет комиссии в той же
// транзакции.
func (s *Service) SetStatus(ctx context.Context, actor Actor, orderID uuid.UUID, to model.ShipmentStatus) (*model.Order, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager, model.RoleDriver); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, &model.ValidationError{Field: "shipmentStatus", Reason: "unknown status " + string(to)}
	}

	var (
		o *model.Order
		t fulfillment.Transition
	)
	now := s.now()
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		t = nil

		var err error
		o, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleDriver && (o.DriverID == nil || *o.DriverID != actor.ID) {
			return fmt.Errorf("%w: order %s is not assigned to this driver", model.ErrForbidden, o.ID)
		}
		if o.Locked() {
			return immutable(o)
		}
		if o.Status == to {
			return nil
		}

		plan, err := fulfillment.Plan(o.Status, to)
		if err != nil {
			return err
		}
		if to == model.StatusAssigned && o.DriverID == nil {
			return &model.ValidationError{Field: "driverRef", Reason: "assign a driver first"}
		}

		if fulfillment.MarksShipped(to) && o.ShippedAt == nil {
			o.ShippedAt = &now
		}
		if st, ok := plan.(fulfillment.SettlingTransition); ok && st.Effect == fulfillment.EffectDeliver {
			if err := s.settleDelivery(ctx, tx, o, now); err != nil {
				return err
			}
		}

		o.Status = to
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		t = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t != nil {
		recordTransition(t)
		s.publish(ctx, orderEvent(notify.OrderStatusChanged, o, now))
	}
	return o, nil
}

// settleDelivery списывает остаток и начисляет комиссии. Оба шага выполняются не
// больше одного раза за жизнь заказа.
func (s *Service) settleDelivery(ctx context.Context, tx repository.Tx, o *model.Order, now time.Time) error {
	o.DeliveredAt = &now

	if !o.InventoryAdjusted {
		keys := inventory.Keys(o)
		stocks, err := tx.LockStock(ctx, keys)
		if err != nil {
			return err
		}
		if err := inventory.Deduct(stocks, o); err != nil {
			return err
		}
		changed := make([]*model.Stock, 0, len(keys))
		for _, k := range keys {
			changed = append(changed, stocks[k])
		}
		if err := tx.SaveStock(ctx, changed); err != nil {
			return err
		}
	}

	if o.CommissionAccruedAt != nil {
		return nil
	}

	var parties commission.Parties
	agent, err := tx.GetParty(ctx, o.CreatedBy)
	switch {
	case err == nil:
		parties.Agent = agent
	case !errors.Is(err, model.ErrNotFound):
		return err
	}
	if o.DriverID != nil {
		driver, err := tx.GetParty(ctx, *o.DriverID)
		if err != nil {
			return err
		}
		parties.Driver = driver
	}

	invs, err := tx.LockInvestments(ctx, o.InvestmentIDs)
	if err != nil {
		return err
	}
	for _, a := range s.engine.Accruals(o, parties, invs, s.rates.Current(), now) {
		if _, err := tx.InsertAccrual(ctx, a); err != nil {
			return err
		}
	}
	if err := tx.SaveInvestments(ctx, invs); err != nil {
		return err
	}

	o.CommissionAccruedAt = &now
	return nil
}

// ReturnInput причина возврата.
type ReturnInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SubmitReturn отмечает, что товар возвращённого или отменённого заказа передан компании.
func (s *Service) SubmitReturn(ctx context.Context, actor Actor, orderID uuid.UUID, in ReturnInput) (*model.Order, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager, model.RoleDriver); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var (
		o       *model.Order
		changed bool
	)
	now := s.now()
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		changed = false

		var err error
		o, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleDriver && (o.DriverID == nil || *o.DriverID != actor.ID) {
			return fmt.Errorf("%w: order %s is not assigned to this driver", model.ErrForbidden, o.ID)
		}
		if o.Locked() {
			return immutable(o)
		}
		if o.Status != model.StatusReturned && o.Status != model.StatusCancelled {
			return fmt.Errorf("%w: return can be submitted only for returned or cancelled orders, order is %s",
				model.ErrInvalidTransition, o.Status)
		}
		if o.ReturnSubmitted {
			return nil
		}

		o.ReturnSubmitted = true
		o.ReturnReason = in.Reason
		o.UpdatedAt = now
		changed = true
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publish(ctx, orderEvent(notify.OrderReturnSubmitted, o, now))
	}
	return o, nil
}

// VerifyReturn подтверждает возврат, возвращает списанный остаток на склад и закрывает
// заказ для любых изменений.
func (s *Service) VerifyReturn(ctx context.Context, actor Actor, orderID uuid.UUID) (*model.Order, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}

	var o *model.Order
	now := s.now()
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		o, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Locked() {
			return immutable(o)
		}
		if !o.ReturnSubmitted {
			return fmt.Errorf("%w: return has not been submitted", model.ErrInvalidTransition)
		}

		if o.InventoryAdjusted {
			keys := inventory.Keys(o)
			stocks, err := tx.LockStock(ctx, keys)
			if err != nil {
				return err
			}
			moved, err := inventory.Restock(stocks, o)
			if err != nil {
				return err
			}
			if moved {
				changed := make([]*model.Stock, 0, len(keys))
				for _, k := range keys {
					changed = append(changed, stocks[k])
				}
				if err := tx.SaveStock(ctx, changed); err != nil {
					return err
				}
			}
		}

		o.ReturnVerifiedAt = &now
		o.ReturnVerifiedBy = &actor.ID
		o.UpdatedAt = now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, orderEvent(notify.OrderReturnVerified, o, now))
	return o, nil
}
