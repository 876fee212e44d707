// Package fulfillment описывает допустимые переходы статусов доставки и их побочные эффекты.
package fulfillment

import (
	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// Effect побочный эффект перехода.
type Effect int

const (
	// EffectNone переход только меняет метку статуса.
	EffectNone Effect = iota
	// EffectDeliver списание остатка и начисление комиссий.
	EffectDeliver
	// EffectCloseNegative заказ закрыт без доставки; возврат на склад только после проверки.
	EffectCloseNegative
)

// Transition переход статуса. Реализации: SimpleTransition и SettlingTransition.
type Transition interface {
	From() model.ShipmentStatus
	To() model.ShipmentStatus
	isTransition()
}

// SimpleTransition смена метки без побочных эффектов.
type SimpleTransition struct {
	from, to model.ShipmentStatus
}

func (t SimpleTransition) From() model.ShipmentStatus { return t.from }
func (t SimpleTransition) To() model.ShipmentStatus   { return t.to }
func (SimpleTransition) isTransition()                {}

// SettlingTransition переход в delivered, returned или cancelled.
type SettlingTransition struct {
	from, to model.ShipmentStatus
	Effect   Effect
}

func (t SettlingTransition) From() model.ShipmentStatus { return t.from }
func (t SettlingTransition) To() model.ShipmentStatus   { return t.to }
func (SettlingTransition) isTransition()                {}

var allowed = map[model.ShipmentStatus][]model.ShipmentStatus{
	model.StatusPending: {
		model.StatusAssigned, model.StatusCancelled,
	},
	model.StatusAssigned: {
		model.StatusPending, model.StatusPickedUp, model.StatusInTransit,
		model.StatusNoResponse, model.StatusCancelled,
	},
	model.StatusPickedUp: {
		model.StatusInTransit, model.StatusOutForDelivery, model.StatusDelivered,
		model.StatusNoResponse, model.StatusReturned, model.StatusCancelled,
	},
	model.StatusInTransit: {
		model.StatusOutForDelivery, model.StatusDelivered, model.StatusNoResponse,
		model.StatusReturned, model.StatusCancelled,
	},
	model.StatusOutForDelivery: {
		model.StatusInTransit, model.StatusDelivered, model.StatusNoResponse,
		model.StatusReturned, model.StatusCancelled,
	},
	model.StatusNoResponse: {
		model.StatusOutForDelivery, model.StatusInTransit, model.StatusDelivered,
		model.StatusReturned, model.StatusCancelled,
	},
	model.StatusDelivered: {
		model.StatusReturned,
	},
}

// Plan возвращает переход from → to или TransitionError, если ребро не разрешено.
// Повтор текущего статуса не является переходом: вызывающий обрабатывает его как no-op.
func Plan(from, to model.ShipmentStatus) (Transition, error) {
	if !to.Valid() {
		return nil, &model.ValidationError{Field: "shipmentStatus", Reason: "unknown status " + string(to)}
	}
	if !Allowed(from, to) {
		return nil, &model.TransitionError{From: from, To: to}
	}

	switch to {
	case model.StatusDelivered:
		return SettlingTransition{from: from, to: to, Effect: EffectDeliver}, nil
	case model.StatusReturned, model.StatusCancelled:
		return SettlingTransition{from: from, to: to, Effect: EffectCloseNegative}, nil
	default:
		return SimpleTransition{from: from, to: to}, nil
	}
}

// Allowed сообщает, есть ли ребро from → to в таблице.
func Allowed(from, to model.ShipmentStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next возвращает статусы, доступные из from.
func Next(from model.ShipmentStatus) []model.ShipmentStatus {
	return append([]model.ShipmentStatus(nil), allowed[from]...)
}

// Terminal сообщает, что из статуса нет переходов.
func Terminal(s model.ShipmentStatus) bool {
	return len(allowed[s]) == 0
}

// MarksShipped сообщает, что переход фиксирует отгрузку (shippedAt).
func MarksShipped(to model.ShipmentStatus) bool {
	switch to {
	case model.StatusPickedUp, model.StatusInTransit, model.StatusOutForDelivery:
		return true
	}
	return false
}
