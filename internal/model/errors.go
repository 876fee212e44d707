package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation некорректные данные запроса на создание или изменение.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrCountryMismatch страна водителя не совпадает со страной заказа.
	ErrCountryMismatch = errors.New("driver country does not match order country")
	// ErrBelowMinimum сумма выплаты меньше минимальной.
	ErrBelowMinimum = errors.New("amount is below the minimum remittance")
	// ErrInsufficientBalance сумма выплаты превышает доступный баланс кошелька.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateAdjustment повторное списание/возврат остатка или начисление по тому же заказу.
	ErrDuplicateAdjustment = errors.New("adjustment already applied")
	// ErrInsufficientStock доставка превысила бы закупленное количество.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition переход статуса не разрешён.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrImmutable заказ закрыт проверкой возврата.
	ErrImmutable = errors.New("order is closed")
	// ErrForbidden у участника нет прав на действие.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError описывает поле, не прошедшее проверку.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is позволяет сравнивать с ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CountryMismatchError ошибка назначения водителя из другой страны.
type CountryMismatchError struct {
	OrderCountry  Country
	DriverCountry Country
}

func (e *CountryMismatchError) Error() string {
	return fmt.Sprintf("driver country %s does not match order country %s", e.DriverCountry, e.OrderCountry)
}

// Is позволяет сравнивать с ErrCountryMismatch.
func (e *CountryMismatchError) Is(target error) bool { return target == ErrCountryMismatch }

// BelowMinimumError сумма заявки меньше минимальной.
type BelowMinimumError struct {
	Amount   decimal.Decimal
	Minimum  decimal.Decimal
	Currency string
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("amount %s is below the minimum remittance of %s %s",
		e.Amount.StringFixed(2), e.Minimum.StringFixed(2), e.Currency)
}

// Is позволяет сравнивать с ErrBelowMinimum.
func (e *BelowMinimumError) Is(target error) bool { return target == ErrBelowMinimum }

// InsufficientBalanceError сумма превышает доступный баланс.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
	Currency  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s %s, available %s %s",
		e.Requested.StringFixed(2), e.Currency, e.Available.StringFixed(2), e.Currency)
}

// Is позволяет сравнивать с ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// InsufficientStockError доставка превышает закупленный остаток.
type InsufficientStockError struct {
	Key       StockKey
	Requested int64
	Left      int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s in %s: requested %d, left %d",
		e.Key.ProductID, e.Key.Country, e.Requested, e.Left)
}

// Is позволяет сравнивать с ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransitionError запрещённый переход статуса.
type TransitionError struct {
	From ShipmentStatus
	To   ShipmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Is позволяет сравнивать с ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
