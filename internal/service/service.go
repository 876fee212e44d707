// Package service реализует бизнес-логику бэк-офиса: жизненный цикл заказа, начисление
// комиссий, кошельки и заявки на выплату.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/notify"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
	"github.com/mmeshcher/cod-backoffice/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Actor участник, от имени которого выполняется операция.
type Actor struct {
	ID   uuid.UUID
	Role model.Role
}

// Service содержит бизнес-логику бэк-офиса.
type Service struct {
	repo          Repository
	rates         *currency.Provider
	engine        *commission.Engine
	publisher     notify.Publisher
	ratesClient   *currency.Client
	validate      *validation.Validator
	log           *zap.Logger
	minRemittance decimal.Decimal
	now           func() time.Time
}

// Option настраивает сервис.
type Option func(*Service)

// WithMinRemittance задаёт минимальную сумму заявки в валюте расчётов.
func WithMinRemittance(amount decimal.Decimal) Option {
	return func(s *Service) { s.minRemittance = amount }
}

// WithRatesClient включает обновление курсов из внешнего сервиса.
func WithRatesClient(c *currency.Client) Option {
	return func(s *Service) { s.ratesClient = c }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger задаёт журнал.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// DefaultMinRemittance минимальная сумма заявки на выплату по умолчанию.
var DefaultMinRemittance = decimal.NewFromInt(10000)

// NewService создаёт сервис.
func NewService(repo Repository, rates *currency.Provider, engine *commission.Engine, publisher notify.Publisher, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		rates:         rates,
		engine:        engine,
		publisher:     publisher,
		validate:      validation.New(),
		log:           zap.NewNop(),
		minRemittance: DefaultMinRemittance,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Warn("close publisher", zap.Error(err))
		}
	}
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Currency возвращает действующую таблицу курсов.
func (s *Service) Currency() currency.Config {
	return s.rates.Current().Config()
}

func requireRole(a Actor, roles ...model.Role) error {
	if slices.Contains(roles, a.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot perform this action", model.ErrForbidden, a.Role)
}

// publish отправляет события после фиксации транзакции. Ошибки только журналируются.
func (s *Service) publish(ctx context.Context, events ...notify.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.Warn("publish event", zap.String("type", e.Type), zap.Error(err))
		}
	}
}

func ref(id uuid.UUID) *uuid.UUID { return &id }
