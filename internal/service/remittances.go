package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/metrics"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/notify"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
)

func (s *Service) wallet(ctx context.Context, tx repository.Tx, p *model.Party) (*model.Wallet, error) {
	earned, err := tx.EarnedTotal(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	sent, err := tx.SentTotal(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &model.Wallet{
		PartyID:   p.ID,
		Role:      p.Role,
		Currency:  p.Currency,
		Earned:    earned,
		Sent:      sent,
		Available: earned.Sub(sent),
	}, nil
}

// Wallet возвращает производный баланс участника: начислено по доставленным заказам минус
// отправлено. Участник видит только свой кошелёк, владелец и менеджер любой.
func (s *Service) Wallet(ctx context.Context, actor Actor, partyID uuid.UUID) (*model.Wallet, error) {
	if actor.ID != partyID {
		if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
			return nil, err
		}
	}

	var w *model.Wallet
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetParty(ctx, partyID)
		if err != nil {
			return err
		}
		w, err = s.wallet(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// RemittanceInput заявка на выплату.
type RemittanceInput struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note" validate:"max=500"`
}

func outcome(err error) string {
	if err != nil {
		return "rejected"
	}
	return "ok"
}

// RequestRemittance создаёт заявку участника на выплату из его кошелька. Сумма после
// пересчёта в валюту расчётов не меньше минимальной и не больше доступного баланса.
func (s *Service) RequestRemittance(ctx context.Context, actor Actor, in RemittanceInput) (r *model.Remittance, err error) {
	defer func() { metrics.RemittanceOps.WithLabelValues("request", outcome(err)).Inc() }()

	if !actor.Role.EarnsCommission() {
		return nil, fmt.Errorf("%w: role %q has no wallet", model.ErrForbidden, actor.Role)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.LockParty(ctx, actor.ID)
		if err != nil {
			return err
		}

		if settled := s.engine.ToSettlement(in.Amount, p.Currency); settled.LessThan(s.minRemittance) {
			return &model.BelowMinimumError{Amount: settled, Minimum: s.minRemittance, Currency: s.engine.SettlementCurrency()}
		}

		w, err := s.wallet(ctx, tx, p)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(w.Available) {
			return &model.InsufficientBalanceError{Requested: in.Amount, Available: w.Available, Currency: w.Currency}
		}

		r = &model.Remittance{
			ID:            uuid.New(),
			RequesterID:   p.ID,
			RequesterRole: p.Role,
			Amount:        in.Amount,
			Currency:      p.Currency,
			Note:          in.Note,
			Status:        model.RemittancePending,
			CreatedAt:     now,
		}
		return tx.CreateRemittance(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type: notify.RemittanceRequested, RemittanceID: ref(r.ID), PartyID: ref(r.RequesterID),
		Status: string(r.Status), Amount: &r.Amount, Currency: r.Currency, At: now,
	})
	return r, nil
}

// ApproveRemittance одобряет заявку. Баланс при одобрении не проверяется.
func (s *Service) ApproveRemittance(ctx context.Context, actor Actor, id uuid.UUID) (r *model.Remittance, err error) {
	defer func() { metrics.RemittanceOps.WithLabelValues("approve", outcome(err)).Inc() }()

	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		r, err = tx.LockRemittance(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != model.RemittancePending {
			return fmt.Errorf("%w: remittance is %s", model.ErrInvalidTransition, r.Status)
		}
		r.Status = model.RemittanceApproved
		r.ApproverID = &actor.ID
		r.ApprovedAt = &now
		return tx.UpdateRemittance(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type: notify.RemittanceApproved, RemittanceID: ref(r.ID), PartyID: ref(r.RequesterID),
		Status: string(r.Status), At: now,
	})
	return r, nil
}

// SendInput фактически отправленная сумма; по умолчанию запрошенная.
type SendInput struct {
	ActualAmount *decimal.Decimal `json:"actualAmount"`
}

// SendRemittance отмечает выплату отправленной. Отправляемая сумма проверяется против
// баланса на момент отправки под блокировкой участника, поэтому параллельные отправки
// не уводят кошелёк в минус.
func (s *Service) SendRemittance(ctx context.Context, actor Actor, id uuid.UUID, in SendInput) (r *model.Remittance, err error) {
	defer func() { metrics.RemittanceOps.WithLabelValues("send", outcome(err)).Inc() }()

	if err := requireRole(actor, model.RoleOwner); err != nil {
		return nil, err
	}
	if in.ActualAmount != nil && !in.ActualAmount.IsPositive() {
		return nil, &model.ValidationError{Field: "actualAmount", Reason: "must be greater than 0"}
	}

	now := s.now()
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		r, err = tx.LockRemittance(ctx, id)
		if err != nil {
			return err
		}
		if r.Status == model.RemittanceSent {
			return fmt.Errorf("%w: remittance already sent", model.ErrInvalidTransition)
		}

		p, err := tx.LockParty(ctx, r.RequesterID)
		if err != nil {
			return err
		}
		w, err := s.wallet(ctx, tx, p)
		if err != nil {
			return err
		}

		amount := r.Amount
		if in.ActualAmount != nil {
			amount = *in.ActualAmount
		}
		if amount.GreaterThan(w.Available) {
			return &model.InsufficientBalanceError{Requested: amount, Available: w.Available, Currency: w.Currency}
		}

		r.Status = model.RemittanceSent
		r.SentAmount = &amount
		r.SenderID = &actor.ID
		r.SentAt = &now
		return tx.UpdateRemittance(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type: notify.RemittanceSent, RemittanceID: ref(r.ID), PartyID: ref(r.RequesterID),
		Status: string(r.Status), Amount: r.SentAmount, Currency: r.Currency, At: now,
	})
	return r, nil
}

// RemittanceView заявка с именем и скрытыми реквизитами получателя.
type RemittanceView struct {
	model.Remittance
	RequesterName string              `json:"requesterName,omitempty"`
	Payout        model.PayoutProfile `json:"payoutProfile,omitempty"`
}

// ListRemittances возвращает заявки. Участник видит только свои.
func (s *Service) ListRemittances(ctx context.Context, actor Actor, f model.RemittanceFilter) ([]RemittanceView, error) {
	switch actor.Role {
	case model.RoleOwner, model.RoleManager:
	default:
		if !actor.Role.EarnsCommission() {
			return nil, requireRole(actor, model.RoleOwner, model.RoleManager)
		}
		f.RequesterID = &actor.ID
	}

	var res []RemittanceView
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		list, err := tx.ListRemittances(ctx, f)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(list))
		for _, r := range list {
			ids = append(ids, r.RequesterID)
		}
		parties, err := tx.GetParties(ctx, ids)
		if err != nil {
			return err
		}

		res = make([]RemittanceView, 0, len(list))
		for _, r := range list {
			v := RemittanceView{Remittance: r}
			if p, ok := parties[r.RequesterID]; ok {
				v.RequesterName = p.Name
				if p.Payout != nil {
					v.Payout = p.Payout.Masked()
				}
			}
			res = append(res, v)
		}
		return nil
	})
	return res, err
}

// ManualReceiptInput квитанция о выплате вне учёта заявок.
type ManualReceiptInput struct {
	PartyID uuid.UUID       `json:"partyRef" validate:"required"`
	Amount  decimal.Decimal `json:"amount" validate:"gt=0"`
	Note    string          `json:"note" validate:"max=500"`
}

// ManualReceipt результат ручной квитанции.
type ManualReceipt struct {
	PartyID          uuid.UUID       `json:"partyRef"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Available        decimal.Decimal `json:"available"`
	ExceedsAvailable bool            `json:"exceedsAvailable"`
	Note             string          `json:"note,omitempty"`
}

// IssueManualReceipt отправляет квитанцию получателю. Кошелёк не списывается; сумма больше
// доступного баланса не запрещена, но помечается.
func (s *Service) IssueManualReceipt(ctx context.Context, actor Actor, in ManualReceiptInput) (*ManualReceipt, error) {
	if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var rc *ManualReceipt
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetParty(ctx, in.PartyID)
		if err != nil {
			return err
		}
		w, err := s.wallet(ctx, tx, p)
		if err != nil {
			return err
		}
		rc = &ManualReceipt{
			PartyID:          p.ID,
			Amount:           in.Amount,
			Currency:         p.Currency,
			Available:        w.Available,
			ExceedsAvailable: in.Amount.GreaterThan(w.Available),
			Note:             in.Note,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type: notify.ManualReceipt, PartyID: ref(rc.PartyID), Amount: &rc.Amount, Currency: rc.Currency,
		ExceedsAvailable: rc.ExceedsAvailable, At: s.now(),
	})
	return rc, nil
}
