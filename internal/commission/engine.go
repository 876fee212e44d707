// Package commission рассчитывает комиссии агентов, водителей и доход инвесторов
// по доставленным заказам.
package commission

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// Engine правила начисления комиссий.
type Engine struct {
	agentPct   decimal.Decimal
	settlement *currency.Table
}

// NewEngine создаёт движок. settlement таблица курсов в валюту расчётов с агентами
// (её опорная валюта и есть валюта расчётов).
func NewEngine(agentPct decimal.Decimal, settlement *currency.Table) *Engine {
	return &Engine{agentPct: agentPct, settlement: settlement}
}

// SettlementCurrency валюта, в которой агенты получают комиссию.
func (e *Engine) SettlementCurrency() string {
	return e.settlement.Pivot()
}

// ToSettlement пересчитывает сумму в валюту расчётов.
func (e *Engine) ToSettlement(amount decimal.Decimal, code string) decimal.Decimal {
	return e.settlement.ToPivot(amount, code)
}

// AgentCommission комиссия агента за заказ в валюте расчётов.
func (e *Engine) AgentCommission(o *model.Order) decimal.Decimal {
	local := o.Value().Mul(e.agentPct)
	return e.settlement.ToPivot(local, o.Currency)
}

// AgentSummary комиссия агента по его заказам.
type AgentSummary struct {
	AgentID             uuid.UUID       `json:"agentRef"`
	Currency            string          `json:"currency"`
	DeliveredCommission decimal.Decimal `json:"deliveredCommission"`
	UpcomingCommission  decimal.Decimal `json:"upcomingCommission"`
	DeliveredOrders     int             `json:"deliveredOrders"`
	UpcomingOrders      int             `json:"upcomingOrders"`
}

// SummarizeAgent делит комиссию на реализованную (delivered) и ожидаемую (open).
// Возвраты и отмены не учитываются.
func (e *Engine) SummarizeAgent(agentID uuid.UUID, orders []model.Order) AgentSummary {
	s := AgentSummary{
		AgentID:             agentID,
		Currency:            e.SettlementCurrency(),
		DeliveredCommission: decimal.Zero,
		UpcomingCommission:  decimal.Zero,
	}
	for i := range orders {
		o := &orders[i]
		switch {
		case o.Status == model.StatusDelivered:
			s.DeliveredCommission = s.DeliveredCommission.Add(e.AgentCommission(o))
			s.DeliveredOrders++
		case o.Status.IsOpen():
			s.UpcomingCommission = s.UpcomingCommission.Add(e.AgentCommission(o))
			s.UpcomingOrders++
		}
	}
	return s
}

// DriverCommission комиссия водителя за delivered заказов в его валюте.
func DriverCommission(driver *model.Party, delivered int) decimal.Decimal {
	return driver.CommissionPerOrder.Mul(decimal.NewFromInt(int64(delivered)))
}

// CountDelivered число заказов в статусе delivered.
func CountDelivered(orders []model.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == model.StatusDelivered {
			n++
		}
	}
	return n
}

// InvestorShare доля инвестиции в доставленном заказе.
type InvestorShare struct {
	InvestmentID uuid.UUID
	InvestorID   uuid.UUID
	Quantity     int64
	Revenue      decimal.Decimal
	Profit       decimal.Decimal
	Currency     string
}

// AllocateInvestments распределяет проданные единицы по активным инвестициям заказа
// в порядке их создания, не больше остатка каждой инвестиции, и обновляет счётчики
// unitsSold, totalRevenue, totalProfit. Выручка пересчитывается из валюты заказа
// в валюту инвестиции по rates.
func AllocateInvestments(o *model.Order, investments []*model.Investment, rates *currency.Table) []InvestorShare {
	byProduct := make(map[uuid.UUID][]*model.Investment)
	for _, inv := range investments {
		if inv.Status != model.InvestmentActive {
			continue
		}
		byProduct[inv.ProductID] = append(byProduct[inv.ProductID], inv)
	}
	for _, list := range byProduct {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	}

	var shares []InvestorShare
	for _, it := range o.Items {
		qty := it.Quantity
		for _, inv := range byProduct[it.ProductID] {
			if qty == 0 {
				break
			}
			n := min(qty, inv.Remaining())
			if n == 0 {
				continue
			}
			q := decimal.NewFromInt(n)
			revenue := investmentRevenue(it.UnitPrice.Mul(q), o.Currency, inv.Currency, rates)
			profit := inv.ProfitPerUnit.Mul(q)

			inv.UnitsSold += n
			inv.TotalRevenue = inv.TotalRevenue.Add(revenue)
			inv.TotalProfit = inv.TotalProfit.Add(profit)

			shares = append(shares, InvestorShare{
				InvestmentID: inv.ID,
				InvestorID:   inv.InvestorID,
				Quantity:     n,
				Revenue:      revenue,
				Profit:       profit,
				Currency:     inv.Currency,
			})
			qty -= n
		}
	}
	return shares
}

func investmentRevenue(amount decimal.Decimal, from, to string, rates *currency.Table) decimal.Decimal {
	if from == to || to == "" {
		return amount
	}
	return rates.Convert(amount, from, to).Round(2)
}

// Parties участники, которым начисляется комиссия по заказу. Любое поле может быть nil.
type Parties struct {
	Agent  *model.Party
	Driver *model.Party
}

// Accruals строит начисления за доставку заказа: агенту, водителю и по одному на
// каждого инвестора. Счётчики инвестиций обновляются; rates действующая таблица курсов.
func (e *Engine) Accruals(o *model.Order, p Parties, investments []*model.Investment, rates *currency.Table, now time.Time) []model.Accrual {
	var res []model.Accrual

	if p.Agent != nil && p.Agent.Role == model.RoleAgent {
		res = append(res, model.Accrual{
			OrderID:   o.ID,
			Role:      model.RoleAgent,
			PartyID:   p.Agent.ID,
			Amount:    e.AgentCommission(o),
			Currency:  e.SettlementCurrency(),
			CreatedAt: now,
		})
	}

	if p.Driver != nil && p.Driver.Role == model.RoleDriver {
		res = append(res, model.Accrual{
			OrderID:   o.ID,
			Role:      model.RoleDriver,
			PartyID:   p.Driver.ID,
			Amount:    DriverCommission(p.Driver, 1),
			Currency:  p.Driver.Currency,
			CreatedAt: now,
		})
	}

	perInvestor := make(map[uuid.UUID]*model.Accrual)
	var order []uuid.UUID
	for _, sh := range AllocateInvestments(o, investments, rates) {
		a, ok := perInvestor[sh.InvestorID]
		if !ok {
			a = &model.Accrual{
				OrderID:   o.ID,
				Role:      model.RoleInvestor,
				PartyID:   sh.InvestorID,
				Amount:    decimal.Zero,
				Currency:  sh.Currency,
				CreatedAt: now,
			}
			perInvestor[sh.InvestorID] = a
			order = append(order, sh.InvestorID)
		}
		a.Amount = a.Amount.Add(sh.Profit)
	}
	for _, id := range order {
		res = append(res, *perInvestor[id])
	}

	return res
}
