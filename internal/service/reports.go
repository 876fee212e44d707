package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
)

// BucketTotals количество и суммы заказов группы.
type BucketTotals struct {
	Count      int                        `json:"count"`
	Totals     map[string]decimal.Decimal `json:"totals"`
	PivotTotal decimal.Decimal            `json:"pivotTotal"`
}

func newBucketTotals() BucketTotals {
	return BucketTotals{Totals: make(map[string]decimal.Decimal)}
}

func (b *BucketTotals) add(o *model.Order) {
	b.Count++
	b.Totals[o.Currency] = b.Totals[o.Currency].Add(o.Total)
}

func (b *BucketTotals) finish(t *currency.Table) {
	b.PivotTotal = t.SumAcrossCurrencies(b.Totals, t.Pivot()).Round(2)
}

// BucketSummary группа дашборда: страна и группа статусов.
type BucketSummary struct {
	Country model.Country `json:"country"`
	Bucket  model.Bucket  `json:"bucket"`
	BucketTotals
}

// OrderSummary сводка заказов для дашборда. Сумма групп по каждой валюте равна итогу.
type OrderSummary struct {
	PivotCode string                       `json:"pivotCode"`
	Groups    []BucketSummary              `json:"groups"`
	Statuses  map[model.ShipmentStatus]int `json:"statuses"`
	Total     BucketTotals                 `json:"total"`
}

var bucketOrder = map[model.Bucket]int{
	model.BucketOpen:              0,
	model.BucketDelivered:         1,
	model.BucketCancelledReturned: 2,
}

// SummarizeOrders группирует заказы по стране и группе статусов. Суммы в пересчёте на
// опорную валюту округляются до двух знаков.
func SummarizeOrders(orders []model.Order, t *currency.Table) OrderSummary {
	type key struct {
		country model.Country
		bucket  model.Bucket
	}

	groups := make(map[key]*BucketSummary)
	res := OrderSummary{
		PivotCode: t.Pivot(),
		Groups:    []BucketSummary{},
		Statuses:  make(map[model.ShipmentStatus]int),
		Total:     newBucketTotals(),
	}
	for i := range orders {
		o := &orders[i]
		k := key{country: o.Country, bucket: o.Status.Bucket()}
		g, ok := groups[k]
		if !ok {
			g = &BucketSummary{Country: k.country, Bucket: k.bucket, BucketTotals: newBucketTotals()}
			groups[k] = g
		}
		g.add(o)
		res.Total.add(o)
		res.Statuses[o.Status]++
	}

	for _, g := range groups {
		g.finish(t)
		res.Groups = append(res.Groups, *g)
	}
	sort.Slice(res.Groups, func(i, j int) bool {
		a, b := res.Groups[i], res.Groups[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return bucketOrder[a.Bucket] < bucketOrder[b.Bucket]
	})
	res.Total.finish(t)
	return res
}

// OrderSummary сводка по заказам, видимым участнику.
func (s *Service) OrderSummary(ctx context.Context, actor Actor, f model.OrderFilter) (*OrderSummary, error) {
	orders, err := s.ListOrders(ctx, actor, f)
	if err != nil {
		return nil, err
	}
	sum := SummarizeOrders(orders, s.rates.Current())
	return &sum, nil
}

// AgentCommission реализованная и ожидаемая комиссия агента в валюте расчётов.
func (s *Service) AgentCommission(ctx context.Context, actor Actor, agentID uuid.UUID) (*commission.AgentSummary, error) {
	if actor.ID != agentID {
		if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
			return nil, err
		}
	}

	var res commission.AgentSummary
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		agent, err := tx.GetParty(ctx, agentID)
		if err != nil {
			return err
		}
		if agent.Role != model.RoleAgent {
			return &model.ValidationError{Field: "agentRef", Reason: "party is not an agent"}
		}
		orders, err := tx.ListOrders(ctx, model.OrderFilter{AgentID: &agentID})
		if err != nil {
			return err
		}
		res = s.engine.SummarizeAgent(agentID, orders)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DriverSummary комиссия водителя по доставленным заказам.
type DriverSummary struct {
	DriverID        uuid.UUID       `json:"driverRef"`
	Currency        string          `json:"currency"`
	DeliveredOrders int             `json:"deliveredOrders"`
	Commission      decimal.Decimal `json:"commission"`
}

// DriverCommission комиссия водителя: ставка за заказ на число доставленных заказов.
func (s *Service) DriverCommission(ctx context.Context, actor Actor, driverID uuid.UUID) (*DriverSummary, error) {
	if actor.ID != driverID {
		if err := requireRole(actor, model.RoleOwner, model.RoleManager); err != nil {
			return nil, err
		}
	}

	var res DriverSummary
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		driver, err := tx.GetParty(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.Role != model.RoleDriver {
			return &model.ValidationError{Field: "driverRef", Reason: "party is not a driver"}
		}
		orders, err := tx.ListOrders(ctx, model.OrderFilter{
			DriverID: &driverID,
			Statuses: []model.ShipmentStatus{model.StatusDelivered},
		})
		if err != nil {
			return err
		}
		n := commission.CountDelivered(orders)
		res = DriverSummary{
			DriverID:        driverID,
			Currency:        driver.Currency,
			DeliveredOrders: n,
			Commission:      commission.DriverCommission(driver, n),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

var exportHeader = []string{
	"id", "created_at", "country", "currency", "status", "customer_name", "customer_phone",
	"address", "items", "total", "collected_amount", "discount", "driver", "agent",
}

// ExportOrdersCSV выгружает видимые участнику заказы в CSV.
func (s *Service) ExportOrdersCSV(ctx context.Context, actor Actor, w io.Writer, f model.OrderFilter) error {
	f, err := scopeOrders(actor, f)
	if err != nil {
		return err
	}

	var (
		orders  []model.Order
		parties map[uuid.UUID]model.Party
	)
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		var err error
		orders, err = tx.ListOrders(ctx, f)
		if err != nil {
			return err
		}
		var ids []uuid.UUID
		for _, o := range orders {
			ids = append(ids, o.CreatedBy)
			if o.DriverID != nil {
				ids = append(ids, *o.DriverID)
			}
		}
		parties, err = tx.GetParties(ctx, ids)
		return err
	})
	if err != nil {
		return err
	}

	name := func(id *uuid.UUID) string {
		if id == nil {
			return ""
		}
		if p, ok := parties[*id]; ok {
			return p.Name
		}
		return ""
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range orders {
		o := &orders[i]
		items := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, fmt.Sprintf("%s x%d", it.ProductName, it.Quantity))
		}
		row := []string{
			o.ID.String(),
			o.CreatedAt.Format(time.RFC3339),
			string(o.Country),
			o.Currency,
			string(o.Status),
			o.CustomerName,
			o.CustomerPhone,
			o.Address,
			strings.Join(items, "; "),
			o.Total.StringFixed(2),
			o.CollectedAmount.StringFixed(2),
			o.Discount.StringFixed(2),
			name(o.DriverID),
			name(&o.CreatedBy),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
