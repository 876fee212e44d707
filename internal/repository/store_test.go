package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// exerciseStore прогоняет общие для всех хранилищ проверки.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	agent := model.Party{
		ID: uuid.New(), Role: model.RoleAgent, Name: "Agent", Currency: "PKR",
		Payout: model.WalletProfile{Provider: "JazzCash", AccountNumber: "03001234567"}, CreatedAt: now,
	}
	driver := model.Party{
		ID: uuid.New(), Role: model.RoleDriver, Name: "Driver", Country: model.CountryKSA, Currency: "SAR",
		CommissionPerOrder: decimal.NewFromInt(15), CreatedAt: now,
	}
	product := model.Product{ID: uuid.New(), Name: "Serum", Price: decimal.NewFromInt(50), Currency: "SAR", CreatedAt: now}
	key := model.StockKey{ProductID: product.ID, Country: model.CountryKSA}

	order := model.Order{
		ID:        uuid.New(),
		Country:   model.CountryKSA,
		Currency:  "SAR",
		Items:     []model.OrderItem{{ProductID: product.ID, ProductName: "Serum", Quantity: 2, UnitPrice: decimal.NewFromInt(50)}},
		Total:     decimal.NewFromInt(100),
		Status:    model.StatusPending,
		CreatedBy: agent.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateParty(ctx, &agent); err != nil {
			return err
		}
		if err := tx.CreateParty(ctx, &driver); err != nil {
			return err
		}
		if err := tx.CreateProduct(ctx, &product); err != nil {
			return err
		}
		stocks, err := tx.LockStock(ctx, []model.StockKey{key})
		if err != nil {
			return err
		}
		stocks[key].PurchasedQty = 10
		if err := tx.SaveStock(ctx, []*model.Stock{stocks[key]}); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, &order)
	})
	require.NoError(t, err)

	t.Run("party round trip keeps payout profile", func(t *testing.T) {
		err := store.InTx(ctx, func(tx Tx) error {
			got, err := tx.GetParty(ctx, agent.ID)
			require.NoError(t, err)
			assert.Equal(t, agent.Name, got.Name)
			require.NotNil(t, got.Payout)
			assert.Equal(t, model.PayoutWallet, got.Payout.Method())

			_, err = tx.GetParty(ctx, uuid.New())
			assert.ErrorIs(t, err, model.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("open orders reserve stock", func(t *testing.T) {
		err := store.InTx(ctx, func(tx Tx) error {
			reserved, err := tx.ReservedQuantities(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), reserved[key])
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.InTx(ctx, func(tx Tx) error {
			o, err := tx.LockOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			o.Status = model.StatusCancelled
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = store.InTx(ctx, func(tx Tx) error {
			o, err := tx.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusPending, o.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("accrual counts only while delivered", func(t *testing.T) {
		err := store.InTx(ctx, func(tx Tx) error {
			o, err := tx.LockOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			o.Status = model.StatusDelivered
			o.DriverID = &driver.ID
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}

			a := model.Accrual{OrderID: o.ID, Role: model.RoleAgent, PartyID: agent.ID, Amount: decimal.NewFromInt(894), Currency: "PKR", CreatedAt: now}
			inserted, err := tx.InsertAccrual(ctx, a)
			require.NoError(t, err)
			assert.True(t, inserted)

			inserted, err = tx.InsertAccrual(ctx, a)
			require.NoError(t, err)
			assert.False(t, inserted)
			return nil
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(tx Tx) error {
			earned, err := tx.EarnedTotal(ctx, agent.ID)
			require.NoError(t, err)
			assert.True(t, earned.Equal(decimal.NewFromInt(894)), earned.String())

			orders, err := tx.ListOrders(ctx, model.OrderFilter{DriverID: &driver.ID, Statuses: []model.ShipmentStatus{model.StatusDelivered}})
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, order.ID, orders[0].ID)
			require.Len(t, orders[0].Items, 1)
			assert.True(t, orders[0].Items[0].UnitPrice.Equal(decimal.NewFromInt(50)))

			o, err := tx.LockOrder(ctx, order.ID)
			require.NoError(t, err)
			o.Status = model.StatusReturned
			return tx.UpdateOrder(ctx, o)
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(tx Tx) error {
			earned, err := tx.EarnedTotal(ctx, agent.ID)
			require.NoError(t, err)
			assert.True(t, earned.IsZero(), earned.String())
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("only sent remittances count", func(t *testing.T) {
		sentAmount := decimal.NewFromInt(500)
		sentAt := now.Add(time.Minute)
		pending := model.Remittance{
			ID: uuid.New(), RequesterID: agent.ID, RequesterRole: model.RoleAgent, Amount: decimal.NewFromInt(700),
			Currency: "PKR", Status: model.RemittancePending, CreatedAt: now,
		}
		sent := model.Remittance{
			ID: uuid.New(), RequesterID: agent.ID, RequesterRole: model.RoleAgent, Amount: decimal.NewFromInt(600),
			SentAmount: &sentAmount, Currency: "PKR", Status: model.RemittanceSent, CreatedAt: now, SentAt: &sentAt,
		}

		err := store.InTx(ctx, func(tx Tx) error {
			if err := tx.CreateRemittance(ctx, &pending); err != nil {
				return err
			}
			return tx.CreateRemittance(ctx, &sent)
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(tx Tx) error {
			total, err := tx.SentTotal(ctx, agent.ID)
			require.NoError(t, err)
			assert.True(t, total.Equal(sentAmount), total.String())

			list, err := tx.ListRemittances(ctx, model.RemittanceFilter{RequesterID: &agent.ID, Status: model.RemittancePending})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, pending.ID, list[0].ID)
			assert.Nil(t, list[0].SentAmount)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("investments keep counters", func(t *testing.T) {
		inv := model.Investment{
			ID: uuid.New(), InvestorID: driver.ID, ProductID: product.ID, OwnerID: agent.ID,
			Amount: decimal.NewFromInt(1000), Quantity: 20, Currency: "SAR", ProfitPerUnit: decimal.NewFromInt(4),
			Status: model.InvestmentActive, CreatedAt: now,
		}
		err := store.InTx(ctx, func(tx Tx) error {
			if err := tx.CreateInvestment(ctx, &inv); err != nil {
				return err
			}
			locked, err := tx.LockInvestments(ctx, []uuid.UUID{inv.ID})
			if err != nil {
				return err
			}
			require.Len(t, locked, 1)
			locked[0].UnitsSold = 2
			locked[0].TotalProfit = decimal.NewFromInt(8)
			return tx.SaveInvestments(ctx, locked)
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(tx Tx) error {
			active, err := tx.ActiveInvestments(ctx, []uuid.UUID{product.ID})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, int64(2), active[0].UnitsSold)
			assert.True(t, active[0].TotalProfit.Equal(decimal.NewFromInt(8)))
			return nil
		})
		require.NoError(t, err)
	})
}
