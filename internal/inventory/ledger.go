// Package inventory ведёт складской учёт по товарам и странам: закуплено, доставлено,
// зарезервировано открытыми заказами.
package inventory

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

// Quantities суммирует количество по ключам остатка; повторяющиеся товары складываются.
func Quantities(o *model.Order) map[model.StockKey]int64 {
	res := make(map[model.StockKey]int64, len(o.Items))
	for _, it := range o.Items {
		res[model.StockKey{ProductID: it.ProductID, Country: o.Country}] += it.Quantity
	}
	return res
}

// Keys возвращает ключи остатков заказа в детерминированном порядке, чтобы блокировки
// строк всегда брались в одной последовательности.
func Keys(o *model.Order) []model.StockKey {
	qty := Quantities(o)
	keys := make([]model.StockKey, 0, len(qty))
	for k := range qty {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys сортирует ключи по товару, затем по стране.
func SortKeys(keys []model.StockKey) {
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].ProductID[:], keys[j].ProductID[:]); c != 0 {
			return c < 0
		}
		return keys[i].Country < keys[j].Country
	})
}

// Deduct списывает доставленные позиции заказа. Повторное списание даёт
// ErrDuplicateAdjustment, превышение закупленного количества InsufficientStockError.
// При ошибке остатки не меняются.
func Deduct(stocks map[model.StockKey]*model.Stock, o *model.Order) error {
	if o.InventoryAdjusted {
		return model.ErrDuplicateAdjustment
	}

	qty := Quantities(o)
	for key, n := range qty {
		s, ok := stocks[key]
		if !ok {
			return &model.InsufficientStockError{Key: key, Requested: n, Left: 0}
		}
		if left := s.PurchasedQty - s.DeliveredQty; n > left {
			return &model.InsufficientStockError{Key: key, Requested: n, Left: left}
		}
	}

	for key, n := range qty {
		stocks[key].DeliveredQty += n
	}
	o.InventoryAdjusted = true
	return nil
}

// Restock возвращает на склад ранее списанные позиции. Возвращает false, если заказ
// не списывался и двигать остаток не нужно.
func Restock(stocks map[model.StockKey]*model.Stock, o *model.Order) (bool, error) {
	if o.Locked() {
		return false, model.ErrDuplicateAdjustment
	}
	if !o.InventoryAdjusted {
		return false, nil
	}

	qty := Quantities(o)
	for key, n := range qty {
		s, ok := stocks[key]
		if !ok || s.DeliveredQty < n {
			return false, fmt.Errorf("restock %s/%s: delivered quantity underflow", key.ProductID, key.Country)
		}
	}
	for key, n := range qty {
		stocks[key].DeliveredQty -= n
	}
	return true, nil
}

// Purchase добавляет закупленное количество.
func Purchase(s *model.Stock, qty int64) error {
	if qty <= 0 {
		return &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	s.PurchasedQty += qty
	return nil
}

// Report строит отчёт об остатках с производным резервом открытых заказов.
func Report(stocks []model.Stock, reserved map[model.StockKey]int64, names map[uuid.UUID]string) []model.StockReport {
	res := make([]model.StockReport, 0, len(stocks))
	for _, s := range stocks {
		r := reserved[s.Key()]
		res = append(res, model.StockReport{
			Stock:       s,
			ProductName: names[s.ProductID],
			ReservedQty: r,
			LeftQty:     s.PurchasedQty - s.DeliveredQty - r,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ProductName != res[j].ProductName {
			return res[i].ProductName < res[j].ProductName
		}
		return res[i].Country < res[j].Country
	})
	return res
}
