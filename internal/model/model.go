// Package model содержит доменные сущности бэк-офиса: заказы, остатки, инвестиции,
// начисления комиссий и заявки на выплату.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShipmentStatus описывает статус доставки заказа.
type ShipmentStatus string

const (
	StatusPending        ShipmentStatus = "pending"
	StatusAssigned       ShipmentStatus = "assigned"
	StatusPickedUp       ShipmentStatus = "picked_up"
	StatusInTransit      ShipmentStatus = "in_transit"
	StatusOutForDelivery ShipmentStatus = "out_for_delivery"
	StatusDelivered      ShipmentStatus = "delivered"
	StatusNoResponse     ShipmentStatus = "no_response"
	StatusReturned       ShipmentStatus = "returned"
	StatusCancelled      ShipmentStatus = "cancelled"
)

// AllStatuses перечисляет статусы в порядке жизненного цикла.
var AllStatuses = []ShipmentStatus{
	StatusPending,
	StatusAssigned,
	StatusPickedUp,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusNoResponse,
	StatusReturned,
	StatusCancelled,
}

// Valid сообщает, известен ли статус.
func (s ShipmentStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Bucket группа статусов для дашбордов.
type Bucket string

const (
	BucketOpen              Bucket = "open"
	BucketDelivered         Bucket = "delivered"
	BucketCancelledReturned Bucket = "cancelled_returned"
)

// Bucket возвращает группу, в которую дашборды относят статус.
func (s ShipmentStatus) Bucket() Bucket {
	switch s {
	case StatusDelivered:
		return BucketDelivered
	case StatusReturned, StatusCancelled:
		return BucketCancelledReturned
	default:
		return BucketOpen
	}
}

// IsOpen сообщает, что заказ ещё в работе и комиссия по нему «ожидаемая».
func (s ShipmentStatus) IsOpen() bool {
	return s.Bucket() == BucketOpen
}

// OpenStatuses статусы группы open.
func OpenStatuses() []ShipmentStatus {
	var res []ShipmentStatus
	for _, s := range AllStatuses {
		if s.IsOpen() {
			res = append(res, s)
		}
	}
	return res
}

// OrderItem позиция заказа.
type OrderItem struct {
	ProductID   uuid.UUID       `json:"productRef"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// LineTotal стоимость позиции.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Order заказ с оплатой при получении.
type Order struct {
	ID                  uuid.UUID       `json:"id"`
	Country             Country         `json:"country"`
	Currency            string          `json:"currency"`
	Items               []OrderItem     `json:"items"`
	Total               decimal.Decimal `json:"total"`
	CollectedAmount     decimal.Decimal `json:"collectedAmount"`
	Discount            decimal.Decimal `json:"discount"`
	Status              ShipmentStatus  `json:"shipmentStatus"`
	DriverID            *uuid.UUID      `json:"driverRef,omitempty"`
	CreatedBy           uuid.UUID       `json:"createdBy"`
	InvestmentIDs       []uuid.UUID     `json:"investorProductRefs,omitempty"`
	CustomerName        string          `json:"customerName,omitempty"`
	CustomerPhone       string          `json:"customerPhone,omitempty"`
	Address             string          `json:"address,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	ShippedAt           *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt         *time.Time      `json:"deliveredAt,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	ReturnSubmitted     bool            `json:"returnSubmittedToCompany"`
	ReturnReason        string          `json:"returnReason,omitempty"`
	ReturnVerifiedAt    *time.Time      `json:"returnVerifiedAt,omitempty"`
	ReturnVerifiedBy    *uuid.UUID      `json:"returnVerifiedBy,omitempty"`
	InventoryAdjusted   bool            `json:"inventoryAdjusted"`
	CommissionAccruedAt *time.Time      `json:"commissionAccruedAt,omitempty"`
}

// ItemsTotal сумма позиций без учёта скидки.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Value стоимость заказа, от которой считается комиссия агента.
func (o *Order) Value() decimal.Decimal {
	if o.Total.IsPositive() {
		return o.Total
	}
	return o.ItemsTotal().Sub(o.Discount)
}

// Locked сообщает, что возврат проверен и заказ больше не меняется.
func (o *Order) Locked() bool {
	return o.ReturnVerifiedAt != nil
}

// OrderFilter параметры выборки заказов.
type OrderFilter struct {
	Country  Country
	Statuses []ShipmentStatus
	DriverID *uuid.UUID
	AgentID  *uuid.UUID
}

// Product товар каталога.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
}

// StockKey ключ остатка: товар в стране.
type StockKey struct {
	ProductID uuid.UUID
	Country   Country
}

// Stock складской учёт товара в стране.
type Stock struct {
	ProductID    uuid.UUID `json:"productRef"`
	Country      Country   `json:"country"`
	PurchasedQty int64     `json:"purchasedQty"`
	DeliveredQty int64     `json:"deliveredQty"`
}

// Key возвращает ключ остатка.
func (s Stock) Key() StockKey {
	return StockKey{ProductID: s.ProductID, Country: s.Country}
}

// StockReport остаток с производными величинами.
type StockReport struct {
	Stock
	ProductName string `json:"productName,omitempty"`
	ReservedQty int64  `json:"pendingReservedQty"`
	LeftQty     int64  `json:"leftQty"`
}

// InvestmentStatus статус инвестиции.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentWithdrawn InvestmentStatus = "withdrawn"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// Investment финансирование товара инвестором.
type Investment struct {
	ID            uuid.UUID        `json:"id"`
	InvestorID    uuid.UUID        `json:"investorRef"`
	ProductID     uuid.UUID        `json:"productRef"`
	OwnerID       uuid.UUID        `json:"ownerRef"`
	Amount        decimal.Decimal  `json:"amount"`
	Quantity      int64            `json:"quantity"`
	Currency      string           `json:"currency"`
	ProfitPerUnit decimal.Decimal  `json:"profitPerUnit"`
	Status        InvestmentStatus `json:"status"`
	UnitsSold     int64            `json:"unitsSold"`
	TotalProfit   decimal.Decimal  `json:"totalProfit"`
	TotalRevenue  decimal.Decimal  `json:"totalRevenue"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Remaining количество ещё не проданных профинансированных единиц.
func (i *Investment) Remaining() int64 {
	if left := i.Quantity - i.UnitsSold; left > 0 {
		return left
	}
	return 0
}

// Accrual начисление комиссии участнику за доставленный заказ.
type Accrual struct {
	OrderID   uuid.UUID       `json:"orderRef"`
	Role      Role            `json:"role"`
	PartyID   uuid.UUID       `json:"partyRef"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RemittanceStatus статус заявки на выплату.
type RemittanceStatus string

const (
	RemittancePending  RemittanceStatus = "pending"
	RemittanceApproved RemittanceStatus = "approved"
	RemittanceSent     RemittanceStatus = "sent"
)

// Remittance заявка на выплату агенту, водителю или инвестору.
type Remittance struct {
	ID            uuid.UUID        `json:"id"`
	RequesterID   uuid.UUID        `json:"requesterRef"`
	RequesterRole Role             `json:"requesterRole"`
	Amount        decimal.Decimal  `json:"amount"`
	SentAmount    *decimal.Decimal `json:"sentAmount,omitempty"`
	Currency      string           `json:"currency"`
	Note          string           `json:"note,omitempty"`
	Status        RemittanceStatus `json:"status"`
	ApproverID    *uuid.UUID       `json:"approverRef,omitempty"`
	ApprovedAt    *time.Time       `json:"approvedAt,omitempty"`
	SenderID      *uuid.UUID       `json:"senderRef,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	SentAt        *time.Time       `json:"sentAt,omitempty"`
}

// RemittanceFilter параметры выборки заявок.
type RemittanceFilter struct {
	RequesterID *uuid.UUID
	Status      RemittanceStatus
}

// Wallet производный баланс участника.
type Wallet struct {
	PartyID   uuid.UUID       `json:"partyRef"`
	Role      Role            `json:"role"`
	Currency  string          `json:"currency"`
	Earned    decimal.Decimal `json:"earned"`
	Sent      decimal.Decimal `json:"sent"`
	Available decimal.Decimal `json:"available"`
}
