package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Country страна доставки.
type Country string

const (
	CountryUAE     Country = "UAE"
	CountryKSA     Country = "KSA"
	CountryOman    Country = "Oman"
	CountryBahrain Country = "Bahrain"
	CountryKuwait  Country = "Kuwait"
	CountryQatar   Country = "Qatar"
)

var countryCurrency = map[Country]string{
	CountryUAE:     "AED",
	CountryKSA:     "SAR",
	CountryOman:    "OMR",
	CountryBahrain: "BHD",
	CountryKuwait:  "KWD",
	CountryQatar:   "QAR",
}

// Countries возвращает поддерживаемые страны.
func Countries() []Country {
	return []Country{CountryUAE, CountryKSA, CountryOman, CountryBahrain, CountryKuwait, CountryQatar}
}

// Supported сообщает, что страна обслуживается.
func (c Country) Supported() bool {
	_, ok := countryCurrency[c]
	return ok
}

// Currency возвращает валюту страны.
func (c Country) Currency() string {
	return countryCurrency[c]
}

// Role роль участника бэк-офиса.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleAgent    Role = "agent"
	RoleDriver   Role = "driver"
	RoleInvestor Role = "investor"
)

// Valid сообщает, что роль известна.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleAgent, RoleDriver, RoleInvestor:
		return true
	}
	return false
}

// EarnsCommission сообщает, что у роли есть кошелёк комиссий.
func (r Role) EarnsCommission() bool {
	return r == RoleAgent || r == RoleDriver || r == RoleInvestor
}

// Party участник: агент, водитель, инвестор, менеджер или владелец.
type Party struct {
	ID                 uuid.UUID       `json:"id"`
	Role               Role            `json:"role"`
	Name               string          `json:"name"`
	Country            Country         `json:"country,omitempty"`
	Currency           string          `json:"currency"`
	CommissionPerOrder decimal.Decimal `json:"commissionPerOrder"`
	Payout             PayoutProfile   `json:"payoutProfile,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

type partyJSON struct {
	ID                 uuid.UUID       `json:"id"`
	Role               Role            `json:"role"`
	Name               string          `json:"name"`
	Country            Country         `json:"country,omitempty"`
	Currency           string          `json:"currency"`
	CommissionPerOrder decimal.Decimal `json:"commissionPerOrder"`
	Payout             json.RawMessage `json:"payoutProfile,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// UnmarshalJSON разбирает участника вместе с профилем выплат.
func (p *Party) UnmarshalJSON(data []byte) error {
	var raw partyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	profile, err := DecodePayoutProfile(raw.Payout)
	if err != nil {
		return err
	}
	*p = Party{
		ID:                 raw.ID,
		Role:               raw.Role,
		Name:               raw.Name,
		Country:            raw.Country,
		Currency:           raw.Currency,
		CommissionPerOrder: raw.CommissionPerOrder,
		Payout:             profile,
		CreatedAt:          raw.CreatedAt,
	}
	return nil
}

// PayoutMethod способ выплаты.
type PayoutMethod string

const (
	PayoutBank   PayoutMethod = "bank"
	PayoutWallet PayoutMethod = "wallet"
)

// PayoutProfile реквизиты выплаты: банковский счёт или электронный кошелёк.
type PayoutProfile interface {
	Method() PayoutMethod
	// Masked возвращает копию профиля со скрытыми реквизитами.
	Masked() PayoutProfile
}

// BankProfile выплата на банковский счёт.
type BankProfile struct {
	BankName     string `json:"bankName" validate:"required"`
	AccountTitle string `json:"accountTitle" validate:"required"`
	IBAN         string `json:"iban" validate:"required,min=8"`
}

// Method реализует PayoutProfile.
func (BankProfile) Method() PayoutMethod { return PayoutBank }

// Masked реализует PayoutProfile.
func (b BankProfile) Masked() PayoutProfile {
	b.IBAN = maskTail(b.IBAN)
	return b
}

// MarshalJSON добавляет дискриминатор method.
func (b BankProfile) MarshalJSON() ([]byte, error) {
	type alias BankProfile
	return json.Marshal(struct {
		Method PayoutMethod `json:"method"`
		alias
	}{PayoutBank, alias(b)})
}

// WalletProfile выплата на мобильный кошелёк.
type WalletProfile struct {
	Provider      string `json:"provider" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required,min=6"`
}

// Method реализует PayoutProfile.
func (WalletProfile) Method() PayoutMethod { return PayoutWallet }

// Masked реализует PayoutProfile.
func (w WalletProfile) Masked() PayoutProfile {
	w.AccountNumber = maskTail(w.AccountNumber)
	return w
}

// MarshalJSON добавляет дискриминатор method.
func (w WalletProfile) MarshalJSON() ([]byte, error) {
	type alias WalletProfile
	return json.Marshal(struct {
		Method PayoutMethod `json:"method"`
		alias
	}{PayoutWallet, alias(w)})
}

// DecodePayoutProfile разбирает профиль выплат по полю method. Пустой ввод даёт nil.
func DecodePayoutProfile(data []byte) (PayoutProfile, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var head struct {
		Method PayoutMethod `json:"method"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode payout profile: %w", err)
	}

	switch head.Method {
	case PayoutBank:
		var b BankProfile
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode bank profile: %w", err)
		}
		return b, nil
	case PayoutWallet:
		var w WalletProfile
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode wallet profile: %w", err)
		}
		return w, nil
	default:
		return nil, &ValidationError{Field: "payoutProfile.method", Reason: fmt.Sprintf("unknown payout method %q", head.Method)}
	}
}

func maskTail(s string) string {
	const visible = 4
	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-visible) + s[len(s)-visible:]
}
