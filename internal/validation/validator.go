// Package validation проверяет входные данные по тегам validate с правилами предметной
// области: страна доставки, код валюты, роль, статус доставки.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Validator проверяет структуры и переводит ошибки в model.ValidationError.
type Validator struct {
	v *validator.Validate
}

// New создаёт валидатор с доменными тегами.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// decimal сравнивается в тегах gt/gte как число.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	}, decimal.Decimal{})

	_ = v.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		return model.Country(fl.Field().String()).Supported()
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyCode.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("shipment_status", func(fl validator.FieldLevel) bool {
		return model.ShipmentStatus(fl.Field().String()).Valid()
	})

	return &Validator{v: v}
}

// Struct проверяет структуру. Возвращает *model.ValidationError по первому
// нарушенному правилу.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &model.ValidationError{Field: "", Reason: err.Error()}
	}

	fe := fieldErrs[0]
	return &model.ValidationError{Field: fieldPath(fe), Reason: message(fe)}
}

// Payout проверяет реквизиты выплаты.
func (v *Validator) Payout(p model.PayoutProfile) error {
	if p == nil {
		return nil
	}
	if err := v.Struct(p); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			ve.Field = "payoutProfile." + ve.Field
		}
		return err
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " element(s)"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "country":
		return "unsupported country"
	case "currency":
		return "must be a 3-letter currency code"
	case "role":
		return "unknown role"
	case "shipment_status":
		return "unknown shipment status"
	default:
		return "is invalid"
	}
}
