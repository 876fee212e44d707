// Package currency содержит таблицу курсов и правила пересчёта сумм между валютами.
package currency

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Table курсы валют относительно опорной валюты: rate[code] = сколько единиц опорной
// валюты стоит одна единица code. Таблица неизменяема после создания.
type Table struct {
	pivot      string
	fallback   string
	rates      map[string]decimal.Decimal
	onFallback func(code string)
}

// Option настраивает таблицу.
type Option func(*Table)

// WithFallbackHook вызывается каждый раз, когда неизвестный код заменяется запасным.
func WithFallbackHook(fn func(code string)) Option {
	return func(t *Table) { t.onFallback = fn }
}

// NewTable проверяет и создаёт таблицу курсов.
func NewTable(pivot, fallback string, rates map[string]decimal.Decimal, opts ...Option) (*Table, error) {
	pivot = normalize(pivot)
	fallback = normalize(fallback)

	t := &Table{
		pivot:    pivot,
		fallback: fallback,
		rates:    make(map[string]decimal.Decimal, len(rates)+1),
	}
	for code, rate := range rates {
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive, got %s", code, rate)
		}
		t.rates[normalize(code)] = rate
	}
	if _, ok := t.rates[pivot]; !ok {
		t.rates[pivot] = decimal.NewFromInt(1)
	}
	if !t.rates[pivot].Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("pivot %s must have rate 1, got %s", pivot, t.rates[pivot])
	}
	if _, ok := t.rates[fallback]; !ok {
		return nil, fmt.Errorf("fallback currency %s is not in the rate table", fallback)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Pivot опорная валюта.
func (t *Table) Pivot() string { return t.pivot }

// Fallback валюта, курс которой берётся для неизвестных кодов.
func (t *Table) Fallback() string { return t.fallback }

// Known сообщает, есть ли код в таблице.
func (t *Table) Known(code string) bool {
	_, ok := t.rates[normalize(code)]
	return ok
}

// Rate возвращает курс к опорной валюте. Для неизвестного кода возвращается курс
// запасной валюты и false.
func (t *Table) Rate(code string) (decimal.Decimal, bool) {
	if r, ok := t.rates[normalize(code)]; ok {
		return r, true
	}
	if t.onFallback != nil {
		t.onFallback(code)
	}
	return t.rates[t.fallback], false
}

// ToPivot выражает сумму в опорной валюте.
func (t *Table) ToPivot(amount decimal.Decimal, code string) decimal.Decimal {
	rate, _ := t.Rate(code)
	return amount.Mul(rate)
}

// Convert пересчитывает сумму из одной валюты в другую через опорную.
func (t *Table) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	if normalize(from) == normalize(to) {
		return amount
	}
	rate, _ := t.Rate(to)
	return t.ToPivot(amount, from).Div(rate)
}

// SumAcrossCurrencies суммирует значения разных валют в целевой валюте.
// Неизвестные коды не прерывают расчёт.
func (t *Table) SumAcrossCurrencies(amounts map[string]decimal.Decimal, target string) decimal.Decimal {
	codes := make([]string, 0, len(amounts))
	for code := range amounts {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	total := decimal.Zero
	for _, code := range codes {
		total = total.Add(t.Convert(amounts[code], code, target))
	}
	return total
}

// Config представление таблицы для потребителей.
type Config struct {
	PivotCode    string                     `json:"pivotCode"`
	FallbackCode string                     `json:"fallbackCode"`
	Rates        map[string]decimal.Decimal `json:"rates"`
}

// Config возвращает копию таблицы.
func (t *Table) Config() Config {
	rates := make(map[string]decimal.Decimal, len(t.rates))
	for k, v := range t.rates {
		rates[k] = v
	}
	return Config{PivotCode: t.pivot, FallbackCode: t.fallback, Rates: rates}
}

// Provider хранит текущую таблицу и позволяет атомарно заменить её при обновлении курсов.
type Provider struct {
	current atomic.Pointer[Table]
}

// NewProvider создаёт провайдер с начальной таблицей.
func NewProvider(t *Table) *Provider {
	p := &Provider{}
	p.current.Store(t)
	return p
}

// Current возвращает действующую таблицу.
func (p *Provider) Current() *Table {
	return p.current.Load()
}

// Replace подменяет таблицу.
func (p *Provider) Replace(t *Table) {
	p.current.Store(t)
}

// DefaultRates курсы к SAR, используемые без внешнего источника.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"SAR": decimal.NewFromInt(1),
		"AED": decimal.RequireFromString("1.021"),
		"OMR": decimal.RequireFromString("9.74"),
		"BHD": decimal.RequireFromString("9.95"),
		"KWD": decimal.RequireFromString("12.20"),
		"QAR": decimal.RequireFromString("1.03"),
		"USD": decimal.RequireFromString("3.75"),
		"PKR": decimal.RequireFromString("0.01345"),
		"INR": decimal.RequireFromString("0.0449"),
	}
}

// DefaultSettlementRates сколько PKR стоит единица валюты; отдельная таблица для
// комиссий агентов.
func DefaultSettlementRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"PKR": decimal.NewFromInt(1),
		"SAR": decimal.RequireFromString("74.5"),
		"AED": decimal.RequireFromString("76"),
		"OMR": decimal.RequireFromString("727"),
		"BHD": decimal.RequireFromString("743"),
		"KWD": decimal.RequireFromString("910"),
		"QAR": decimal.RequireFromString("77"),
		"USD": decimal.RequireFromString("280"),
		"INR": decimal.RequireFromString("3.35"),
	}
}

// ParseRates разбирает строку вида "AED:1.02,USD:3.75".
func ParseRates(s string) (map[string]decimal.Decimal, error) {
	res := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("rate %q: want CODE:rate", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", pair, err)
		}
		res[normalize(code)] = rate
	}
	return res, nil
}

// Merge накладывает overrides поверх base и возвращает новую карту.
func Merge(base, overrides map[string]decimal.Decimal) map[string]decimal.Decimal {
	res := make(map[string]decimal.Decimal, len(base)+len(overrides))
	for k, v := range base {
		res[k] = v
	}
	for k, v := range overrides {
		res[normalize(k)] = v
	}
	return res
}
