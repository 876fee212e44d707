// Package metrics регистрирует метрики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests число HTTP-запросов по методу, маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPLatency длительность обработки запросов.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})

	// OrderTransitions применённые переходы статусов заказов.
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_order_transitions_total",
		Help: "Applied order status transitions",
	}, []string{"from", "to", "kind"})

	// RemittanceOps операции с заявками на выплату и их исход.
	RemittanceOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_remittance_operations_total",
		Help: "Remittance operations by outcome",
	}, []string{"op", "outcome"})

	// CurrencyFallback пересчёты неизвестной валюты по курсу резервной.
	CurrencyFallback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_currency_fallback_total",
		Help: "Conversions of unknown currency codes through the fallback rate",
	}, []string{"code"})

	// RateRefreshes обновления таблицы курсов из внешнего источника.
	RateRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_rate_refresh_total",
		Help: "Currency rate refresh attempts by outcome",
	}, []string{"outcome"})
)

// CurrencyFallbackHook подходит для currency.WithFallbackHook.
func CurrencyFallbackHook(code string) {
	CurrencyFallback.WithLabelValues(code).Inc()
}
