package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/metrics"
)

// DefaultRatesInterval период опроса сервиса курсов по умолчанию.
const DefaultRatesInterval = time.Minute

// StartRateUpdates запускает фоновый процесс обновления таблицы курсов из внешнего сервиса.
// Обновляется только основная таблица (дашборды, доход инвесторов). Таблица расчётов с
// агентами задаётся конфигурацией (SETTLEMENT_RATES) и не меняется до перезапуска:
// от неё зависят комиссия агентов и минимальная сумма перевода.
func (s *Service) StartRateUpdates(ctx context.Context, interval time.Duration) {
	if s.ratesClient == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultRatesInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.refreshRates(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshRates(ctx)
			}
		}
	}()
}

func (s *Service) refreshRates(ctx context.Context) {
	resp, statusCode, retryAfter, err := s.ratesClient.FetchRates(ctx)
	if err != nil {
		metrics.RateRefreshes.WithLabelValues("error").Inc()
		s.log.Warn("fetch currency rates", zap.Error(err))
		return
	}

	if statusCode == http.StatusTooManyRequests {
		metrics.RateRefreshes.WithLabelValues("throttled").Inc()
		if retryAfter > 0 {
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		return
	}

	if resp == nil || len(resp.Rates) == 0 {
		metrics.RateRefreshes.WithLabelValues("empty").Inc()
		return
	}

	current := s.rates.Current()
	if resp.PivotCode != "" && resp.PivotCode != current.Pivot() {
		metrics.RateRefreshes.WithLabelValues("pivot_mismatch").Inc()
		s.log.Warn("currency rates pivot mismatch",
			zap.String("expected", current.Pivot()), zap.String("got", resp.PivotCode))
		return
	}

	t, err := currency.NewTable(current.Pivot(), current.Fallback(),
		currency.Merge(current.Config().Rates, resp.Rates),
		currency.WithFallbackHook(metrics.CurrencyFallbackHook))
	if err != nil {
		metrics.RateRefreshes.WithLabelValues("invalid").Inc()
		s.log.Warn("build currency table", zap.Error(err))
		return
	}

	s.rates.Replace(t)
	metrics.RateRefreshes.WithLabelValues("ok").Inc()
	s.log.Debug("currency rates updated", zap.Int("codes", len(resp.Rates)))
}
