// Package config содержит логику чтения конфигурации бэк-офиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cod-backoffice/internal/currency"
)

// Config содержит параметры конфигурации бэк-офиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddress string `env:"REDIS_ADDRESS"`
	RatesAddress string `env:"RATES_ADDRESS"`
	AuthSecret   string `env:"AUTH_SECRET"`

	RedisChannel       string          `env:"REDIS_CHANNEL" envDefault:"backoffice.events"`
	RatesInterval      time.Duration   `env:"RATES_INTERVAL" envDefault:"1m"`
	MinRemittance      decimal.Decimal `env:"MIN_REMITTANCE" envDefault:"10000"`
	AgentCommissionPct decimal.Decimal `env:"AGENT_COMMISSION_PCT" envDefault:"0.12"`
	SettlementCurrency string          `env:"SETTLEMENT_CURRENCY" envDefault:"PKR"`
	PivotCurrency      string          `env:"PIVOT_CURRENCY" envDefault:"SAR"`
	FallbackCurrency   string          `env:"FALLBACK_CURRENCY" envDefault:"AED"`
	CurrencyRates      string          `env:"CURRENCY_RATES"`
	SettlementRates    string          `env:"SETTLEMENT_RATES"`
	OwnerID            string          `env:"OWNER_ID"`
	OwnerName          string          `env:"OWNER_NAME" envDefault:"Owner"`
	SessionKey         string          `env:"SESSION_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envRatesAddress := cfg.RatesAddress
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, empty for the in-memory store")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for notifications")
	flag.StringVar(&cfg.RatesAddress, "x", "", "currency rates service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing session cookies")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envRatesAddress != "" {
		cfg.RatesAddress = envRatesAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if !cfg.AgentCommissionPct.IsPositive() || cfg.AgentCommissionPct.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("agent commission pct must be in (0, 1], got %s", cfg.AgentCommissionPct)
	}
	if cfg.MinRemittance.IsNegative() {
		return nil, fmt.Errorf("min remittance must not be negative, got %s", cfg.MinRemittance)
	}

	return cfg, nil
}

// Rates строит основную таблицу курсов: значения по умолчанию с переопределениями
// из CURRENCY_RATES.
func (c *Config) Rates(opts ...currency.Option) (*currency.Table, error) {
	overrides, err := currency.ParseRates(c.CurrencyRates)
	if err != nil {
		return nil, fmt.Errorf("parse currency rates: %w", err)
	}
	return currency.NewTable(c.PivotCurrency, c.FallbackCurrency, currency.Merge(currency.DefaultRates(), overrides), opts...)
}

// Settlement строит таблицу курсов в валюту расчётов с агентами.
func (c *Config) Settlement(opts ...currency.Option) (*currency.Table, error) {
	overrides, err := currency.ParseRates(c.SettlementRates)
	if err != nil {
		return nil, fmt.Errorf("parse settlement rates: %w", err)
	}
	return currency.NewTable(c.SettlementCurrency, c.FallbackCurrency, currency.Merge(currency.DefaultSettlementRates(), overrides), opts...)
}
