package config

import (
	"fmt"
	"strings"
)

// validate performs basic sanity checks after defaults are applied.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	if err := c.Brokers.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level invalid: %s", a.LogLevel)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.DBPath) == "" {
		return fmt.Errorf("store.db_path cannot be empty")
	}
	if strings.TrimSpace(s.OrderLogPath) == "" {
		return fmt.Errorf("store.order_log_path cannot be empty")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if e.MaxConcurrent <= 0 {
		return fmt.Errorf("execution.max_concurrent must be > 0")
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if m.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0")
	}
	return nil
}

func (b *BrokersConfig) validate() error {
	if strings.TrimSpace(b.Default) == "" {
		return fmt.Errorf("brokers.default cannot be empty")
	}
	if strings.TrimSpace(b.Binance.RESTBaseURL) == "" {
		return fmt.Errorf("brokers.binance.rest_base_url cannot be empty")
	}
	if b.Binance.Proxy.Enabled && strings.TrimSpace(b.Binance.Proxy.RESTURL) == "" {
		return fmt.Errorf("brokers.binance.proxy.rest_url required when proxy enabled")
	}
	return nil
}
