package config

import "strings"

// Config is the top-level tradefan configuration.
type Config struct {
	App        AppConfig        `toml:"app"`
	Store      StoreConfig      `toml:"store"`
	Webhook    WebhookConfig    `toml:"webhook"`
	Execution  ExecutionConfig  `toml:"execution"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Strategies StrategiesConfig `toml:"strategies"`
	Brokers    BrokersConfig    `toml:"brokers"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type StoreConfig struct {
	DBPath       string `toml:"db_path"`
	OrderLogPath string `toml:"order_log_path"`
}

type WebhookConfig struct {
	// Secret must match the X-Webhook-Secret header (or body field) of
	// inbound signal submissions. Empty disables the check.
	Secret string `toml:"secret"`
}

type ExecutionConfig struct {
	// MaxConcurrent bounds how many subscribers of one signal are
	// reconciled in parallel; batches run sequentially.
	MaxConcurrent int `toml:"max_concurrent"`
}

type MonitorConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
	// SharedLock makes the monitor take the coordinator's per-(user,
	// strategy) lock around its check+close step, closing the cross-path
	// double-close window.
	SharedLock bool `toml:"shared_lock"`
}

type StrategiesConfig struct {
	RegistryPath string `toml:"registry_path"`
}

type BrokersConfig struct {
	// Default is the venue used when a credential names no known broker.
	Default string        `toml:"default"`
	Binance BinanceConfig `toml:"binance"`
	Paper   PaperConfig   `toml:"paper"`
}

type BinanceConfig struct {
	RESTBaseURL    string      `toml:"rest_base_url"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Proxy          ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// PaperConfig seeds the simulated venue used for tests and for brokers
// without a real adapter.
type PaperConfig struct {
	FillPrice float64 `toml:"fill_price"`
}

// keySet tracks which config paths were explicitly set in the files, so
// defaults never clobber intentional zero values.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the defaulting rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
