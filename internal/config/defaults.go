package config

import "strings"

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9810"
	defaultAppLogPath         = "data/logs/tradefan.log"
	defaultStoreDBPath        = "data/db/tradefan.db"
	defaultStoreOrderLogPath  = "data/db/orderlog.db"
	defaultExecutionMaxConc   = 10
	defaultMonitorInterval    = 5
	defaultStrategiesRegistry = "configs/strategies.yaml"
	defaultBrokerName         = "paper"
	defaultBinanceREST        = "https://api.binance.com"
	defaultBinanceTimeout     = 15
	defaultPaperFillPrice     = 100.0
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Execution.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	c.Brokers.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.db_path", &s.DBPath, defaultStoreDBPath),
		stringFieldDefault("store.order_log_path", &s.OrderLogPath, defaultStoreOrderLogPath),
	)
}

func (e *ExecutionConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "execution.max_concurrent",
			need:  func() bool { return e.MaxConcurrent <= 0 },
			apply: func() { e.MaxConcurrent = defaultExecutionMaxConc },
		},
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("monitor.enabled", &m.Enabled, true),
		boolFieldDefault("monitor.shared_lock", &m.SharedLock, true),
		fieldDefault{
			key:   "monitor.interval_seconds",
			need:  func() bool { return m.IntervalSeconds <= 0 },
			apply: func() { m.IntervalSeconds = defaultMonitorInterval },
		},
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.registry_path", &s.RegistryPath, defaultStrategiesRegistry),
	)
}

func (b *BrokersConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	b.Binance.Proxy.normalize()
	applyFieldDefaults(keys,
		stringFieldDefault("brokers.default", &b.Default, defaultBrokerName),
		stringFieldDefault("brokers.binance.rest_base_url", &b.Binance.RESTBaseURL, defaultBinanceREST),
		fieldDefault{
			key:   "brokers.binance.timeout_seconds",
			need:  func() bool { return b.Binance.TimeoutSeconds <= 0 },
			apply: func() { b.Binance.TimeoutSeconds = defaultBinanceTimeout },
		},
		fieldDefault{
			key:   "brokers.paper.fill_price",
			need:  func() bool { return b.Paper.FillPrice <= 0 },
			apply: func() { b.Paper.FillPrice = defaultPaperFillPrice },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
