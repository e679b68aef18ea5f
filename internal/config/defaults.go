package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":8090"
	defaultAppLogPath  = "/data/logs/riskmanager.log"

	defaultBackend                   = "rest"
	defaultBaseCurrency              = "EUR"
	defaultUnprotectedLossPercentage = 50

	defaultRestTimeoutSeconds = 15
	defaultRestSwitchDelayMs  = 200
	defaultRestRefreshDelayMs = 300

	defaultSocketHost                = "127.0.0.1"
	defaultSocketPort                = 4001
	defaultSocketClientID            = 1
	defaultSocketPositionTimeoutSecs = 30
	defaultSocketOrderTimeoutSecs    = 10
	defaultSocketPriceTimeoutSecs    = 5
	defaultSocketPlaceOrderTimeout   = 30
	defaultSocketReconnectThreshold  = 3
	defaultSocketReconnectCooldown   = 5

	defaultFxEndpointTemplate = "https://api.frankfurter.app/latest?from=%s"
	defaultFxRefreshInterval  = 60
	defaultFxTimeoutSeconds   = 10
)

// applyDefaults fills every field the caller did not set explicitly.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Rest.applyDefaults(keys)
	c.Socket.applyDefaults(keys)
	c.Fx.applyDefaults(keys)
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

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("risk.backend", &r.Backend, defaultBackend),
		stringFieldDefault("risk.base-currency", &r.BaseCurrency, defaultBaseCurrency),
		fieldDefault{
			key:   "risk.unprotected-loss-percentage",
			need:  func() bool { return r.UnprotectedLossPercentage <= 0 },
			apply: func() { r.UnprotectedLossPercentage = defaultUnprotectedLossPercentage },
		},
	)
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
}

func (r *RestConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "rest.timeout_seconds",
			need:  func() bool { return r.TimeoutSeconds <= 0 },
			apply: func() { r.TimeoutSeconds = defaultRestTimeoutSeconds },
		},
		fieldDefault{
			key:   "rest.switch_delay_ms",
			need:  func() bool { return r.SwitchDelayMs <= 0 },
			apply: func() { r.SwitchDelayMs = defaultRestSwitchDelayMs },
		},
		fieldDefault{
			key:   "rest.refresh_delay_ms",
			need:  func() bool { return r.RefreshDelayMs <= 0 },
			apply: func() { r.RefreshDelayMs = defaultRestRefreshDelayMs },
		},
	)
}

func (s *SocketConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("socket.host", &s.Host, defaultSocketHost),
		fieldDefault{
			key:   "socket.port",
			need:  func() bool { return s.Port <= 0 },
			apply: func() { s.Port = defaultSocketPort },
		},
		fieldDefault{
			key:   "socket.client_id",
			need:  func() bool { return s.ClientID <= 0 },
			apply: func() { s.ClientID = defaultSocketClientID },
		},
		fieldDefault{
			key:   "socket.position_timeout_seconds",
			need:  func() bool { return s.PositionTimeoutSecs <= 0 },
			apply: func() { s.PositionTimeoutSecs = defaultSocketPositionTimeoutSecs },
		},
		fieldDefault{
			key:   "socket.order_timeout_seconds",
			need:  func() bool { return s.OrderTimeoutSecs <= 0 },
			apply: func() { s.OrderTimeoutSecs = defaultSocketOrderTimeoutSecs },
		},
		fieldDefault{
			key:   "socket.price_timeout_seconds",
			need:  func() bool { return s.PriceTimeoutSecs <= 0 },
			apply: func() { s.PriceTimeoutSecs = defaultSocketPriceTimeoutSecs },
		},
		fieldDefault{
			key:   "socket.place_order_timeout_seconds",
			need:  func() bool { return s.PlaceOrderTimeout <= 0 },
			apply: func() { s.PlaceOrderTimeout = defaultSocketPlaceOrderTimeout },
		},
		fieldDefault{
			key:   "socket.reconnect_threshold",
			need:  func() bool { return s.ReconnectThreshold <= 0 },
			apply: func() { s.ReconnectThreshold = defaultSocketReconnectThreshold },
		},
		fieldDefault{
			key:   "socket.reconnect_cooldown_seconds",
			need:  func() bool { return s.ReconnectCooldownSecs <= 0 },
			apply: func() { s.ReconnectCooldownSecs = defaultSocketReconnectCooldown },
		},
	)
}

func (f *FxConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("fx.endpoint_url_template", &f.EndpointURLTemplate, defaultFxEndpointTemplate),
		fieldDefault{
			key:   "fx.refresh_interval_minutes",
			need:  func() bool { return f.RefreshIntervalMin <= 0 },
			apply: func() { f.RefreshIntervalMin = defaultFxRefreshInterval },
		},
		fieldDefault{
			key:   "fx.timeout_seconds",
			need:  func() bool { return f.TimeoutSeconds <= 0 },
			apply: func() { f.TimeoutSeconds = defaultFxTimeoutSeconds },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
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
