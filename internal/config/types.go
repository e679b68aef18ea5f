package config

import "strings"

// Config is the risk manager's top-level configuration carrier.
type Config struct {
	App    AppConfig    `toml:"app"`
	Risk   RiskConfig   `toml:"risk"`
	Rest   RestConfig   `toml:"rest"`
	Socket SocketConfig `toml:"socket"`
	Fx     FxConfig     `toml:"fx"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// RiskConfig carries the backend-agnostic risk engine settings from spec.md §6.
type RiskConfig struct {
	// Backend selects the BrokerGateway implementation: "rest" or "socket".
	Backend                    string   `toml:"backend"`
	Accounts                   []string `toml:"accounts"`
	BaseCurrency               string   `toml:"base-currency"`
	UnprotectedLossPercentage  float64  `toml:"unprotected-loss-percentage"`
}

// RestConfig configures the session-cookie REST backend (spec.md §4.4, §6).
type RestConfig struct {
	BaseURL            string `toml:"base_url"`
	SessionCookie      string `toml:"session_cookie"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	SwitchDelayMs      int    `toml:"switch_delay_ms"`
	RefreshDelayMs     int    `toml:"refresh_delay_ms"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// SocketConfig configures the async socket backend (spec.md §4.5, §6).
type SocketConfig struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	ClientID            int    `toml:"client_id"`
	PositionTimeoutSecs int    `toml:"position_timeout_seconds"`
	OrderTimeoutSecs    int    `toml:"order_timeout_seconds"`
	PriceTimeoutSecs    int    `toml:"price_timeout_seconds"`
	PlaceOrderTimeout   int    `toml:"place_order_timeout_seconds"`

	// ReconnectThreshold is the number of consecutive dial failures
	// before the socket gateway's reconnect circuit breaker opens.
	ReconnectThreshold int `toml:"reconnect_threshold"`
	// ReconnectCooldownSecs is how long that breaker stays open before
	// allowing another dial attempt.
	ReconnectCooldownSecs int `toml:"reconnect_cooldown_seconds"`
}

// FxConfig configures the currency conversion cache (spec.md §4.1).
type FxConfig struct {
	EndpointURLTemplate string `toml:"endpoint_url_template"`
	RefreshIntervalMin  int    `toml:"refresh_interval_minutes"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// keySet tracks which config paths were explicitly set in the source file(s).
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

// fieldDefault describes the default-value rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
