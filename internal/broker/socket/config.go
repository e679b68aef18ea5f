package socket

import "time"

// Config carries everything the socket gateway needs that is not part
// of the wire protocol itself — translated from internal/config's
// SocketConfig by the application builder so this package stays
// independent of the config-loading stack.
type Config struct {
	URL      string
	Accounts []string
	ClientID int

	ConnectTimeout    time.Duration
	PositionTimeout   time.Duration
	OrderTimeout      time.Duration
	PriceTimeout      time.Duration
	PlaceOrderTimeout time.Duration

	// ReconnectThreshold is the number of consecutive dial failures that
	// trip the reconnect circuit breaker open. Zero means use the
	// package default (3).
	ReconnectThreshold int
	// ReconnectCooldown is how long the breaker stays open before
	// allowing another dial attempt. Zero means use the package
	// default (5s).
	ReconnectCooldown time.Duration
}

func (c Config) reconnectThreshold() int {
	if c.ReconnectThreshold > 0 {
		return c.ReconnectThreshold
	}
	return 3
}

func (c Config) reconnectCooldown() time.Duration {
	if c.ReconnectCooldown > 0 {
		return c.ReconnectCooldown
	}
	return 5 * time.Second
}
