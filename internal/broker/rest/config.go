package rest

import "time"

// Config carries everything the REST gateway needs beyond the HTTP
// client itself, translated from internal/config's RestConfig by the
// application builder.
type Config struct {
	BaseURL       string
	SessionCookie string
	Accounts      []string
	Timeout       time.Duration

	// SwitchDelay and RefreshDelay are the two mandated sleeps of the
	// read protocol (spec §4.4): switch -> wait -> refresh GET -> wait
	// -> read GET. Configurable per spec's open question (1), but must
	// default to 200ms/300ms.
	SwitchDelay  time.Duration
	RefreshDelay time.Duration

	InsecureSkipVerify bool
}
