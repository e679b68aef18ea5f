package config

import (
	"fmt"
	"strings"
)

// validate performs basic sanity checks on a loaded configuration.
func validate(c *Config) error {
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Rest.validate(c.Risk.Backend); err != nil {
		return err
	}
	if err := c.Socket.validate(c.Risk.Backend); err != nil {
		return err
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if len(r.Accounts) == 0 {
		return fmt.Errorf("risk.accounts requires at least one account id")
	}
	seen := make(map[string]struct{}, len(r.Accounts))
	for _, acct := range r.Accounts {
		acct = strings.TrimSpace(acct)
		if acct == "" {
			return fmt.Errorf("risk.accounts contains an empty account id")
		}
		if _, dup := seen[acct]; dup {
			return fmt.Errorf("risk.accounts contains duplicate account id: %s", acct)
		}
		seen[acct] = struct{}{}
	}
	if strings.TrimSpace(r.BaseCurrency) == "" {
		return fmt.Errorf("risk.base-currency cannot be empty")
	}
	if r.UnprotectedLossPercentage <= 0 || r.UnprotectedLossPercentage >= 100 {
		return fmt.Errorf("risk.unprotected-loss-percentage must be in (0, 100)")
	}
	switch r.Backend {
	case "rest", "socket":
	default:
		return fmt.Errorf("risk.backend must be 'rest' or 'socket', got %q", r.Backend)
	}
	return nil
}

func (r *RestConfig) validate(backend string) error {
	if backend != "rest" {
		return nil
	}
	if strings.TrimSpace(r.BaseURL) == "" {
		return fmt.Errorf("rest.base_url cannot be empty when risk.backend=rest")
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("rest.timeout_seconds must be > 0")
	}
	return nil
}

func (s *SocketConfig) validate(backend string) error {
	if backend != "socket" {
		return nil
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("socket.host cannot be empty when risk.backend=socket")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("socket.port must be a valid TCP port")
	}
	if s.ClientID < 0 {
		return fmt.Errorf("socket.client_id must be >= 0")
	}
	return nil
}
