// Package app wires the config, broker gateway, FX cache and risk
// engine together and exposes the operations the external API layer
// calls. Dependency injection is hand-written here rather than
// generated with google/wire: the graph is a handful of concrete types
// picked by one config flag (risk.backend), which does not carry its
// weight as codegen — the teacher's own wire_gen.go is itself a thin,
// hand-maintained shim rather than a large generated file, so a plain
// builder follows the same spirit at a smaller scale.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/broker"
	"github.com/kerner1000/riskmanager/internal/broker/rest"
	"github.com/kerner1000/riskmanager/internal/broker/socket"
	"github.com/kerner1000/riskmanager/internal/config"
	"github.com/kerner1000/riskmanager/internal/fx"
	"github.com/kerner1000/riskmanager/internal/logger"
	"github.com/kerner1000/riskmanager/internal/risk"
)

// Builder assembles a Facade from a loaded Config.
type Builder struct {
	cfg *config.Config
}

// NewBuilder wraps cfg for a subsequent Build call.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// Build constructs the gateway (REST or socket, per cfg.Risk.Backend),
// the FX cache, the risk engine and the health monitor, starts the
// monitor in the background until ctx is done, and returns the
// assembled Facade (which holds the monitor as Health).
func (b *Builder) Build(ctx context.Context) (*Facade, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("app builder: nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	gateway, err := b.buildGateway()
	if err != nil {
		return nil, fmt.Errorf("app builder: build gateway: %w", err)
	}

	fxCache := fx.New(fx.Config{
		EndpointURLTemplate: cfg.Fx.EndpointURLTemplate,
		BaseCurrency:        cfg.Risk.BaseCurrency,
		RefreshInterval:     time.Duration(cfg.Fx.RefreshIntervalMin) * time.Minute,
		Timeout:             time.Duration(cfg.Fx.TimeoutSeconds) * time.Second,
	})

	unprotectedPct := decimalFromFloat(cfg.Risk.UnprotectedLossPercentage)
	engine := risk.New(gateway, fxCache, cfg.Risk.BaseCurrency, unprotectedPct)

	health := broker.NewHealthMonitor(gateway.KeepAlive, 30*time.Second, 2*time.Minute)
	go health.Start(ctx)

	return NewFacade(gateway, engine, health), nil
}

func (b *Builder) buildGateway() (broker.Gateway, error) {
	cfg := b.cfg
	switch cfg.Risk.Backend {
	case "rest":
		return rest.New(rest.Config{
			BaseURL:            cfg.Rest.BaseURL,
			SessionCookie:      cfg.Rest.SessionCookie,
			Accounts:           cfg.Risk.Accounts,
			Timeout:            time.Duration(cfg.Rest.TimeoutSeconds) * time.Second,
			SwitchDelay:        time.Duration(cfg.Rest.SwitchDelayMs) * time.Millisecond,
			RefreshDelay:       time.Duration(cfg.Rest.RefreshDelayMs) * time.Millisecond,
			InsecureSkipVerify: cfg.Rest.InsecureSkipVerify,
		})
	case "socket":
		url := fmt.Sprintf("ws://%s:%d/", cfg.Socket.Host, cfg.Socket.Port)
		return socket.New(socket.Config{
			URL:               url,
			Accounts:          cfg.Risk.Accounts,
			ClientID:          cfg.Socket.ClientID,
			ConnectTimeout:    10 * time.Second,
			PositionTimeout:   time.Duration(cfg.Socket.PositionTimeoutSecs) * time.Second,
			OrderTimeout:      time.Duration(cfg.Socket.OrderTimeoutSecs) * time.Second,
			PriceTimeout:      time.Duration(cfg.Socket.PriceTimeoutSecs) * time.Second,
			PlaceOrderTimeout: time.Duration(cfg.Socket.PlaceOrderTimeout) * time.Second,

			ReconnectThreshold: cfg.Socket.ReconnectThreshold,
			ReconnectCooldown:  time.Duration(cfg.Socket.ReconnectCooldownSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown risk.backend %q", cfg.Risk.Backend)
	}
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
