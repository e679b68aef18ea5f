// Package fx implements the process-wide currency conversion cache
// (spec §4.1): a rate table refreshed on read, with coalesced concurrent
// refreshes and graceful degradation on any failure.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/kerner1000/riskmanager/internal/logger"
	"github.com/kerner1000/riskmanager/internal/money"
)

// Config configures the cache's refresh behavior.
type Config struct {
	// EndpointURLTemplate is formatted with the base currency, e.g.
	// "https://api.frankfurter.app/latest?from=%s".
	EndpointURLTemplate string
	BaseCurrency        string
	RefreshInterval     time.Duration
	Timeout             time.Duration
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]string  `json:"rates"`
}

// Cache is a process-wide FX rate table: constructed once at startup,
// never torn down. Safe for concurrent use.
type Cache struct {
	cfg    Config
	client *http.Client

	mu          sync.RWMutex
	rates       map[string]decimal.Decimal // currency -> rate-to-base
	lastRefresh time.Time

	group singleflight.Group
}

// New constructs a cache with the base currency already recorded at
// rate 1. The first real refresh happens lazily on the first
// ConvertToBase call for a non-base currency.
func New(cfg Config) *Cache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	base := strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency))
	return &Cache{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rates:  map[string]decimal.Decimal{base: decimal.NewFromInt(1)},
	}
}

// ConvertToBase converts amount from fromCurrency into the configured
// base currency. Never fails to the caller: a failed refresh keeps the
// previous rate table, and a currency missing from the table converts
// at 1:1 with a warning logged.
func (c *Cache) ConvertToBase(ctx context.Context, amount decimal.Decimal, fromCurrency string) decimal.Decimal {
	if fromCurrency == "" {
		return amount
	}
	currency := strings.ToUpper(strings.TrimSpace(fromCurrency))
	if currency == strings.ToUpper(strings.TrimSpace(c.cfg.BaseCurrency)) {
		return amount
	}

	c.refreshIfStale(ctx)

	rate, ok := c.rate(currency)
	if !ok {
		logger.Warnf("fx cache: no rate for currency %s, treating as 1:1", currency)
		return amount
	}
	return money.RoundCurrency(amount.Mul(rate))
}

func (c *Cache) rate(currency string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[currency]
	return r, ok
}

// refreshIfStale triggers a refresh when the table is older than
// RefreshInterval. Concurrent callers are coalesced onto a single
// in-flight HTTP request via singleflight.
func (c *Cache) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > c.cfg.RefreshInterval
	c.mu.RUnlock()
	if !stale {
		return
	}
	// Do blocks the caller on the shared refresh; every other caller
	// that finds the table stale while it runs joins the same call and
	// waits for it too, without issuing its own request. No caller goes
	// on with the stale table while a refresh is in flight.
	_, _, _ = c.group.Do("refresh", func() (any, error) {
		c.refresh(ctx)
		return nil, nil
	})
}

func (c *Cache) refresh(ctx context.Context) {
	base := strings.ToUpper(strings.TrimSpace(c.cfg.BaseCurrency))
	endpoint := fmt.Sprintf(c.cfg.EndpointURLTemplate, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.Warnf("fx cache: failed to build refresh request: %v", err)
		return
	}
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warnf("fx cache: refresh request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warnf("fx cache: refresh returned status %d", resp.StatusCode)
		return
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Warnf("fx cache: failed to decode refresh response: %v", err)
		return
	}

	next := map[string]decimal.Decimal{base: decimal.NewFromInt(1)}
	for currency, quoteStr := range body.Rates {
		quote, err := decimal.NewFromString(quoteStr)
		if err != nil || quote.IsZero() {
			logger.Warnf("fx cache: skipping unparsable rate for %s: %q", currency, quoteStr)
			continue
		}
		// The endpoint returns base -> other; invert to get other ->
		// base, 10-digit precision half-up.
		inverted := money.RoundInvert(decimal.NewFromInt(1).DivRound(quote, money.InvertScale))
		next[strings.ToUpper(currency)] = inverted
	}

	c.mu.Lock()
	c.rates = next
	c.lastRefresh = time.Now()
	c.mu.Unlock()
}
