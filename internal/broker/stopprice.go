package broker

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kerner1000/riskmanager/internal/logger"
	"github.com/kerner1000/riskmanager/internal/pkg/text"
)

// stopPricePattern matches "stop 1,234.50"-style free text, case
// insensitive, with optional thousands separators.
var stopPricePattern = regexp.MustCompile(`(?i)stop\s+([\d,]+\.?\d*)`)

// ExtractStopPrice returns an order's effective stop price: StopPrice if
// set, else Price, else the first "stop <number>" occurrence parsed out
// of Description. On any parse failure it returns (zero, false) and logs
// a warning.
func ExtractStopPrice(order Order) (decimal.Decimal, bool) {
	if p := order.EffectiveStopPrice(); p != nil {
		return *p, true
	}
	match := stopPricePattern.FindStringSubmatch(order.Description)
	if match == nil {
		logger.Warnf("stopprice: no stop price found in order %s description %q", order.OrderID, text.Truncate(order.Description, 80))
		return decimal.Zero, false
	}
	cleaned := strings.ReplaceAll(match[1], ",", "")
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		logger.Warnf("stopprice: failed to parse extracted stop price %q for order %s: %v", match[1], order.OrderID, err)
		return decimal.Zero, false
	}
	return price, true
}
