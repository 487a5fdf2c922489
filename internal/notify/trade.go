package notify

import (
	"fmt"
	"strings"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// Event names emitted by the trading core.
const (
	EventTradeExecuted = "trade_executed"
	EventAutoTrade     = "auto_trade"
	EventError         = "error"
)

// TradeEvent classifies a trade for event filtering: automatic trades get
// their own event type so operators can subscribe to just those.
func TradeEvent(t domain.Trade) string {
	if t.IsAuto {
		return EventAutoTrade
	}
	return EventTradeExecuted
}

// FormatTrade renders a trade as a notification title and body.
func FormatTrade(t domain.Trade) (title, message string) {
	title = fmt.Sprintf("%s %s", strings.ToUpper(string(t.Side)), t.Symbol)

	mode := "live"
	if t.IsSimulated {
		mode = "simulated"
	}
	message = fmt.Sprintf("%g %s @ %g on %s (%s)", t.Amount, t.Symbol, t.Price, t.Exchange, mode)
	if t.IsAuto {
		message += " [auto]"
	}
	return title, message
}
