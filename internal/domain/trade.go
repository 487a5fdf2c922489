package domain

import "time"

// TradeSide indicates whether a trade bought or sold the base asset.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is the immutable record of one executed leg. Trades are created only
// by the order router and never mutated afterwards.
type Trade struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       TradeSide `json:"side"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	Exchange   string    `json:"exchange"`

	// OrderID is the exchange-assigned order identifier. Empty for simulated
	// fills, which never reach an exchange.
	OrderID string `json:"order_id,omitempty"`

	// IsAuto marks trades issued by the auto-trade controller rather than a
	// user action.
	IsAuto bool `json:"is_auto"`

	// IsSimulated marks trades filled without contacting a real exchange.
	// This includes live-mode trades whose price came from the oracle's
	// simulated walk; see QuoteSource for the inspectable distinction.
	IsSimulated bool `json:"is_simulated"`

	// QuoteSource records where the fill price came from ("live" or
	// "simulated"). A live-mode trade priced off the simulated walk carries
	// QuoteSource "simulated" so the fallback is never silent.
	QuoteSource string `json:"quote_source,omitempty"`
}

// Value returns the quote-currency notional of the trade.
func (t Trade) Value() float64 {
	return t.Amount * t.Price
}

// TradingStats is the rolling aggregate derived from closed or reduced
// positions. It is recomputed incrementally on each realized sell.
type TradingStats struct {
	TotalTrades     int     `json:"total_trades"`
	TotalProfit     float64 `json:"total_profit"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	LargestGain     float64 `json:"largest_gain"`
	LargestLoss     float64 `json:"largest_loss"`
	LastTradeProfit float64 `json:"last_trade_profit"`
}

// WinRate returns the fraction of realized sells that closed at a profit,
// or 0 when nothing has been realized yet.
func (s TradingStats) WinRate() float64 {
	closed := s.Wins + s.Losses
	if closed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(closed)
}
