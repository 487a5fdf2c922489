package domain

import "time"

// PricePoint records a single mark at a point in time.
type PricePoint struct {
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

// PurchaseEvent records one buy leg that contributed to a position's
// cost basis.
type PurchaseEvent struct {
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is a ledger entry for the current holdings of one symbol.
//
// AverageBuyPrice is the quantity-weighted mean purchase price of the units
// still held: buys move it, sells never do. ProfitLoss and ProfitLossPct are
// derived and recomputed on every mark or balance change.
type Position struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Name            string    `json:"name"`
	Balance         float64   `json:"balance"`
	AverageBuyPrice float64   `json:"average_buy_price"`
	CurrentPrice    float64   `json:"current_price"`
	HighestPrice    float64   `json:"highest_price"`
	HighestPriceAt  time.Time `json:"highest_price_at"`

	// PriceHistory holds the most recent marks, oldest first, bounded by the
	// ledger's history cap.
	PriceHistory []PricePoint `json:"price_history"`

	// ConsecutiveDecreases counts back-to-back marks where the price strictly
	// fell versus the prior mark. Any non-decrease resets it to zero.
	ConsecutiveDecreases int `json:"consecutive_decreases"`

	PurchaseHistory []PurchaseEvent `json:"purchase_history"`

	ProfitLoss    float64 `json:"profit_loss"`
	ProfitLossPct float64 `json:"profit_loss_pct"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the position so callers can hand it out
// without exposing the ledger's internal slices.
func (p Position) Clone() Position {
	out := p
	if p.PriceHistory != nil {
		out.PriceHistory = make([]PricePoint, len(p.PriceHistory))
		copy(out.PriceHistory, p.PriceHistory)
	}
	if p.PurchaseHistory != nil {
		out.PurchaseHistory = make([]PurchaseEvent, len(p.PurchaseHistory))
		copy(out.PurchaseHistory, p.PurchaseHistory)
	}
	return out
}
