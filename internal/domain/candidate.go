package domain

import "time"

// Candidate is a newly-observed listing supplied by the external candidate
// feed. The engine only consumes candidates; it never fetches listings
// itself.
type Candidate struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	MarketCap float64   `json:"market_cap"`
	Volume24h float64   `json:"volume_24h"`
	ListedAt  time.Time `json:"listed_at"`
}

// Age returns how long ago the candidate was listed, relative to now.
func (c Candidate) Age(now time.Time) time.Duration {
	return now.Sub(c.ListedAt)
}
