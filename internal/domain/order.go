package domain

import "time"

// ExecMode selects how an order intent is executed. It is a cross-cutting
// flag read once per execution, never re-checked mid-flight.
type ExecMode string

const (
	ExecModeSimulated ExecMode = "simulated"
	ExecModeLive      ExecMode = "live"
)

// OrderIntent is a request to buy or sell that has not yet been executed.
type OrderIntent struct {
	ID       string
	Symbol   string
	Name     string
	Side     TradeSide
	Amount   float64
	Exchange string
	Mode     ExecMode
	Auto     bool

	// RequestedPrice is the price known at intent time. Used as the
	// best-effort default when an execution path does not report a fill
	// price.
	RequestedPrice float64
}

// OrderRequest is the venue-neutral order shape handed to an exchange
// client. Symbol is the bare base asset; clients translate it into their own
// pair conventions before calling out.
type OrderRequest struct {
	Symbol string
	Quote  string
	Side   TradeSide
	// Amount is in base currency for sells and quote-currency notional for
	// buys, matching the generic order-creation convention.
	Amount float64
}

// Fill is the normalized result of one execution path. Zero-valued fields
// are filled in by the router from the intent before a Trade is built.
type Fill struct {
	OrderID   string
	Amount    float64
	Price     float64
	Timestamp time.Time
}
