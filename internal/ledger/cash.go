package ledger

import (
	"fmt"
	"sync"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

// Cash is the virtual quote-currency account backing paper trading: buys
// debit it, sells credit it. Live fills settle on the venue and never touch
// this account.
type Cash struct {
	mu      sync.Mutex
	balance float64
}

// NewCash creates an account holding the given opening balance.
func NewCash(opening float64) *Cash {
	if opening < 0 {
		opening = 0
	}
	return &Cash{balance: opening}
}

// Debit withdraws cost from the account. An overdraft is rejected and leaves
// the balance untouched; the account rejects rather than clamps, exactly like
// a sell against an insufficient position.
func (c *Cash) Debit(cost float64) error {
	if cost <= 0 {
		return fmt.Errorf("ledger: debit %v: %w", cost, domain.ErrInvalidAmount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cost > c.balance {
		return fmt.Errorf("ledger: debit %v with cash %v: %w", cost, c.balance, domain.ErrInsufficientBalance)
	}
	c.balance -= cost
	return nil
}

// Credit deposits proceeds into the account. Non-positive amounts are
// ignored.
func (c *Cash) Credit(proceeds float64) {
	if proceeds <= 0 {
		return
	}
	c.mu.Lock()
	c.balance += proceeds
	c.mu.Unlock()
}

// Balance returns the current balance.
func (c *Cash) Balance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}
