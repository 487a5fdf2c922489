package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderFailed         = errors.New("order failed")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnsupported         = errors.New("unsupported by exchange")
)
