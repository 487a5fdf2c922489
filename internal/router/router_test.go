package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/ledger"
	"github.com/cryptostalker/cryptostalker/internal/oracle"
	"github.com/cryptostalker/cryptostalker/internal/tradelog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPrices returns a fixed quote for every symbol.
type stubPrices struct {
	price  float64
	source oracle.QuoteSource
	err    error
}

func (s *stubPrices) GetPrice(_ context.Context, symbol string, _ float64) (oracle.Quote, error) {
	if s.err != nil {
		return oracle.Quote{}, s.err
	}
	return oracle.Quote{Symbol: symbol, Price: s.price, Source: s.source, At: time.Now()}, nil
}

type stubGateway struct {
	fill  domain.Fill
	err   error
	calls int
	last  domain.OrderRequest
}

func (g *stubGateway) CreateOrder(_ context.Context, _ string, req domain.OrderRequest) (domain.Fill, error) {
	g.calls++
	g.last = req
	return g.fill, g.err
}

type stubVenue struct {
	fill  domain.Fill
	err   error
	calls int
}

func (v *stubVenue) CreateOrder(_ context.Context, _ domain.OrderRequest) (domain.Fill, error) {
	v.calls++
	return v.fill, v.err
}

type stubLimiter struct {
	allowed bool
	calls   int
}

func (l *stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	return l.allowed, nil
}

type fixture struct {
	book    *ledger.Ledger
	log     *tradelog.Log
	prices  *stubPrices
	gateway *stubGateway
	native  *stubVenue
	router  *Router
}

func newFixture(mode domain.ExecMode) *fixture {
	f := &fixture{
		book:    ledger.New(0, testLogger()),
		log:     tradelog.New(nil, nil, testLogger()),
		prices:  &stubPrices{price: 10, source: oracle.QuoteSourceLive},
		gateway: &stubGateway{fill: domain.Fill{OrderID: "gw-1", Amount: 5, Price: 10, Timestamp: time.Now()}},
		native:  &stubVenue{fill: domain.Fill{OrderID: "nv-1", Amount: 5, Price: 10, Timestamp: time.Now()}},
	}
	f.router = New(
		f.book, f.log, f.prices, f.gateway,
		map[string]Venue{"binance": f.native},
		nil, "USDT", mode, testLogger(),
	)
	return f
}

func buyIntent(symbol string, amount float64) domain.OrderIntent {
	return domain.OrderIntent{
		Symbol:   symbol,
		Name:     symbol + " Coin",
		Side:     domain.TradeSideBuy,
		Amount:   amount,
		Exchange: "binance",
	}
}

func sellIntent(symbol string, amount float64) domain.OrderIntent {
	return domain.OrderIntent{
		Symbol:   symbol,
		Side:     domain.TradeSideSell,
		Amount:   amount,
		Exchange: "binance",
	}
}

func TestSimulatedBuyOpensPosition(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)

	trade, err := f.router.Execute(context.Background(), buyIntent("BTC", 2))
	require.NoError(t, err)

	assert.True(t, trade.IsSimulated)
	assert.Equal(t, 2.0, trade.Amount)
	assert.Equal(t, 10.0, trade.Price)
	assert.Equal(t, string(oracle.QuoteSourceLive), trade.QuoteSource)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, 0, f.gateway.calls, "paper trading must not touch exchanges")

	pos, err := f.book.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, 2.0, pos.Balance)
	assert.Equal(t, pos.ID, trade.PositionID)
	assert.Equal(t, 1, f.log.Len())
}

func TestSimulatedSellRealizesProfit(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 2))
	require.NoError(t, err)

	f.prices.price = 15
	trade, err := f.router.Execute(context.Background(), sellIntent("BTC", 2))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeSideSell, trade.Side)

	_, err = f.book.Get("BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats := f.log.Stats()
	assert.InDelta(t, 10, stats.TotalProfit, 1e-9) // (15-10)*2
	assert.Equal(t, 1, stats.Wins)
}

func TestLiveBuyViaGateway(t *testing.T) {
	f := newFixture(domain.ExecModeLive)

	trade, err := f.router.Execute(context.Background(), buyIntent("SOL", 5))
	require.NoError(t, err)

	assert.False(t, trade.IsSimulated)
	assert.Equal(t, "gw-1", trade.OrderID)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, 0, f.native.calls)
	// Buys go over the wire as quote notional.
	assert.InDelta(t, 50, f.gateway.last.Amount, 1e-9)

	pos, err := f.book.Get("SOL")
	require.NoError(t, err)
	assert.Equal(t, 5.0, pos.Balance)
}

func TestLiveFallsBackToNativeVenue(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	f.gateway.err = fmt.Errorf("exchange not routable: %w", domain.ErrUnsupported)

	trade, err := f.router.Execute(context.Background(), buyIntent("SOL", 5))
	require.NoError(t, err)

	assert.Equal(t, "nv-1", trade.OrderID)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, 1, f.native.calls)
}

func TestLiveNoFallbackWithoutNativeVenue(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	f.gateway.err = errors.New("boom")

	intent := buyIntent("SOL", 5)
	intent.Exchange = "kraken" // no native integration registered

	_, err := f.router.Execute(context.Background(), intent)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderFailed)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, 0, f.native.calls)

	_, err = f.book.Get("SOL")
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed order must not mutate the book")
	assert.Equal(t, 0, f.log.Len())
}

func TestLiveAllPathsFailNoRetry(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	f.gateway.err = errors.New("gateway down")
	f.native.err = errors.New("venue down")

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderFailed)
	assert.Contains(t, err.Error(), "gateway down")
	assert.Contains(t, err.Error(), "venue down")
	// Each path is tried exactly once: order placement never retries.
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, 1, f.native.calls)
}

func TestSellPrecheckBeforeVenueCall(t *testing.T) {
	f := newFixture(domain.ExecModeLive)

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 1))
	require.NoError(t, err)
	f.gateway.calls = 0

	_, err = f.router.Execute(context.Background(), sellIntent("BTC", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 0, f.gateway.calls, "oversell must be rejected before any order is placed")

	pos, err := f.book.Get("BTC")
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.Balance)
}

func TestSellUnknownSymbol(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)

	_, err := f.router.Execute(context.Background(), sellIntent("DOGE", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvalidAmountRejected(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.router.Execute(context.Background(), buyIntent("BTC", -1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestFillNormalization(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	// Venue acknowledges but reports nothing usable.
	f.gateway.fill = domain.Fill{OrderID: "gw-2"}

	intent := buyIntent("BTC", 4)
	trade, err := f.router.Execute(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, 4.0, trade.Amount, "missing fill amount defaults to requested amount")
	assert.Equal(t, 10.0, trade.Price, "missing fill price defaults to the resolved quote")
	assert.False(t, trade.Timestamp.IsZero())
}

func TestRateLimiterBlocksLiveOrders(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	limiter := &stubLimiter{allowed: false}
	f.router.limiter = limiter

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 1, limiter.calls)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestIntentModeOverridesGlobalMode(t *testing.T) {
	f := newFixture(domain.ExecModeLive)

	intent := buyIntent("BTC", 1)
	intent.Mode = domain.ExecModeSimulated

	trade, err := f.router.Execute(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, trade.IsSimulated)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestSetMode(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)

	require.NoError(t, f.router.SetMode(domain.ExecModeLive))
	assert.Equal(t, domain.ExecModeLive, f.router.Mode())

	assert.Error(t, f.router.SetMode("turbo"))
	assert.Equal(t, domain.ExecModeLive, f.router.Mode())
}

func TestSimulatedQuoteTaggedOnTrade(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	f.prices.source = oracle.QuoteSourceSimulated

	trade, err := f.router.Execute(context.Background(), buyIntent("BTC", 1))
	require.NoError(t, err)
	assert.False(t, trade.IsSimulated, "a live fill is a real trade")
	assert.Equal(t, string(oracle.QuoteSourceSimulated), trade.QuoteSource,
		"price provenance must stay inspectable")
}

func TestSimulatedTradesSettleCash(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)
	cash := ledger.NewCash(100)
	f.router.WithCash(cash)

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 2))
	require.NoError(t, err)
	assert.InDelta(t, 80, cash.Balance(), 1e-9) // 100 - 2*10

	f.prices.price = 15
	_, err = f.router.Execute(context.Background(), sellIntent("BTC", 2))
	require.NoError(t, err)
	assert.InDelta(t, 110, cash.Balance(), 1e-9) // 80 + 2*15
}

func TestSimulatedBuyRejectedOnInsufficientCash(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)
	cash := ledger.NewCash(15)
	f.router.WithCash(cash)

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 2)) // costs 20
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.InDelta(t, 15, cash.Balance(), 1e-9, "rejected buy must not move cash")

	_, err = f.book.Get("BTC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, f.log.Len())
}

func TestLiveFillsSkipCash(t *testing.T) {
	f := newFixture(domain.ExecModeLive)
	cash := ledger.NewCash(100)
	f.router.WithCash(cash)

	_, err := f.router.Execute(context.Background(), buyIntent("SOL", 5))
	require.NoError(t, err)
	assert.InDelta(t, 100, cash.Balance(), 1e-9, "live fills settle on the venue")
}

func TestPriceFailurePropagates(t *testing.T) {
	f := newFixture(domain.ExecModeSimulated)
	f.prices.err = domain.ErrPriceUnavailable

	_, err := f.router.Execute(context.Background(), buyIntent("BTC", 1))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
