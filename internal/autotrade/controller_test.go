package autotrade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/ledger"
	"github.com/cryptostalker/cryptostalker/internal/oracle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubExec applies intents straight to the ledger like a simulated router.
type stubExec struct {
	book    *ledger.Ledger
	err     error
	intents []domain.OrderIntent
}

func (e *stubExec) Execute(_ context.Context, intent domain.OrderIntent) (domain.Trade, error) {
	e.intents = append(e.intents, intent)
	if e.err != nil {
		return domain.Trade{}, e.err
	}
	price := intent.RequestedPrice
	switch intent.Side {
	case domain.TradeSideBuy:
		if _, err := e.book.ApplyBuy(intent.Symbol, intent.Name, intent.Amount, price, time.Now()); err != nil {
			return domain.Trade{}, err
		}
	case domain.TradeSideSell:
		if _, err := e.book.ApplySell(intent.Symbol, intent.Amount, price, time.Now()); err != nil {
			return domain.Trade{}, err
		}
	}
	return domain.Trade{ID: "t-" + intent.Symbol, Symbol: intent.Symbol, Side: intent.Side,
		Amount: intent.Amount, Price: price}, nil
}

// scriptedPrices returns prices from a queue, repeating the last one.
type scriptedPrices struct {
	prices []float64
	i      int
}

func (s *scriptedPrices) GetPrice(_ context.Context, symbol string, _ float64) (oracle.Quote, error) {
	p := s.prices[s.i]
	if s.i < len(s.prices)-1 {
		s.i++
	}
	return oracle.Quote{Symbol: symbol, Price: p, Source: oracle.QuoteSourceSimulated, At: time.Now()}, nil
}

type staticCandidates struct {
	cands []domain.Candidate
}

func (s *staticCandidates) Candidates() []domain.Candidate { return s.cands }

func freshCandidate(symbol string, price, mcap, volume float64) domain.Candidate {
	return domain.Candidate{
		Symbol:    symbol,
		Name:      symbol + " Coin",
		Price:     price,
		MarketCap: mcap,
		Volume24h: volume,
		ListedAt:  time.Now().Add(-time.Hour),
	}
}

func testConfig() Config {
	return Config{
		Interval:      time.Minute,
		BuyAmount:     100,
		SellThreshold: 3,
		Exchange:      "binance",
		Seed:          1,
	}
}

func newController(t *testing.T, cands []domain.Candidate, prices []float64) (*Controller, *stubExec, *ledger.Ledger) {
	t.Helper()
	book := ledger.New(0, testLogger())
	exec := &stubExec{book: book}
	c := New(book, exec, &scriptedPrices{prices: prices}, &staticCandidates{cands: cands}, testConfig(), testLogger())
	return c, exec, book
}

func TestDisabledControllerDoesNothing(t *testing.T) {
	c, exec, _ := newController(t, []domain.Candidate{freshCandidate("NEW", 2, 5_000_000, 0)}, []float64{2})

	c.Tick(context.Background())
	assert.Empty(t, exec.intents)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestScanBuysQualifyingCandidate(t *testing.T) {
	c, exec, book := newController(t, []domain.Candidate{freshCandidate("NEW", 2, 5_000_000, 0)}, []float64{2})
	c.Enable()

	c.Tick(context.Background())

	require.Len(t, exec.intents, 1)
	intent := exec.intents[0]
	assert.Equal(t, domain.TradeSideBuy, intent.Side)
	assert.True(t, intent.Auto)
	assert.InDelta(t, 50, intent.Amount, 1e-9) // 100 budget / price 2

	pos, err := book.Get("NEW")
	require.NoError(t, err)
	assert.Equal(t, 50.0, pos.Balance)

	sym, ok := c.Monitoring()
	assert.True(t, ok)
	assert.Equal(t, "NEW", sym)
	assert.Equal(t, StateMonitoring, c.Status().State)
}

func TestQualifyThresholds(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		cand domain.Candidate
		want bool
	}{
		{"market cap qualifies", freshCandidate("A", 1, 1_000_001, 0), true},
		{"volume qualifies", freshCandidate("B", 1, 0, 500_001), true},
		{"either bar alone is enough", freshCandidate("C", 1, 2_000_000, 600_000), true},
		{"neither bar cleared", freshCandidate("D", 1, 1_000_000, 500_000), false},
		{"too old", domain.Candidate{Symbol: "E", Price: 1, MarketCap: 9_000_000,
			ListedAt: now.Add(-48 * time.Hour)}, false},
		{"no listing date", domain.Candidate{Symbol: "F", Price: 1, MarketCap: 9_000_000}, false},
		{"no price", domain.Candidate{Symbol: "G", MarketCap: 9_000_000,
			ListedAt: now.Add(-time.Hour)}, false},
	}

	c, _, _ := newController(t, nil, []float64{1})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.qualify([]domain.Candidate{tc.cand})
			assert.Equal(t, tc.want, len(got) == 1)
		})
	}
}

func TestAlreadyHeldSymbolSkipped(t *testing.T) {
	c, exec, book := newController(t, []domain.Candidate{freshCandidate("HELD", 2, 5_000_000, 0)}, []float64{2})
	_, err := book.ApplyBuy("HELD", "Held Coin", 10, 2, time.Now())
	require.NoError(t, err)
	c.Enable()

	c.Tick(context.Background())
	assert.Empty(t, exec.intents)
}

func TestSelectionDeterministicForSeed(t *testing.T) {
	cands := []domain.Candidate{
		freshCandidate("AAA", 1, 5_000_000, 0),
		freshCandidate("BBB", 1, 5_000_000, 0),
		freshCandidate("CCC", 1, 5_000_000, 0),
	}

	pick := func(seed int64) string {
		book := ledger.New(0, testLogger())
		exec := &stubExec{book: book}
		cfg := testConfig()
		cfg.Seed = seed
		c := New(book, exec, &scriptedPrices{prices: []float64{1}}, &staticCandidates{cands: cands}, cfg, testLogger())
		c.Enable()
		c.Tick(context.Background())
		if len(exec.intents) == 0 {
			return ""
		}
		return exec.intents[0].Symbol
	}

	assert.Equal(t, pick(7), pick(7))
	assert.NotEmpty(t, pick(7))

	// Zero seeds from the clock; selection still works, just unpinned.
	assert.NotEmpty(t, pick(0))
}

func TestSellTriggerAfterThreeDecreases(t *testing.T) {
	// Buy at 10, then mark 9, 8, 7: the third strict decrease triggers a
	// full-balance sell.
	c, exec, book := newController(t,
		[]domain.Candidate{freshCandidate("NEW", 10, 5_000_000, 0)},
		[]float64{9, 8, 7, 6})
	c.Enable()
	ctx := context.Background()

	c.Tick(ctx) // buy at 10
	require.Len(t, exec.intents, 1)

	c.Tick(ctx) // mark 9, decreases=1
	c.Tick(ctx) // mark 8, decreases=2
	assert.Len(t, exec.intents, 1, "no sell before the threshold")

	c.Tick(ctx) // mark 7, decreases=3 -> sell
	require.Len(t, exec.intents, 2)
	sell := exec.intents[1]
	assert.Equal(t, domain.TradeSideSell, sell.Side)
	assert.Equal(t, "NEW", sell.Symbol)
	assert.Equal(t, 10.0, sell.Amount) // full balance: 100 budget / price 10
	assert.True(t, sell.Auto)

	_, err := book.Get("NEW")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestRecoveryResetsCounter(t *testing.T) {
	// 9, 8 (two decreases), then 11 resets, then 10, 9 — never reaches three.
	c, exec, _ := newController(t,
		[]domain.Candidate{freshCandidate("NEW", 10, 5_000_000, 0)},
		[]float64{9, 8, 11, 10, 9})
	c.Enable()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		c.Tick(ctx)
	}
	assert.Len(t, exec.intents, 1, "only the initial buy")
	assert.Equal(t, StateMonitoring, c.Status().State)
}

func TestDisableKeepsMonitoringSellTrigger(t *testing.T) {
	c, exec, _ := newController(t,
		[]domain.Candidate{freshCandidate("NEW", 10, 5_000_000, 0)},
		[]float64{9, 8, 7})
	c.Enable()
	ctx := context.Background()

	c.Tick(ctx) // buy
	c.Disable()

	c.Tick(ctx)
	c.Tick(ctx)
	c.Tick(ctx)

	// Disabling stops new selection but does not strand the open position.
	require.Len(t, exec.intents, 2)
	assert.Equal(t, domain.TradeSideSell, exec.intents[1].Side)

	// Back to idle and disabled: no new buys.
	c.Tick(ctx)
	assert.Len(t, exec.intents, 2)
}

func TestPauseSuspendsTicks(t *testing.T) {
	c, exec, _ := newController(t, []domain.Candidate{freshCandidate("NEW", 2, 5_000_000, 0)}, []float64{2})
	c.Enable()
	c.Pause()

	c.Tick(context.Background())
	assert.Empty(t, exec.intents)
	assert.True(t, c.Paused())
	assert.True(t, c.Status().Paused)

	c.Resume()
	c.Tick(context.Background())
	assert.Len(t, exec.intents, 1)
}

func TestFailedSellStaysMonitoring(t *testing.T) {
	c, exec, _ := newController(t,
		[]domain.Candidate{freshCandidate("NEW", 10, 5_000_000, 0)},
		[]float64{9, 8, 7, 6})
	c.Enable()
	ctx := context.Background()

	c.Tick(ctx) // buy
	exec.err = errors.New("exchange down")

	c.Tick(ctx)
	c.Tick(ctx)
	c.Tick(ctx) // trigger fires, sell fails

	assert.Equal(t, StateMonitoring, c.Status().State)

	// Next tick marks another decrease; the trigger condition still holds and
	// a fresh intent is issued.
	exec.err = nil
	c.Tick(ctx)
	last := exec.intents[len(exec.intents)-1]
	assert.Equal(t, domain.TradeSideSell, last.Side)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestMonitoredPositionRemovedExternally(t *testing.T) {
	c, exec, book := newController(t,
		[]domain.Candidate{freshCandidate("NEW", 10, 5_000_000, 0)},
		[]float64{9})
	c.Enable()
	ctx := context.Background()

	c.Tick(ctx) // buy
	_, err := book.ApplySell("NEW", 10, 12, time.Now())
	require.NoError(t, err)

	c.Tick(ctx)
	assert.Equal(t, StateIdle, c.Status().State)
	assert.Len(t, exec.intents, 1)
}
