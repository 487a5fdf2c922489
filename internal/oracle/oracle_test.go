package oracle

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: time.Millisecond, Volatility: 2}
}

// stubSource is a scripted LiveSource.
type stubSource struct {
	price float64
	err   error
	calls int
}

func (s *stubSource) GetPrice(_ context.Context, _ string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.price, nil
}

func TestLiveQuotePreferred(t *testing.T) {
	src := &stubSource{price: 42.5}
	o := New(src, nil, fastConfig(), 1, testLogger())

	q, err := o.GetPrice(context.Background(), "BTC", 0)
	require.NoError(t, err)
	assert.Equal(t, 42.5, q.Price)
	assert.Equal(t, QuoteSourceLive, q.Source)
	assert.Equal(t, 1, src.calls)
}

func TestRetriesThenFallsBackToWalk(t *testing.T) {
	src := &stubSource{err: domain.ErrRateLimited}
	o := New(src, nil, fastConfig(), 1, testLogger())

	q, err := o.GetPrice(context.Background(), "BTC", 100)
	require.NoError(t, err)
	assert.Equal(t, QuoteSourceSimulated, q.Source)
	assert.Equal(t, 3, src.calls)
	assert.Greater(t, q.Price, 0.0)
}

func TestFallbackAnchoredToLastLivePrice(t *testing.T) {
	src := &stubSource{price: 200}
	o := New(src, nil, fastConfig(), 1, testLogger())

	_, err := o.GetPrice(context.Background(), "ETH", 0)
	require.NoError(t, err)

	// Feed dies; the walk continues from the last live price, not from the
	// stale anchor argument.
	src.err = domain.ErrRateLimited
	q, err := o.GetPrice(context.Background(), "ETH", 5)
	require.NoError(t, err)
	assert.Equal(t, QuoteSourceSimulated, q.Source)
	assert.InDelta(t, 200, q.Price, 200*0.021)
}

func TestNoAnchorNoSource(t *testing.T) {
	o := New(nil, nil, fastConfig(), 1, testLogger())

	_, err := o.GetPrice(context.Background(), "UNKNOWN", 0)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestWalkStepBound(t *testing.T) {
	// With volatility 2 no single step may move the price by more than 2% of
	// the previous value, since |0.7*trend + 0.3*noise| <= 1.
	o := New(nil, nil, fastConfig(), 7, testLogger())
	ctx := context.Background()

	last := 100.0
	first, err := o.GetPrice(ctx, "SIM", last)
	require.NoError(t, err)
	assert.LessOrEqual(t, math.Abs(first.Price-last), last*0.02+1e-9)
	last = first.Price

	for i := 0; i < 500; i++ {
		q, err := o.GetPrice(ctx, "SIM", 0)
		require.NoError(t, err)
		assert.Equal(t, QuoteSourceSimulated, q.Source)
		assert.LessOrEqual(t, math.Abs(q.Price-last), last*0.02+1e-9, "step %d", i)
		assert.Greater(t, q.Price, 0.0)
		last = q.Price
	}
}

func TestWalkDeterministicForSeed(t *testing.T) {
	ctx := context.Background()

	run := func(seed int64) []float64 {
		o := New(nil, nil, fastConfig(), seed, testLogger())
		out := make([]float64, 0, 20)
		for i := 0; i < 20; i++ {
			q, err := o.GetPrice(ctx, "SIM", 100)
			require.NoError(t, err)
			out = append(out, q.Price)
		}
		return out
	}

	assert.Equal(t, run(99), run(99))
	assert.NotEqual(t, run(99), run(100))
}

func TestContextCancellationNotRetried(t *testing.T) {
	src := &stubSource{err: context.Canceled}
	o := New(src, nil, fastConfig(), 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.GetPrice(ctx, "BTC", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, src.calls, 1)
}
