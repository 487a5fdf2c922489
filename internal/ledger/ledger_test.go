package ledger

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestApplyBuyCreatesPosition(t *testing.T) {
	l := New(0, testLogger())

	pos, err := l.ApplyBuy("NEWCOIN", "New Coin", 10, 5, ts(0))
	require.NoError(t, err)

	assert.Equal(t, "NEWCOIN", pos.Symbol)
	assert.Equal(t, 10.0, pos.Balance)
	assert.Equal(t, 5.0, pos.AverageBuyPrice)
	assert.Equal(t, 5.0, pos.CurrentPrice)
	assert.Equal(t, 5.0, pos.HighestPrice)
	assert.Len(t, pos.PurchaseHistory, 1)
	assert.NotEmpty(t, pos.ID)
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	l := New(0, testLogger())

	_, err := l.ApplyBuy("ABC", "", 10, 5, ts(0))
	require.NoError(t, err)
	pos, err := l.ApplyBuy("ABC", "", 10, 7, ts(1))
	require.NoError(t, err)

	assert.Equal(t, 20.0, pos.Balance)
	assert.InDelta(t, 6.0, pos.AverageBuyPrice, 1e-12)
	assert.Len(t, pos.PurchaseHistory, 2)
}

func TestAverageBuyPriceIndependentOfBatching(t *testing.T) {
	// The weighted mean must not depend on how the same units are split
	// across buy legs.
	batchings := [][]struct{ amount, price float64 }{
		{{30, 4}, {10, 8}},
		{{10, 4}, {20, 4}, {10, 8}},
		{{5, 4}, {5, 4}, {5, 4}, {15, 4}, {2, 8}, {8, 8}},
	}

	for i, legs := range batchings {
		l := New(0, testLogger())
		var pos domain.Position
		var err error
		for j, leg := range legs {
			pos, err = l.ApplyBuy("XYZ", "", leg.amount, leg.price, ts(j))
			require.NoError(t, err)
		}
		assert.InDelta(t, 5.0, pos.AverageBuyPrice, 1e-9, "batching %d", i)
		assert.InDelta(t, 40.0, pos.Balance, 1e-9, "batching %d", i)
	}
}

func TestApplyBuyRejectsInvalidInput(t *testing.T) {
	l := New(0, testLogger())

	tests := []struct {
		name    string
		amount  float64
		price   float64
		wantErr error
	}{
		{"zero price", 10, 0, domain.ErrInvalidPrice},
		{"negative price", 10, -1, domain.ErrInvalidPrice},
		{"zero amount", 0, 5, domain.ErrInvalidAmount},
		{"negative amount", -3, 5, domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ApplyBuy("BAD", "", tt.amount, tt.price, ts(0))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing was created by the failed buys.
	_, err := l.Get("BAD")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplySellPartialKeepsAverage(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 10, 5, ts(0))
	require.NoError(t, err)
	_, err = l.ApplyBuy("ABC", "", 10, 7, ts(1))
	require.NoError(t, err)

	res, err := l.ApplySell("ABC", 5, 9, ts(2))
	require.NoError(t, err)

	assert.False(t, res.Removed)
	assert.InDelta(t, 15.0, res.Position.Balance, 1e-12)
	assert.InDelta(t, 6.0, res.Position.AverageBuyPrice, 1e-12)
	assert.InDelta(t, (9.0-6.0)*5, res.RealizedPnL, 1e-12)
}

func TestApplySellFullRemovesPosition(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 10, 5, ts(0))
	require.NoError(t, err)
	_, err = l.ApplyBuy("ABC", "", 10, 7, ts(1))
	require.NoError(t, err)

	res, err := l.ApplySell("ABC", 20, 9, ts(2))
	require.NoError(t, err)

	assert.True(t, res.Removed)
	assert.InDelta(t, 60.0, res.RealizedPnL, 1e-12)

	_, err = l.Get("ABC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplySellInsufficientBalance(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 10, 5, ts(0))
	require.NoError(t, err)

	_, err = l.ApplySell("ABC", 11, 6, ts(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The failed sell must not have partially mutated the position.
	pos, err := l.Get("ABC")
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Balance)
	assert.Equal(t, 5.0, pos.AverageBuyPrice)
}

func TestApplySellUnknownSymbol(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplySell("GHOST", 1, 5, ts(0))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkPriceConsecutiveDecreases(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 10, 100, ts(0))
	require.NoError(t, err)

	marks := []struct {
		price float64
		want  int
	}{
		{99, 1},
		{98, 2},
		{98, 0},  // equal mark resets
		{97, 1},
		{96, 2},
		{95, 3},
		{100, 0}, // increase resets
		{99, 1},
	}

	for i, m := range marks {
		pos, err := l.MarkPrice("ABC", m.price, ts(i+1))
		require.NoError(t, err)
		assert.Equal(t, m.want, pos.ConsecutiveDecreases, "mark %d at %v", i, m.price)
	}
}

func TestMarkPriceHighestTracking(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 1, 100, ts(0))
	require.NoError(t, err)

	pos, err := l.MarkPrice("ABC", 120, ts(1))
	require.NoError(t, err)
	assert.Equal(t, 120.0, pos.HighestPrice)
	assert.Equal(t, ts(1), pos.HighestPriceAt)

	pos, err = l.MarkPrice("ABC", 110, ts(2))
	require.NoError(t, err)
	assert.Equal(t, 120.0, pos.HighestPrice)
	assert.Equal(t, ts(1), pos.HighestPriceAt)
}

func TestMarkPriceRecomputesPnL(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("ABC", "", 10, 5, ts(0))
	require.NoError(t, err)

	pos, err := l.MarkPrice("ABC", 8, ts(1))
	require.NoError(t, err)
	assert.InDelta(t, (8.0-5.0)*10, pos.ProfitLoss, 1e-12)
	assert.InDelta(t, 60.0, pos.ProfitLossPct, 1e-12)
}

func TestMarkPriceHistoryBounded(t *testing.T) {
	l := New(5, testLogger())
	_, err := l.ApplyBuy("ABC", "", 1, 10, ts(0))
	require.NoError(t, err)

	var pos domain.Position
	for i := 0; i < 12; i++ {
		pos, err = l.MarkPrice("ABC", float64(10+i), ts(i+1))
		require.NoError(t, err)
	}

	require.Len(t, pos.PriceHistory, 5)
	// Oldest entries are dropped first.
	assert.Equal(t, 17.0, pos.PriceHistory[0].Price)
	assert.Equal(t, 21.0, pos.PriceHistory[4].Price)
}

func TestRoundTripScenario(t *testing.T) {
	// Buy 10 at $5, buy 10 at $7, sell 20 at $9: realized P/L = 60 and the
	// position is removed.
	l := New(0, testLogger())

	_, err := l.ApplyBuy("RT", "Round Trip", 10, 5, ts(0))
	require.NoError(t, err)
	pos, err := l.ApplyBuy("RT", "Round Trip", 10, 7, ts(1))
	require.NoError(t, err)
	assert.Equal(t, 20.0, pos.Balance)
	assert.InDelta(t, 6.0, pos.AverageBuyPrice, 1e-12)

	res, err := l.ApplySell("RT", 20, 9, ts(2))
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.InDelta(t, 60.0, res.RealizedPnL, 1e-12)
	assert.Empty(t, l.List())
}

func TestSnapshotRestore(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("AAA", "", 5, 2, ts(0))
	require.NoError(t, err)
	_, err = l.ApplyBuy("BBB", "", 3, 4, ts(1))
	require.NoError(t, err)

	snap := l.Snapshot()
	require.Len(t, snap, 2)

	restored := New(0, testLogger())
	restored.Restore(snap)

	for _, sym := range []string{"AAA", "BBB"} {
		want, err := l.Get(sym)
		require.NoError(t, err)
		got, err := restored.Get(sym)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConcurrentBuysSameSymbol(t *testing.T) {
	// Interleaved buys must still produce the exact weighted mean, because
	// per-symbol mutations serialize.
	l := New(0, testLogger())

	const workers = 8
	const buysPerWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < buysPerWorker; i++ {
				_, err := l.ApplyBuy("HOT", "", 1, 10, ts(0))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	pos, err := l.Get("HOT")
	require.NoError(t, err)
	assert.InDelta(t, float64(workers*buysPerWorker), pos.Balance, 1e-9)
	assert.InDelta(t, 10.0, pos.AverageBuyPrice, 1e-9)
}

func TestConcurrentMarksAndSells(t *testing.T) {
	l := New(0, testLogger())
	_, err := l.ApplyBuy("HOT", "", 100, 10, ts(0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = l.MarkPrice("HOT", 10+float64(i%3), ts(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = l.ApplySell("HOT", 0.5, 11, ts(i))
		}
	}()
	wg.Wait()

	pos, err := l.Get("HOT")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pos.Balance, 1e-9)
	// Sells never move the cost basis.
	assert.InDelta(t, 10.0, pos.AverageBuyPrice, 1e-9)
}
