package tradelog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubStore struct {
	appended []domain.Trade
	err      error
}

func (s *stubStore) Append(_ context.Context, t domain.Trade) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, t)
	return nil
}

func (s *stubStore) ListRecent(context.Context, int) ([]domain.Trade, error) {
	return nil, nil
}

func (s *stubStore) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}

func (s *stubStore) ListBefore(context.Context, time.Time) ([]domain.Trade, error) {
	return nil, nil
}

type stubBus struct {
	published [][]byte
	err       error
}

func (b *stubBus) Publish(_ context.Context, _ string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func trade(id, symbol string, side domain.TradeSide) domain.Trade {
	return domain.Trade{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Amount:    1,
		Price:     10,
		Timestamp: time.Now(),
		Exchange:  "binance",
	}
}

func TestAppendRecordsInMemory(t *testing.T) {
	l := New(nil, nil, testLogger())

	l.Append(context.Background(), trade("t1", "BTC", domain.TradeSideBuy))
	l.Append(context.Background(), trade("t2", "ETH", domain.TradeSideBuy))

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2, l.Stats().TotalTrades)
}

func TestAppendPersistsAndPublishes(t *testing.T) {
	store := &stubStore{}
	bus := &stubBus{}
	l := New(store, bus, testLogger())

	l.Append(context.Background(), trade("t1", "BTC", domain.TradeSideSell))

	require.Len(t, store.appended, 1)
	assert.Equal(t, "t1", store.appended[0].ID)

	require.Len(t, bus.published, 1)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(bus.published[0], &evt))
	assert.Equal(t, "trade_executed", evt["event"])
	assert.Equal(t, "BTC", evt["symbol"])
	assert.Equal(t, "sell", evt["side"])
}

func TestAppendSurvivesStoreAndBusFailures(t *testing.T) {
	store := &stubStore{err: errors.New("pg down")}
	bus := &stubBus{err: errors.New("redis down")}
	l := New(store, bus, testLogger())

	l.Append(context.Background(), trade("t1", "BTC", domain.TradeSideBuy))

	assert.Equal(t, 1, l.Len())
}

func TestRecordRealizedStats(t *testing.T) {
	l := New(nil, nil, testLogger())

	l.RecordRealized(50)
	l.RecordRealized(-20)
	l.RecordRealized(120)
	l.RecordRealized(-80)
	l.RecordRealized(0) // break-even: neither win nor loss

	stats := l.Stats()
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 2, stats.Losses)
	assert.InDelta(t, 70, stats.TotalProfit, 1e-9)
	assert.Equal(t, 120.0, stats.LargestGain)
	assert.Equal(t, -80.0, stats.LargestLoss)
	assert.Equal(t, 0.0, stats.LastTradeProfit)
	assert.InDelta(t, 50, stats.WinRate(), 1e-9)
}

func TestRecentNewestFirst(t *testing.T) {
	l := New(nil, nil, testLogger())
	for _, id := range []string{"a", "b", "c", "d"} {
		l.Append(context.Background(), trade(id, "BTC", domain.TradeSideBuy))
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)

	all := l.Recent(100)
	assert.Len(t, all, 4)
}
