// Package feed consumes the external new-listings stream. The stream pushes
// newly observed symbols with market data; the feed keeps a rolling window of
// them as buy candidates. The core never fetches candidates itself.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cryptostalker/cryptostalker/internal/domain"
)

const (
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the pause before redialing after a disconnect.
	reconnectDelay = 2 * time.Second
)

// listingMessage is the JSON shape pushed by the listings stream.
type listingMessage struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
	ListedAt  string  `json:"listed_at"` // RFC 3339
}

// CandidateHandler is called for each candidate entering the window.
type CandidateHandler func(domain.Candidate)

// ListingsFeed maintains the candidate window from a listings WebSocket. It
// reconnects on disconnect and is safe for concurrent use; Candidates may be
// polled while Run is consuming the stream.
type ListingsFeed struct {
	wsURL  string
	window time.Duration
	onNew  CandidateHandler
	logger *slog.Logger

	mu    sync.RWMutex
	cands map[string]domain.Candidate

	now func() time.Time
}

// NewListingsFeed creates a feed. window bounds how long a candidate stays
// eligible after its listing time; onNew may be nil.
func NewListingsFeed(wsURL string, window time.Duration, onNew CandidateHandler, logger *slog.Logger) *ListingsFeed {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &ListingsFeed{
		wsURL:  wsURL,
		window: window,
		onNew:  onNew,
		logger: logger.With(slog.String("component", "listings_feed")),
		cands:  make(map[string]domain.Candidate),
		now:    time.Now,
	}
}

// Run consumes the stream until ctx is cancelled, redialing on disconnect.
func (f *ListingsFeed) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("listings stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *ListingsFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.logger.Info("listings stream connected", slog.String("url", f.wsURL))

	conn.SetReadDeadline(f.now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(f.now().Add(pongWait))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, f.now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.Ingest(data)
	}
}

// Ingest folds one raw stream message into the window. Malformed or
// incomplete messages are dropped.
func (f *ListingsFeed) Ingest(data []byte) {
	var msg listingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("drop malformed listing message",
			slog.Int("payload_len", len(data)),
		)
		return
	}
	if msg.Symbol == "" || msg.Price <= 0 {
		return
	}

	listedAt, err := time.Parse(time.RFC3339, msg.ListedAt)
	if err != nil {
		return
	}

	cand := domain.Candidate{
		Symbol:    msg.Symbol,
		Name:      msg.Name,
		Price:     msg.Price,
		MarketCap: msg.MarketCap,
		Volume24h: msg.Volume24h,
		ListedAt:  listedAt,
	}

	now := f.now()
	if cand.Age(now) > f.window {
		return
	}

	f.mu.Lock()
	_, seen := f.cands[cand.Symbol]
	f.cands[cand.Symbol] = cand
	f.prune(now)
	f.mu.Unlock()

	if !seen {
		f.logger.Info("new listing observed",
			slog.String("symbol", cand.Symbol),
			slog.Float64("price", cand.Price),
			slog.Float64("market_cap", cand.MarketCap),
			slog.Float64("volume_24h", cand.Volume24h),
		)
		if f.onNew != nil {
			f.onNew(cand)
		}
	}
}

// Candidates returns the current window, newest listing first.
func (f *ListingsFeed) Candidates() []domain.Candidate {
	now := f.now()

	f.mu.Lock()
	f.prune(now)
	out := make([]domain.Candidate, 0, len(f.cands))
	for _, c := range f.cands {
		out = append(out, c)
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ListedAt.After(out[j].ListedAt)
	})
	return out
}

// prune drops candidates whose listing age exceeds the window. Caller holds
// f.mu.
func (f *ListingsFeed) prune(now time.Time) {
	for sym, c := range f.cands {
		if c.Age(now) > f.window {
			delete(f.cands, sym)
		}
	}
}
