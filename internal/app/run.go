package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptostalker/cryptostalker/internal/autotrade"
	s3blob "github.com/cryptostalker/cryptostalker/internal/blob/s3"
	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/feed"
	"github.com/cryptostalker/cryptostalker/internal/ledger"
	"github.com/cryptostalker/cryptostalker/internal/oracle"
	"github.com/cryptostalker/cryptostalker/internal/platform/binance"
	"github.com/cryptostalker/cryptostalker/internal/platform/gateway"
	"github.com/cryptostalker/cryptostalker/internal/router"
	"github.com/cryptostalker/cryptostalker/internal/server"
	"github.com/cryptostalker/cryptostalker/internal/server/handler"
	"github.com/cryptostalker/cryptostalker/internal/tradelog"
)

// venuePrices is the symbol+quote price query both venue clients implement.
type venuePrices interface {
	GetPrice(ctx context.Context, symbol, quote string) (float64, error)
}

// quotedSource adapts a venue price query to the oracle's symbol-only shape by
// pinning the configured quote currency.
type quotedSource struct {
	venue venuePrices
	quote string
}

func (q *quotedSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return q.venue.GetPrice(ctx, symbol, q.quote)
}

// noCandidates is the candidate source used when the listings feed is
// disabled: the auto-trade loop keeps monitoring but never buys.
type noCandidates struct{}

func (noCandidates) Candidates() []domain.Candidate { return nil }

// run builds the trading components on top of the wired backends and runs all
// loops until the context is cancelled. On the way out it persists a final
// snapshot and, when configured, exports the session results.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	quote := a.cfg.Trading.QuoteCurrency

	book := ledger.New(a.cfg.Trading.HistoryCap, a.logger)
	if deps.SnapshotStore != nil {
		positions, err := deps.SnapshotStore.Load(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "snapshot restore failed, starting empty",
				slog.String("error", err.Error()),
			)
		} else if len(positions) > 0 {
			book.Restore(positions)
			a.logger.InfoContext(ctx, "positions restored from snapshot",
				slog.Int("count", len(positions)),
			)
		}
	}

	tradeLog := tradelog.New(deps.TradeStore, deps.SignalBus, a.logger).
		WithNotifier(deps.Notifier)

	// Live venues. The gateway is the generic path; Binance is the one venue
	// with a native integration. Whichever exists first also serves live
	// quotes to the oracle.
	var (
		gw      router.Gateway
		live    oracle.LiveSource
		natives = map[string]router.Venue{}
	)
	if a.cfg.Gateway.BaseURL != "" {
		gwClient := gateway.NewClient(a.cfg.Gateway.BaseURL, a.cfg.Gateway.ApiKey)
		gw = gwClient
		live = &quotedSource{venue: gwClient, quote: quote}
	}
	if a.cfg.Binance.ApiKey != "" {
		bn := binance.NewClient(a.cfg.Binance.BaseURL, a.cfg.Binance.ApiKey, a.cfg.Binance.ApiSecret)
		natives["binance"] = bn
		if live == nil {
			live = &quotedSource{venue: bn, quote: quote}
		}
	}

	prices := oracle.New(live, deps.PriceCache, oracle.Config{
		MaxRetries:       a.cfg.Oracle.MaxRetries,
		RetryDelay:       a.cfg.Oracle.RetryDelay.Duration,
		Volatility:       a.cfg.Oracle.Volatility,
		TrendShiftChance: a.cfg.Oracle.TrendShiftChance,
	}, a.cfg.Oracle.Seed, a.logger)

	cash := ledger.NewCash(a.cfg.Trading.StartingBalance)
	orders := router.New(
		book, tradeLog, prices, gw, natives, deps.RateLimiter,
		quote, domain.ExecMode(strings.ToLower(a.cfg.Mode)), a.logger,
	).WithCash(cash)

	var candidates autotrade.CandidateSource = noCandidates{}
	var listings *feed.ListingsFeed
	if a.cfg.Feed.Enabled {
		listings = feed.NewListingsFeed(a.cfg.Feed.WsURL, a.cfg.Feed.Window.Duration, nil, a.logger)
		candidates = listings
	}

	ctrl := autotrade.New(book, orders, prices, candidates, autotrade.Config{
		Interval:      a.cfg.AutoTrade.Interval.Duration,
		BuyAmount:     a.cfg.AutoTrade.BuyAmount,
		SellThreshold: a.cfg.AutoTrade.SellThreshold,
		MinMarketCap:  a.cfg.AutoTrade.MinMarketCap,
		MinVolume:     a.cfg.AutoTrade.MinVolume,
		MaxListingAge: a.cfg.AutoTrade.MaxListingAge.Duration,
		Exchange:      a.cfg.Trading.Exchange,
		Seed:          a.cfg.AutoTrade.Seed,
	}, a.logger)
	if a.cfg.AutoTrade.Enabled {
		ctrl.Enable()
	}

	g, ctx := errgroup.WithContext(ctx)

	if listings != nil {
		g.Go(func() error {
			return listings.Run(ctx)
		})
	}

	g.Go(func() error {
		return ctrl.Run(ctx)
	})

	g.Go(func() error {
		return a.pollPrices(ctx, book, prices, ctrl)
	})

	if deps.SnapshotStore != nil {
		g.Go(func() error {
			return a.snapshotLoop(ctx, book, deps.SnapshotStore)
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, book, tradeLog, orders, ctrl, cash)
	}

	err := g.Wait()

	a.persistOnShutdown(book, tradeLog, deps)
	return err
}

// priceGetter is the quote lookup the poll loop needs. Implemented by the
// oracle.
type priceGetter interface {
	GetPrice(ctx context.Context, symbol string, anchor float64) (oracle.Quote, error)
}

// pollPrices re-prices every held position on a fixed interval.
func (a *App) pollPrices(ctx context.Context, book *ledger.Ledger, prices priceGetter, ctrl *autotrade.Controller) error {
	ticker := time.NewTicker(a.cfg.Trading.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.markPositions(ctx, book, prices, ctrl)
		}
	}
}

// markPositions runs one mark pass over the book. A paused controller
// suspends the pass entirely: pause means no polling anywhere, so no
// consecutive-decrease counter moves while paused. The symbol currently
// monitored by the auto-trade loop is skipped: the controller marks it
// itself, and double marking would double-count price decreases.
func (a *App) markPositions(ctx context.Context, book *ledger.Ledger, prices priceGetter, ctrl *autotrade.Controller) {
	if ctrl.Paused() {
		return
	}
	monitored, _ := ctrl.Monitoring()
	for _, p := range book.List() {
		if p.Symbol == monitored {
			continue
		}
		q, err := prices.GetPrice(ctx, p.Symbol, p.CurrentPrice)
		if err != nil {
			a.logger.WarnContext(ctx, "price poll failed",
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := book.MarkPrice(p.Symbol, q.Price, q.At); err != nil {
			// Position may have been sold between List and here.
			a.logger.DebugContext(ctx, "mark price skipped",
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// snapshotLoop persists the position book on a fixed interval.
func (a *App) snapshotLoop(ctx context.Context, book *ledger.Ledger, store domain.SnapshotStore) error {
	ticker := time.NewTicker(a.cfg.Trading.SnapshotInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := store.Save(ctx, book.Snapshot()); err != nil {
				a.logger.ErrorContext(ctx, "snapshot save failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveLoop periodically uploads trades older than the retention cutoff to
// object storage, then deletes the uploaded rows. Deletion only runs after a
// successful upload so a failed run never loses data.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			archived, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "trade archive failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if archived == 0 {
				continue
			}
			deleted, err := deps.TradeHistory.DeleteBefore(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archived trade cleanup failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "trades archived",
				slog.Int64("archived", archived),
				slog.Int64("deleted", deleted),
				slog.Time("cutoff", cutoff),
			)
		}
	}
}

// persistOnShutdown writes a final snapshot and, when configured, exports the
// session results. Runs with a fresh context because the run context is
// already cancelled.
func (a *App) persistOnShutdown(book *ledger.Ledger, tradeLog *tradelog.Log, deps *Dependencies) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if deps.SnapshotStore != nil {
		if err := deps.SnapshotStore.Save(ctx, book.Snapshot()); err != nil {
			a.logger.Error("final snapshot save failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if a.cfg.Archive.Enabled && a.cfg.Archive.ExportResults && deps.Archiver != nil {
		path, err := deps.Archiver.ExportResults(ctx, s3blob.SessionResults{
			GeneratedAt: time.Now().UTC(),
			Positions:   book.Snapshot(),
			Stats:       tradeLog.Stats(),
			Trades:      tradeLog.Recent(500),
		})
		if err != nil {
			a.logger.Error("session results export failed",
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.Info("session results exported", slog.String("path", path))
		}
	}
}

// startHTTPServer adds the HTTP API server and its shutdown watcher to the
// given errgroup.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	book *ledger.Ledger,
	tradeLog *tradelog.Log,
	orders *router.Router,
	ctrl *autotrade.Controller,
	cash *ledger.Cash,
) {
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.ApiKey,
		Limiter:         deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(book, a.logger),
		Trades:    handler.NewTradeHandler(tradeLog, deps.TradeStore, a.logger),
		Orders:    handler.NewOrderHandler(orders, a.logger),
		AutoTrade: handler.NewAutoTradeHandler(ctrl, a.logger),
		Status:    handler.NewStatusHandler(orders, a.logger).WithCash(cash),
	}, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})
}
