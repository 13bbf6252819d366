// Package monitor periodically reconciles local positions against the
// exchange: mark price and unrealized PnL refresh, close detection, and
// realized PnL writeback. The exchange is the source of truth; no orders
// are ever placed from here.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/accounts"
	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/exchange"
	"github.com/ajitpratap0/signalflow/internal/metrics"
)

// Monitor syncs open positions on a fixed interval
type Monitor struct {
	store       *db.DB
	manager     *accounts.Manager
	clientFor   func(acct *accounts.Account) exchange.Client
	interval    time.Duration
	callTimeout time.Duration
	logger      zerolog.Logger
}

// New creates a position monitor. clientFor defaults to the manager's
// client factory when nil.
func New(store *db.DB, manager *accounts.Manager, clientFor func(*accounts.Account) exchange.Client, interval, callTimeout time.Duration) *Monitor {
	if interval == 0 {
		interval = 60 * time.Second
	}
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}
	if clientFor == nil && manager != nil {
		clientFor = manager.ClientFor
	}
	return &Monitor{
		store:       store,
		manager:     manager,
		clientFor:   clientFor,
		interval:    interval,
		callTimeout: callTimeout,
		logger:      log.With().Str("component", "position_monitor").Logger(),
	}
}

// Run drives the sync loop until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.interval).Msg("Position monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Position monitor stopped")
			return
		case <-ticker.C:
			m.SyncOnce(ctx)
		}
	}
}

// SyncOnce runs a single reconciliation pass over all accounts
func (m *Monitor) SyncOnce(ctx context.Context) {
	accts, err := m.manager.ResolveAll(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Account resolution failed, sync skipped")
		return
	}

	openTotal := 0
	for _, acct := range accts {
		openTotal += m.syncAccount(ctx, acct)
	}

	metrics.OpenPositions.Set(float64(openTotal))
}

// syncAccount reconciles one account and returns its open-position count
func (m *Monitor) syncAccount(ctx context.Context, acct *accounts.Account) int {
	alog := m.logger.With().Str("account_id", acct.ID).Logger()

	local, err := m.store.OpenPositionsForAccount(ctx, acct.ID)
	if err != nil {
		alog.Error().Err(err).Msg("Failed to load local positions")
		return 0
	}
	if len(local) == 0 {
		return 0
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	remote, err := m.clientFor(acct).FetchOpenPositions(callCtx)
	cancel()
	if err != nil {
		alog.Warn().Err(err).Msg("Exchange position fetch failed, sync deferred")
		return len(local)
	}

	remoteBySymbol := make(map[string]exchange.OpenPosition, len(remote))
	for _, r := range remote {
		remoteBySymbol[positionKey(r.Symbol, string(r.Side))] = r
	}

	stillOpen := 0
	for _, p := range local {
		r, open := remoteBySymbol[positionKey(p.Symbol, string(p.Side))]
		if open {
			stillOpen++
			if err := m.store.UpdatePositionMark(ctx, p.ID, r.MarkPrice, r.UnrealizedPnl); err != nil {
				alog.Warn().Err(err).Str("symbol", p.Symbol).Msg("Mark refresh failed")
				continue
			}
			metrics.UnrealizedPnl.WithLabelValues(p.Symbol).Set(r.UnrealizedPnl)
			continue
		}

		m.closePosition(ctx, acct, p, alog)
	}

	return stillOpen
}

// closePosition closes the local row and writes realized PnL back to the
// originating order
func (m *Monitor) closePosition(ctx context.Context, acct *accounts.Account, p *db.Position, alog zerolog.Logger) {
	now := time.Now().UTC()

	if err := m.store.ClosePosition(ctx, p.ID, now); err != nil {
		alog.Error().Err(err).Str("symbol", p.Symbol).Msg("Failed to close position")
		return
	}
	metrics.UnrealizedPnl.DeleteLabelValues(p.Symbol)

	// Realized PnL at close, estimated from the last known mark. The
	// exchange fill history would be more precise but is not part of the
	// sync surface.
	realized := (p.MarkPrice - p.EntryPrice) * p.Quantity
	if p.Side == db.OrderSideSell {
		realized = -realized
	}

	if err := m.writeRealizedPnl(ctx, acct.ID, p, realized, now); err != nil {
		alog.Warn().Err(err).Str("symbol", p.Symbol).Msg("Realized PnL writeback failed")
	}

	alog.Info().
		Str("symbol", p.Symbol).
		Float64("realized_pnl", realized).
		Msg("Position closed by exchange")
}

// writeRealizedPnl attaches realized PnL to the newest filled order on the
// position's symbol and account
func (m *Monitor) writeRealizedPnl(ctx context.Context, accountID string, p *db.Position, realized float64, closedAt time.Time) error {
	orders, err := m.store.FilledOrdersAwaitingPnl(ctx, accountID, p.Symbol)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	return m.store.UpdateOrderPnl(ctx, orders[0].ID, realized, closedAt)
}

func positionKey(symbol, side string) string {
	return symbol + "/" + side
}
