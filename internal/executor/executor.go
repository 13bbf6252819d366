// Package executor fans a validated signal out to all eligible accounts
// concurrently, recording one order per account.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/signalflow/internal/accounts"
	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/exchange"
	"github.com/ajitpratap0/signalflow/internal/metrics"
	"github.com/ajitpratap0/signalflow/internal/notifier"
	"github.com/ajitpratap0/signalflow/internal/risk"
)

// Config tunes the executor deadlines and market routing
type Config struct {
	Deadline       time.Duration // shared fan-out wallclock
	CallTimeout    time.Duration // per exchange call
	BalanceTimeout time.Duration // balance fetch budget
	QuoteAsset     string

	WinRateLookback time.Duration // Kelly input window

	// Spot routing thresholds for accounts with marketType both
	SpotMinScore      float64
	SpotMaxVolatility float64
}

// DefaultConfig returns the production executor settings
func DefaultConfig() Config {
	return Config{
		Deadline:          30 * time.Second,
		CallTimeout:       10 * time.Second,
		BalanceTimeout:    3 * time.Second,
		QuoteAsset:        "USDT",
		WinRateLookback:   30 * 24 * time.Hour,
		SpotMinScore:      0.75,
		SpotMaxVolatility: 0.10,
	}
}

// AccountOutcome is the per-account entry in an execution summary
type AccountOutcome struct {
	AccountID string
	Status    db.OrderStatus
	OrderID   string
	ErrorKind string
	Skipped   bool // idempotency skip, no new order row written
}

// Summary aggregates one fan-out
type Summary struct {
	GroupID       uuid.UUID
	TotalAccounts int
	Succeeded     int
	Failed        int
	PerAccount    []AccountOutcome
}

// ClientFactory builds a per-account exchange client. Overridable in tests.
type ClientFactory func(acct *accounts.Account) exchange.Client

// Executor submits one validated signal to every eligible account
type Executor struct {
	store     *db.DB
	sizer     *risk.Sizer
	notify    *notifier.Notifier
	clientFor ClientFactory
	cfg       Config
	logger    zerolog.Logger
}

// New creates an executor
func New(store *db.DB, sizer *risk.Sizer, notify *notifier.Notifier, clientFor ClientFactory, cfg Config) *Executor {
	if cfg.Deadline == 0 {
		cfg = DefaultConfig()
	}
	if cfg.WinRateLookback == 0 {
		cfg.WinRateLookback = 30 * 24 * time.Hour
	}
	return &Executor{
		store:     store,
		sizer:     sizer,
		notify:    notify,
		clientFor: clientFor,
		cfg:       cfg,
		logger:    log.With().Str("component", "executor").Logger(),
	}
}

// GroupIDFor derives the stable group id of a signal execution. Retries of
// the same signal reuse it, which is what makes the idempotency check work.
func GroupIDFor(signalID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("signal-%d", signalID)))
}

// ExecuteOnAll fans the signal out to all accounts under a shared deadline.
// Individual failures never cancel peers; the call returns once every
// account task has finished or the deadline fired.
func (e *Executor) ExecuteOnAll(ctx context.Context, sig *db.SignalRow, accts []*accounts.Account, volatility float64) *Summary {
	start := time.Now()
	groupID := GroupIDFor(sig.ID)

	summary := &Summary{
		GroupID:       groupID,
		TotalAccounts: len(accts),
		PerAccount:    make([]AccountOutcome, len(accts)),
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	var g errgroup.Group
	for i, acct := range accts {
		i, acct := i, acct
		g.Go(func() error {
			summary.PerAccount[i] = e.executeOne(execCtx, sig, acct, groupID, volatility)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // account tasks never return errors

	for _, outcome := range summary.PerAccount {
		switch {
		case outcome.Skipped:
		case outcome.Status == db.OrderStatusFilled, outcome.Status == db.OrderStatusPartial:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	metrics.ExecutionDuration.Observe(time.Since(start).Seconds())

	e.logger.Info().
		Str("group_id", groupID.String()).
		Str("symbol", sig.Symbol).
		Int("total", summary.TotalAccounts).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Execution fan-out complete")

	if e.notify != nil {
		e.notify.PublishSummary(&notifier.SummaryEvent{
			GroupID:       groupID.String(),
			Symbol:        sig.Symbol,
			Direction:     sig.Direction,
			Score:         sig.Score,
			TotalAccounts: summary.TotalAccounts,
			Succeeded:     summary.Succeeded,
			Failed:        summary.Failed,
			Timestamp:     time.Now().UTC(),
		})
	}

	return summary
}

// executeOne runs the full per-account protocol: idempotency check,
// balance fetch, sizing, market routing, submission, persistence
func (e *Executor) executeOne(ctx context.Context, sig *db.SignalRow, acct *accounts.Account, groupID uuid.UUID, volatility float64) AccountOutcome {
	alog := e.logger.With().Str("account_id", acct.ID).Str("symbol", sig.Symbol).Logger()

	exists, err := e.store.HasOrderForGroup(ctx, groupID, acct.ID)
	if err != nil {
		alog.Error().Err(err).Msg("Idempotency check failed")
		return AccountOutcome{AccountID: acct.ID, Status: db.OrderStatusFailed, ErrorKind: string(exchange.KindTimeout)}
	}
	if exists {
		alog.Info().Str("group_id", groupID.String()).Msg("Order already exists for group, skipping")
		return AccountOutcome{AccountID: acct.ID, Skipped: true}
	}

	dayStart := startOfDayUTC(time.Now().UTC())
	tradesToday, err := e.store.CountOrdersForAccountSince(ctx, acct.ID, dayStart)
	if err != nil {
		// Fail closed: an unverifiable cap must not admit a trade
		alog.Warn().Err(err).Msg("Daily trade cap check failed, account skipped")
		return AccountOutcome{AccountID: acct.ID, Status: db.OrderStatusFailed, ErrorKind: string(exchange.KindTimeout)}
	}
	if tradesToday >= acct.MaxDailyTrades {
		return e.recordFailure(ctx, sig, acct, groupID, exchange.KindSkippedBySizing,
			fmt.Sprintf("daily trade cap %d reached", acct.MaxDailyTrades))
	}

	client := e.clientFor(acct)

	// Balance fetch has its own tight budget
	balCtx, balCancel := context.WithTimeout(ctx, e.cfg.BalanceTimeout)
	balance, err := client.FetchBalance(balCtx, e.cfg.QuoteAsset)
	balCancel()
	if err != nil {
		kind := exchange.KindBalanceTimeout
		if exchange.KindOf(err) != exchange.KindNetworkTimeout && balCtx.Err() == nil {
			kind = exchange.KindOf(err)
		}
		return e.recordFailure(ctx, sig, acct, groupID, kind, err.Error())
	}

	infoCtx, infoCancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	info, err := client.ExchangeInfo(infoCtx, sig.Symbol)
	infoCancel()
	if err != nil {
		return e.recordFailure(ctx, sig, acct, groupID, e.mapKind(ctx, err), err.Error())
	}

	stats := e.winStats(ctx, sig.Symbol)
	sized := e.sizer.SizePosition(rowToSignal(sig), acct, balance.Free, stats, info)
	if sized.Skipped {
		kind := exchange.KindSkippedBySizing
		if sized.Reason == "below min notional" {
			kind = exchange.KindBelowMinNotional
		}
		return e.recordFailure(ctx, sig, acct, groupID, kind, sized.Reason)
	}

	market := e.chooseMarket(acct, sig, volatility)
	side := exchange.SideBuy
	orderSide := db.OrderSideBuy
	if sig.Direction == "SHORT" {
		side = exchange.SideSell
		orderSide = db.OrderSideSell
	}

	order := &db.Order{
		ID:          uuid.New(),
		GroupID:     groupID,
		SignalID:    sig.ID,
		AccountID:   acct.ID,
		Symbol:      sig.Symbol,
		Side:        orderSide,
		Quantity:    sized.Quantity,
		EntryPrice:  sig.Entry,
		Leverage:    acct.Leverage,
		NotionalUsd: sized.NotionalUsd,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TP1,
		MarketType:  db.MarketType(market),
		Status:      db.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.InsertOrder(ctx, order); err != nil {
		alog.Error().Err(err).Msg("Failed to persist pending order")
		return AccountOutcome{AccountID: acct.ID, Status: db.OrderStatusFailed, ErrorKind: string(exchange.KindTimeout)}
	}

	callCtx, callCancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	ack, err := client.SubmitMarketOrder(callCtx, exchange.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: sized.Quantity,
		Leverage: acct.Leverage,
		Market:   market,
	})
	callCancel()

	if err != nil {
		kind := e.mapKind(ctx, err)
		msg := err.Error()
		kindStr := string(kind)
		if updateErr := e.store.UpdateOrderStatus(ctx, order.ID, db.OrderStatusFailed, nil, &kindStr, &msg); updateErr != nil {
			alog.Error().Err(updateErr).Msg("Failed to record order failure")
		}
		metrics.OrdersTotal.WithLabelValues(string(db.OrderStatusFailed)).Inc()
		metrics.OrderErrors.WithLabelValues(kindStr).Inc()

		e.publishOrderEvent(order, string(db.OrderStatusFailed), "", kindStr, msg)
		alog.Warn().Str("error_kind", kindStr).Msg("Order submission failed")
		return AccountOutcome{AccountID: acct.ID, Status: db.OrderStatusFailed, OrderID: order.ID.String(), ErrorKind: kindStr}
	}

	filledStatus := db.OrderStatusFilled
	if ack.FilledQty > 0 && ack.FilledQty < sized.Quantity {
		filledStatus = db.OrderStatusPartial
		alog.Warn().
			Float64("requested_qty", sized.Quantity).
			Float64("filled_qty", ack.FilledQty).
			Msg("Order partially filled")
	}
	if updateErr := e.store.UpdateOrderStatus(ctx, order.ID, filledStatus, &ack.OrderID, nil, nil); updateErr != nil {
		alog.Error().Err(updateErr).Msg("Failed to record order fill")
	}
	metrics.OrdersTotal.WithLabelValues(string(filledStatus)).Inc()

	entryPrice := ack.FilledPrice
	if entryPrice == 0 {
		entryPrice = sig.Entry
	}
	position := &db.Position{
		ID:         uuid.New(),
		AccountID:  acct.ID,
		Symbol:     sig.Symbol,
		Side:       orderSide,
		EntryPrice: entryPrice,
		Quantity:   ack.FilledQty,
		MarkPrice:  entryPrice,
		OpenedAt:   time.Now().UTC(),
	}
	if err := e.store.UpsertPosition(ctx, position); err != nil {
		alog.Warn().Err(err).Msg("Optimistic position upsert failed, sync will reconcile")
	}

	e.publishOrderEvent(order, string(filledStatus), ack.OrderID, "", "")
	alog.Info().
		Str("exchange_order_id", ack.OrderID).
		Float64("notional_usd", sized.NotionalUsd).
		Str("market", string(market)).
		Msg("Order filled")

	return AccountOutcome{AccountID: acct.ID, Status: filledStatus, OrderID: order.ID.String()}
}

// recordFailure writes a FAILED order row for a pre-submission failure so
// the attempt is visible and idempotency holds on retry
func (e *Executor) recordFailure(ctx context.Context, sig *db.SignalRow, acct *accounts.Account, groupID uuid.UUID, kind exchange.ErrorKind, reason string) AccountOutcome {
	orderSide := db.OrderSideBuy
	if sig.Direction == "SHORT" {
		orderSide = db.OrderSideSell
	}

	kindStr := string(kind)
	order := &db.Order{
		ID:           uuid.New(),
		GroupID:      groupID,
		SignalID:     sig.ID,
		AccountID:    acct.ID,
		Symbol:       sig.Symbol,
		Side:         orderSide,
		EntryPrice:   sig.Entry,
		Leverage:     acct.Leverage,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TP1,
		MarketType:   db.MarketType(e.chooseMarket(acct, sig, 0)),
		Status:       db.OrderStatusFailed,
		ErrorKind:    &kindStr,
		ErrorMessage: &reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.InsertOrder(ctx, order); err != nil {
		e.logger.Error().Err(err).Str("account_id", acct.ID).Msg("Failed to persist failed order")
	}

	metrics.OrdersTotal.WithLabelValues(string(db.OrderStatusFailed)).Inc()
	metrics.OrderErrors.WithLabelValues(kindStr).Inc()

	e.publishOrderEvent(order, string(db.OrderStatusFailed), "", kindStr, reason)
	e.logger.Warn().
		Str("account_id", acct.ID).
		Str("error_kind", kindStr).
		Str("reason", reason).
		Msg("Account execution failed")

	return AccountOutcome{AccountID: acct.ID, Status: db.OrderStatusFailed, OrderID: order.ID.String(), ErrorKind: kindStr}
}

// chooseMarket routes accounts with marketType both to SPOT only for
// high-confidence, low-volatility, slow-timeframe signals
func (e *Executor) chooseMarket(acct *accounts.Account, sig *db.SignalRow, volatility float64) exchange.Market {
	switch acct.MarketType {
	case accounts.MarketSpot:
		return exchange.MarketSpot
	case accounts.MarketFutures:
		return exchange.MarketFutures
	}

	if sig.Score >= e.cfg.SpotMinScore &&
		volatility <= e.cfg.SpotMaxVolatility &&
		(sig.Timeframe == "4h" || sig.Timeframe == "1d") {
		return exchange.MarketSpot
	}
	return exchange.MarketFutures
}

// mapKind distinguishes the shared fan-out deadline from per-call network
// timeouts
func (e *Executor) mapKind(execCtx context.Context, err error) exchange.ErrorKind {
	kind := exchange.KindOf(err)
	if kind == exchange.KindNetworkTimeout && execCtx.Err() != nil {
		return exchange.KindTimeout
	}
	return kind
}

// winStats computes the Kelly inputs from the symbol's recent closed trades
func (e *Executor) winStats(ctx context.Context, symbol string) risk.WinStats {
	orders, err := e.store.FilledOrdersForSymbolSince(ctx, symbol, time.Now().UTC().Add(-e.cfg.WinRateLookback))
	if err != nil || len(orders) == 0 {
		return risk.WinStats{}
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, o := range orders {
		if o.Pnl == nil {
			continue
		}
		if *o.Pnl > 0 {
			wins++
			winSum += *o.Pnl
		} else if *o.Pnl < 0 {
			losses++
			lossSum += -*o.Pnl
		}
	}

	total := wins + losses
	if total == 0 {
		return risk.WinStats{}
	}

	stats := risk.WinStats{
		WinRate: float64(wins) / float64(total),
		Samples: total,
	}
	if wins > 0 && losses > 0 && lossSum > 0 {
		stats.AvgWinLossRatio = (winSum / float64(wins)) / (lossSum / float64(losses))
	}
	return stats
}

func (e *Executor) publishOrderEvent(order *db.Order, status, exchangeOrderID, errorKind, errorMsg string) {
	if e.notify == nil {
		return
	}
	e.notify.PublishOrderEvent(&notifier.OrderEvent{
		GroupID:      order.GroupID.String(),
		AccountID:    order.AccountID,
		Symbol:       order.Symbol,
		Side:         string(order.Side),
		Status:       status,
		OrderID:      exchangeOrderID,
		ErrorKind:    errorKind,
		ErrorMessage: errorMsg,
		NotionalUsd:  order.NotionalUsd,
		Timestamp:    time.Now().UTC(),
	})
}

func startOfDayUTC(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
