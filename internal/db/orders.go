package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OrderSide represents buy or sell (database enum)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents order status (database enum)
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusFilled  OrderStatus = "FILLED"
	OrderStatusFailed  OrderStatus = "FAILED"
	OrderStatusPartial OrderStatus = "PARTIAL"
)

// MarketType represents the venue an order routes to (database enum)
type MarketType string

const (
	MarketTypeSpot    MarketType = "SPOT"
	MarketTypeFutures MarketType = "FUTURES"
)

// Order represents a per-account execution record for one signal. Orders
// from the same signal execution share a GroupID.
type Order struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	SignalID        int64
	AccountID       string
	Symbol          string
	Side            OrderSide
	Quantity        float64
	EntryPrice      float64
	Leverage        int
	NotionalUsd     float64
	StopLoss        float64
	TakeProfit      float64
	MarketType      MarketType
	Status          OrderStatus
	ExchangeOrderID *string
	ErrorKind       *string
	ErrorMessage    *string
	Pnl             *float64
	CreatedAt       time.Time
	ClosedAt        *time.Time
}

// InsertOrder inserts a new order record
func (db *DB) InsertOrder(ctx context.Context, order *Order) error {
	query := `
		INSERT INTO orders (
			id, group_id, signal_id, account_id, symbol, side, quantity,
			entry_price, leverage, notional_usd, stop_loss, take_profit,
			market_type, status, exchange_order_id, error_kind, error_message,
			pnl, created_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`

	_, err := db.pool.Exec(ctx, query,
		order.ID,
		order.GroupID,
		order.SignalID,
		order.AccountID,
		order.Symbol,
		order.Side,
		order.Quantity,
		order.EntryPrice,
		order.Leverage,
		order.NotionalUsd,
		order.StopLoss,
		order.TakeProfit,
		order.MarketType,
		order.Status,
		order.ExchangeOrderID,
		order.ErrorKind,
		order.ErrorMessage,
		order.Pnl,
		order.CreatedAt,
		order.ClosedAt,
	)

	if err != nil {
		log.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Str("account_id", order.AccountID).
			Str("symbol", order.Symbol).
			Msg("Failed to insert order")
		return fmt.Errorf("failed to insert order: %w", err)
	}

	log.Debug().
		Str("order_id", order.ID.String()).
		Str("group_id", order.GroupID.String()).
		Str("account_id", order.AccountID).
		Str("status", string(order.Status)).
		Msg("Order inserted into database")

	return nil
}

// UpdateOrderStatus advances an order's status. FILLED requires an exchange
// order id; FAILED requires an error kind.
func (db *DB) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, exchangeOrderID, errorKind, errorMsg *string) error {
	if status == OrderStatusFilled && exchangeOrderID == nil {
		return fmt.Errorf("FILLED order %s requires an exchange order id", orderID)
	}
	if status == OrderStatusFailed && errorKind == nil {
		return fmt.Errorf("FAILED order %s requires an error kind", orderID)
	}

	query := `
		UPDATE orders
		SET status = $1,
		    exchange_order_id = COALESCE($2, exchange_order_id),
		    error_kind = $3,
		    error_message = $4
		WHERE id = $5
	`

	result, err := db.pool.Exec(ctx, query, status, exchangeOrderID, errorKind, errorMsg, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}

	log.Debug().
		Str("order_id", orderID.String()).
		Str("status", string(status)).
		Msg("Order status updated")

	return nil
}

// UpdateOrderPnl records realized PnL and the close time for an order
func (db *DB) UpdateOrderPnl(ctx context.Context, orderID uuid.UUID, pnl float64, closedAt time.Time) error {
	query := `
		UPDATE orders
		SET pnl = $1, closed_at = $2
		WHERE id = $3
	`

	result, err := db.pool.Exec(ctx, query, pnl, closedAt, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order pnl: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}

	return nil
}

// HasOrderForGroup reports whether an order already exists for the
// (groupID, accountID) pair. This is the idempotency check the executor
// runs before submitting.
func (db *DB) HasOrderForGroup(ctx context.Context, groupID uuid.UUID, accountID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM orders WHERE group_id = $1 AND account_id = $2
		)
	`

	var exists bool
	if err := db.pool.QueryRow(ctx, query, groupID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check order group: %w", err)
	}
	return exists, nil
}

// OrdersByGroup retrieves all orders sharing a group id
func (db *DB) OrdersByGroup(ctx context.Context, groupID uuid.UUID) ([]*Order, error) {
	query := selectOrderColumns + `
		WHERE group_id = $1
		ORDER BY created_at ASC
	`
	return db.queryOrders(ctx, query, groupID)
}

// RecentOrders retrieves recent orders, newest first
func (db *DB) RecentOrders(ctx context.Context, limit int) ([]*Order, error) {
	query := selectOrderColumns + `
		ORDER BY created_at DESC
		LIMIT $1
	`
	return db.queryOrders(ctx, query, limit)
}

// FilledOrdersForSymbolSince retrieves filled orders on a symbol with
// recorded PnL since the cutoff. Feeds the selector's win-rate lookup.
func (db *DB) FilledOrdersForSymbolSince(ctx context.Context, symbol string, since time.Time) ([]*Order, error) {
	query := selectOrderColumns + `
		WHERE symbol = $1
			AND status = 'FILLED'
			AND pnl IS NOT NULL
			AND created_at >= $2
		ORDER BY created_at DESC
	`
	return db.queryOrders(ctx, query, symbol, since)
}

// FilledOrdersAwaitingPnl retrieves filled orders on an account and symbol
// that have no realized PnL recorded yet, newest first. The position
// monitor writes close results back to these.
func (db *DB) FilledOrdersAwaitingPnl(ctx context.Context, accountID, symbol string) ([]*Order, error) {
	query := selectOrderColumns + `
		WHERE account_id = $1
			AND symbol = $2
			AND status = 'FILLED'
			AND pnl IS NULL
		ORDER BY created_at DESC
	`
	return db.queryOrders(ctx, query, accountID, symbol)
}

// CountOrdersForAccountSince counts non-failed orders for an account since
// the cutoff. Feeds the per-account daily trade cap.
func (db *DB) CountOrdersForAccountSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE account_id = $1 AND status != 'FAILED' AND created_at >= $2
	`

	var count int
	if err := db.pool.QueryRow(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count account orders: %w", err)
	}
	return count, nil
}

// RealizedPnlForAccountSince sums recorded order PnL for an account since
// the cutoff. Feeds the daily-loss circuit breaker.
func (db *DB) RealizedPnlForAccountSince(ctx context.Context, accountID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM orders
		WHERE account_id = $1 AND pnl IS NOT NULL AND closed_at >= $2
	`

	var pnl float64
	if err := db.pool.QueryRow(ctx, query, accountID, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("failed to sum account pnl: %w", err)
	}
	return pnl, nil
}

// RealizedPnlSince sums recorded order PnL across all accounts since the
// cutoff. Feeds the global daily-loss check.
func (db *DB) RealizedPnlSince(ctx context.Context, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM orders
		WHERE pnl IS NOT NULL AND closed_at >= $1
	`

	var pnl float64
	if err := db.pool.QueryRow(ctx, query, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return pnl, nil
}

const selectOrderColumns = `
	SELECT id, group_id, signal_id, account_id, symbol, side, quantity,
	       entry_price, leverage, notional_usd, stop_loss, take_profit,
	       market_type, status, exchange_order_id, error_kind, error_message,
	       pnl, created_at, closed_at
	FROM orders
`

func (db *DB) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*Order, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.GroupID, &o.SignalID, &o.AccountID, &o.Symbol, &o.Side,
			&o.Quantity, &o.EntryPrice, &o.Leverage, &o.NotionalUsd,
			&o.StopLoss, &o.TakeProfit, &o.MarketType, &o.Status,
			&o.ExchangeOrderID, &o.ErrorKind, &o.ErrorMessage, &o.Pnl,
			&o.CreatedAt, &o.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
