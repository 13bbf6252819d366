package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Position is the open-exposure view derived from orders and exchange sync.
// The exchange is authoritative; local updates are optimistic until the
// next sync overwrites them.
type Position struct {
	ID            uuid.UUID
	AccountID     string
	Symbol        string
	Side          OrderSide
	EntryPrice    float64
	Quantity      float64
	MarkPrice     float64
	UnrealizedPnl float64
	IsOpen        bool
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// UpsertPosition inserts or refreshes the open position for an
// (account, symbol, side) triple
func (db *DB) UpsertPosition(ctx context.Context, p *Position) error {
	query := `
		INSERT INTO positions (
			id, account_id, symbol, side, entry_price, quantity,
			mark_price, unrealized_pnl, is_open, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
		ON CONFLICT (account_id, symbol, side) WHERE is_open
		DO UPDATE SET
			entry_price = EXCLUDED.entry_price,
			quantity = EXCLUDED.quantity,
			mark_price = EXCLUDED.mark_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl
	`

	_, err := db.pool.Exec(ctx, query,
		p.ID, p.AccountID, p.Symbol, p.Side,
		p.EntryPrice, p.Quantity, p.MarkPrice, p.UnrealizedPnl, p.OpenedAt,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("account_id", p.AccountID).
			Str("symbol", p.Symbol).
			Msg("Failed to upsert position")
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	return nil
}

// UpdatePositionMark refreshes the mark price and unrealized PnL of an
// open position
func (db *DB) UpdatePositionMark(ctx context.Context, positionID uuid.UUID, markPrice, unrealizedPnl float64) error {
	query := `
		UPDATE positions
		SET mark_price = $1, unrealized_pnl = $2
		WHERE id = $3 AND is_open
	`

	_, err := db.pool.Exec(ctx, query, markPrice, unrealizedPnl, positionID)
	if err != nil {
		return fmt.Errorf("failed to update position mark: %w", err)
	}
	return nil
}

// ClosePosition marks a position closed
func (db *DB) ClosePosition(ctx context.Context, positionID uuid.UUID, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET is_open = FALSE, closed_at = $1, unrealized_pnl = 0
		WHERE id = $2 AND is_open
	`

	result, err := db.pool.Exec(ctx, query, closedAt, positionID)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("open position not found: %s", positionID)
	}

	log.Info().Str("position_id", positionID.String()).Msg("Position closed")
	return nil
}

// OpenPositions returns all open positions across accounts
func (db *DB) OpenPositions(ctx context.Context) ([]*Position, error) {
	query := selectPositionColumns + `
		WHERE is_open
		ORDER BY opened_at ASC
	`
	return db.queryPositions(ctx, query)
}

// OpenPositionsForAccount returns open positions for one account
func (db *DB) OpenPositionsForAccount(ctx context.Context, accountID string) ([]*Position, error) {
	query := selectPositionColumns + `
		WHERE is_open AND account_id = $1
		ORDER BY opened_at ASC
	`
	return db.queryPositions(ctx, query, accountID)
}

// OpenPositionSymbols returns the distinct symbols with an open position.
// The selector excludes these from the candidate pool.
func (db *DB) OpenPositionSymbols(ctx context.Context) (map[string]bool, error) {
	query := `
		SELECT DISTINCT symbol FROM positions WHERE is_open
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open symbols: %w", err)
	}
	defer rows.Close()

	symbols := make(map[string]bool)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols[symbol] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// CountOpenPositions returns the number of open positions across accounts
func (db *DB) CountOpenPositions(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM positions WHERE is_open
	`

	var count int
	if err := db.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count, nil
}

const selectPositionColumns = `
	SELECT id, account_id, symbol, side, entry_price, quantity,
	       mark_price, unrealized_pnl, is_open, opened_at, closed_at
	FROM positions
`

func (db *DB) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*Position, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Symbol, &p.Side, &p.EntryPrice,
			&p.Quantity, &p.MarkPrice, &p.UnrealizedPnl, &p.IsOpen,
			&p.OpenedAt, &p.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}
