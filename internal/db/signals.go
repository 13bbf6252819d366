package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// SignalStatus represents the signal lifecycle (database enum)
type SignalStatus string

const (
	SignalStatusActive     SignalStatus = "active"
	SignalStatusConsumed   SignalStatus = "consumed"
	SignalStatusExpired    SignalStatus = "expired"
	SignalStatusSuperseded SignalStatus = "superseded"
)

// SignalRow represents a persisted signal. The score and levels are
// immutable after insert; only the status advances.
type SignalRow struct {
	ID         int64
	Symbol     string
	Timeframe  string
	Direction  string
	Score      float64
	Entry      float64
	StopLoss   float64
	TP1        float64
	TP2        float64
	TP3        float64
	Confluence map[string]bool
	Snapshot   map[string]float64
	Status     SignalStatus
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// InsertSignal persists a new signal and returns its server-assigned id
func (db *DB) InsertSignal(ctx context.Context, sig *SignalRow) (int64, error) {
	query := `
		INSERT INTO signals (
			symbol, timeframe, direction, score, entry, stop_loss,
			tp1, tp2, tp3, confluence, snapshot, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING id
	`

	var id int64
	err := db.pool.QueryRow(ctx, query,
		sig.Symbol,
		sig.Timeframe,
		sig.Direction,
		sig.Score,
		sig.Entry,
		sig.StopLoss,
		sig.TP1,
		sig.TP2,
		sig.TP3,
		sig.Confluence,
		sig.Snapshot,
		SignalStatusActive,
		sig.CreatedAt,
	).Scan(&id)

	if err != nil {
		log.Error().
			Err(err).
			Str("symbol", sig.Symbol).
			Str("timeframe", sig.Timeframe).
			Msg("Failed to insert signal")
		return 0, fmt.Errorf("failed to insert signal: %w", err)
	}

	log.Debug().
		Int64("signal_id", id).
		Str("symbol", sig.Symbol).
		Float64("score", sig.Score).
		Msg("Signal inserted into database")

	return id, nil
}

// ConsumeSignal atomically transitions a signal from active to consumed.
// Returns false when the signal was not active anymore, which means a
// concurrent scheduler got there first.
func (db *DB) ConsumeSignal(ctx context.Context, signalID int64, now time.Time) (bool, error) {
	query := `
		UPDATE signals
		SET status = $1, consumed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := db.pool.Exec(ctx, query, SignalStatusConsumed, now, signalID, SignalStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to consume signal %d: %w", signalID, err)
	}

	consumed := result.RowsAffected() == 1
	if consumed {
		log.Info().Int64("signal_id", signalID).Msg("Signal consumed")
	}
	return consumed, nil
}

// ReleaseSignal returns a consumed signal to the active pool. Used when the
// risk manager rejects the cycle after selection.
func (db *DB) ReleaseSignal(ctx context.Context, signalID int64) error {
	query := `
		UPDATE signals
		SET status = $1, consumed_at = NULL
		WHERE id = $2 AND status = $3
	`

	_, err := db.pool.Exec(ctx, query, SignalStatusActive, signalID, SignalStatusConsumed)
	if err != nil {
		return fmt.Errorf("failed to release signal %d: %w", signalID, err)
	}
	return nil
}

// ListActiveSignals returns active signals created since the cutoff with
// score at or above minScore, newest first
func (db *DB) ListActiveSignals(ctx context.Context, since time.Time, minScore float64) ([]*SignalRow, error) {
	query := `
		SELECT id, symbol, timeframe, direction, score, entry, stop_loss,
		       tp1, tp2, tp3, confluence, snapshot, status, created_at, consumed_at
		FROM signals
		WHERE status = $1
			AND created_at >= $2
			AND score >= $3
		ORDER BY created_at DESC
	`

	rows, err := db.pool.Query(ctx, query, SignalStatusActive, since, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to query active signals: %w", err)
	}
	defer rows.Close()

	var signals []*SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &s.Direction, &s.Score,
			&s.Entry, &s.StopLoss, &s.TP1, &s.TP2, &s.TP3,
			&s.Confluence, &s.Snapshot, &s.Status, &s.CreatedAt, &s.ConsumedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

// SupersedeActiveSignals marks older active signals on the same symbol as
// superseded when a newer one lands
func (db *DB) SupersedeActiveSignals(ctx context.Context, symbol string, newSignalID int64) error {
	query := `
		UPDATE signals
		SET status = $1
		WHERE symbol = $2 AND status = $3 AND id < $4
	`

	result, err := db.pool.Exec(ctx, query, SignalStatusSuperseded, symbol, SignalStatusActive, newSignalID)
	if err != nil {
		return fmt.Errorf("failed to supersede signals for %s: %w", symbol, err)
	}

	if n := result.RowsAffected(); n > 0 {
		log.Debug().Str("symbol", symbol).Int64("count", n).Msg("Older signals superseded")
	}
	return nil
}

// ExpireStaleSignals marks active signals older than the cutoff as expired
// and returns the number affected
func (db *DB) ExpireStaleSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE signals
		SET status = $1
		WHERE status = $2 AND created_at < $3
	`

	result, err := db.pool.Exec(ctx, query, SignalStatusExpired, SignalStatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire signals: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountConsumedSince counts signals consumed at or after the cutoff. Used
// for the daily execution cap.
func (db *DB) CountConsumedSince(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM signals
		WHERE status = $1 AND consumed_at >= $2
	`

	var count int
	if err := db.pool.QueryRow(ctx, query, SignalStatusConsumed, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count consumed signals: %w", err)
	}
	return count, nil
}

// GetSignal retrieves a signal by id
func (db *DB) GetSignal(ctx context.Context, signalID int64) (*SignalRow, error) {
	query := `
		SELECT id, symbol, timeframe, direction, score, entry, stop_loss,
		       tp1, tp2, tp3, confluence, snapshot, status, created_at, consumed_at
		FROM signals
		WHERE id = $1
	`

	var s SignalRow
	err := db.pool.QueryRow(ctx, query, signalID).Scan(
		&s.ID, &s.Symbol, &s.Timeframe, &s.Direction, &s.Score,
		&s.Entry, &s.StopLoss, &s.TP1, &s.TP2, &s.TP3,
		&s.Confluence, &s.Snapshot, &s.Status, &s.CreatedAt, &s.ConsumedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get signal %d: %w", signalID, err)
	}

	return &s, nil
}

// RecentSignals returns the most recent signals regardless of status,
// newest first. Used by the status API.
func (db *DB) RecentSignals(ctx context.Context, limit int) ([]*SignalRow, error) {
	query := `
		SELECT id, symbol, timeframe, direction, score, entry, stop_loss,
		       tp1, tp2, tp3, confluence, snapshot, status, created_at, consumed_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent signals: %w", err)
	}
	defer rows.Close()

	var signals []*SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &s.Direction, &s.Score,
			&s.Entry, &s.StopLoss, &s.TP1, &s.TP2, &s.TP3,
			&s.Confluence, &s.Snapshot, &s.Status, &s.CreatedAt, &s.ConsumedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}
