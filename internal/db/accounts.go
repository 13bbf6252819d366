package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// AccountRow is a store-configured execution account. Credentials are an
// opaque encrypted blob; the accounts package resolves them to exchange
// clients through the decryptor.
type AccountRow struct {
	ID                   string
	Name                 string
	EncryptedCredentials string
	MarketType           string // spot | futures | both
	Testnet              bool
	MaxPositionSizeUsd   float64
	Leverage             int
	MaxDailyTrades       int
	MaxRiskPerTrade      float64
	MaxDailyLoss         float64
	StopOnDailyLoss      bool
	SizingMode           string // FIXED | PERCENT_BALANCE | KELLY
	SizingValue          float64
	AutoTradeEnabled     bool
	IsActive             bool
	IsVerified           bool
	CurrentBalance       float64
	TotalPnl             float64
	LastVerifiedAt       *time.Time
	CreatedAt            time.Time
}

// ListAccounts returns all configured accounts
func (db *DB) ListAccounts(ctx context.Context) ([]*AccountRow, error) {
	query := `
		SELECT id, name, encrypted_credentials, market_type, testnet,
		       max_position_size_usd, leverage, max_daily_trades,
		       max_risk_per_trade, max_daily_loss, stop_on_daily_loss,
		       sizing_mode, sizing_value, auto_trade_enabled,
		       is_active, is_verified, current_balance, total_pnl,
		       last_verified_at, created_at
		FROM accounts
		ORDER BY created_at ASC
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*AccountRow
	for rows.Next() {
		var a AccountRow
		if err := rows.Scan(
			&a.ID, &a.Name, &a.EncryptedCredentials, &a.MarketType, &a.Testnet,
			&a.MaxPositionSizeUsd, &a.Leverage, &a.MaxDailyTrades,
			&a.MaxRiskPerTrade, &a.MaxDailyLoss, &a.StopOnDailyLoss,
			&a.SizingMode, &a.SizingValue, &a.AutoTradeEnabled,
			&a.IsActive, &a.IsVerified, &a.CurrentBalance, &a.TotalPnl,
			&a.LastVerifiedAt, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateAccountState refreshes the balance and cumulative PnL snapshot for
// an account after a successful balance fetch
func (db *DB) UpdateAccountState(ctx context.Context, accountID string, balance, totalPnl float64, verifiedAt time.Time) error {
	query := `
		UPDATE accounts
		SET current_balance = $1, total_pnl = $2, last_verified_at = $3
		WHERE id = $4
	`

	result, err := db.pool.Exec(ctx, query, balance, totalPnl, verifiedAt, accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to update account state")
		return fmt.Errorf("failed to update account state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", accountID)
	}

	return nil
}
