package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertPosition(t *testing.T) {
	database, mock := newMockDB(t)

	now := time.Now().UTC()
	p := &Position{
		ID:         uuid.New(),
		AccountID:  "acct-1",
		Symbol:     "BTCUSDT",
		Side:       OrderSideBuy,
		EntryPrice: 42000,
		Quantity:   0.5,
		MarkPrice:  42000,
		OpenedAt:   now,
	}

	mock.ExpectExec("INSERT INTO positions").
		WithArgs(p.ID, p.AccountID, p.Symbol, p.Side,
			p.EntryPrice, p.Quantity, p.MarkPrice, 0.0, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, database.UpsertPosition(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePositionMark(t *testing.T) {
	database, mock := newMockDB(t)

	posID := uuid.New()
	mock.ExpectExec("UPDATE positions").
		WithArgs(42500.0, 250.0, posID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, database.UpdatePositionMark(context.Background(), posID, 42500, 250))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePosition(t *testing.T) {
	database, mock := newMockDB(t)

	posID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE positions").
		WithArgs(now, posID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, database.ClosePosition(context.Background(), posID, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePositionAlreadyClosed(t *testing.T) {
	database, mock := newMockDB(t)

	posID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE positions").
		WithArgs(now, posID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := database.ClosePosition(context.Background(), posID, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpenPositionSymbols(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery("SELECT DISTINCT symbol").
		WillReturnRows(pgxmock.NewRows([]string{"symbol"}).
			AddRow("BTCUSDT").
			AddRow("ETHUSDT"))

	symbols, err := database.OpenPositionSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"BTCUSDT": true, "ETHUSDT": true}, symbols)
}

func TestCountOpenPositions(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM positions`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := database.CountOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestOpenPositionsForAccount(t *testing.T) {
	database, mock := newMockDB(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, account_id, symbol").
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "symbol", "side", "entry_price", "quantity",
			"mark_price", "unrealized_pnl", "is_open", "opened_at", "closed_at",
		}).AddRow(
			uuid.New(), "acct-1", "BTCUSDT", OrderSideBuy, 42000.0, 0.5,
			42500.0, 250.0, true, now, (*time.Time)(nil),
		))

	positions, err := database.OpenPositionsForAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, 250.0, positions[0].UnrealizedPnl)
	assert.True(t, positions[0].IsOpen)
}
