package executor

import (
	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

// rowToSignal rebuilds the domain signal from its persisted row for the
// sizing path
func rowToSignal(row *db.SignalRow) *signal.Signal {
	return &signal.Signal{
		Symbol:    row.Symbol,
		Timeframe: row.Timeframe,
		Direction: signal.Direction(row.Direction),
		Score:     row.Score,
		Levels: signal.Levels{
			Entry:      row.Entry,
			StopLoss:   row.StopLoss,
			TakeProfit: row.TP1,
			TP2:        row.TP2,
			TP3:        row.TP3,
		},
		Snapshot:  signal.Snapshot(row.Snapshot),
		CreatedAt: row.CreatedAt,
	}
}
