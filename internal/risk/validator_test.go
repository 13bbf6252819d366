package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

func validLongSignal(score float64) *signal.Signal {
	return &signal.Signal{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Direction: signal.DirectionLong,
		Score:     score,
		Levels: signal.Levels{
			Entry:      42000,
			StopLoss:   41100,
			TakeProfit: 44100,
			TP2:        46200,
			TP3:        48300,
		},
	}
}

func healthySnapshot() *PortfolioSnapshot {
	return &PortfolioSnapshot{
		OpenCount:         1,
		DailyLossFraction: 0.01,
		Volatility24h:     0.05,
		QuoteVolume24h:    5e6,
	}
}

func TestValidateCycleAccepts(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	d := v.ValidateCycle(validLongSignal(0.72), healthySnapshot(), time.Now().UTC())
	assert.True(t, d.Accepted)
	assert.Empty(t, d.Kind)
}

func TestValidateCycleRejections(t *testing.T) {
	now := time.Now().UTC()
	v := NewValidator(DefaultValidatorConfig())

	losingPosition := &db.Position{
		Symbol:        "BTCUSDT",
		Side:          db.OrderSideBuy,
		UnrealizedPnl: -12.5,
		OpenedAt:      now.Add(-time.Hour),
		IsOpen:        true,
	}

	tests := []struct {
		name     string
		signal   *signal.Signal
		snapshot func() *PortfolioSnapshot
		want     RejectKind
	}{
		{
			name: "malformed signal",
			signal: &signal.Signal{
				Direction: signal.DirectionLong,
				Score:     0.7,
				Levels:    signal.Levels{Entry: 100, StopLoss: 105, TakeProfit: 110, TP2: 115, TP3: 120},
			},
			snapshot: healthySnapshot,
			want:     RejectMalformedSignal,
		},
		{
			name:   "portfolio full",
			signal: validLongSignal(0.72),
			snapshot: func() *PortfolioSnapshot {
				s := healthySnapshot()
				s.OpenCount = 5
				return s
			},
			want: RejectPortfolioFull,
		},
		{
			name:   "daily loss tripped",
			signal: validLongSignal(0.72),
			snapshot: func() *PortfolioSnapshot {
				s := healthySnapshot()
				s.DailyLossFraction = 0.05
				return s
			},
			want: RejectDailyLossTripped,
		},
		{
			name:   "volatility too high",
			signal: validLongSignal(0.72),
			snapshot: func() *PortfolioSnapshot {
				s := healthySnapshot()
				s.Volatility24h = 0.22
				return s
			},
			want: RejectVolatilityTooHigh,
		},
		{
			name:   "correlation with fresh losing position",
			signal: validLongSignal(0.72),
			snapshot: func() *PortfolioSnapshot {
				s := healthySnapshot()
				s.OpenPositions = []*db.Position{losingPosition}
				return s
			},
			want: RejectCorrelationTooHigh,
		},
		{
			name:   "illiquid symbol",
			signal: validLongSignal(0.72),
			snapshot: func() *PortfolioSnapshot {
				s := healthySnapshot()
				s.QuoteVolume24h = 5e5
				return s
			},
			want: RejectIlliquidSymbol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := v.ValidateCycle(tt.signal, tt.snapshot(), now)
			assert.False(t, d.Accepted)
			assert.Equal(t, tt.want, d.Kind)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestValidateCycleFirstFailureWins(t *testing.T) {
	now := time.Now().UTC()
	v := NewValidator(DefaultValidatorConfig())

	// Both the portfolio cap and the daily loss limit are breached; the
	// earlier check must name the rejection
	snapshot := healthySnapshot()
	snapshot.OpenCount = 7
	snapshot.DailyLossFraction = 0.09

	d := v.ValidateCycle(validLongSignal(0.72), snapshot, now)
	assert.Equal(t, RejectPortfolioFull, d.Kind)
}

func TestCorrelationCheck(t *testing.T) {
	now := time.Now().UTC()
	v := NewValidator(DefaultValidatorConfig())

	position := func(side db.OrderSide, age time.Duration, upnl float64) *db.Position {
		return &db.Position{
			Symbol:        "BTCUSDT",
			Side:          side,
			UnrealizedPnl: upnl,
			OpenedAt:      now.Add(-age),
			IsOpen:        true,
		}
	}

	tests := []struct {
		name     string
		score    float64
		position *db.Position
		accepted bool
	}{
		{
			name:     "fresh losing same-side position blocks",
			score:    0.72,
			position: position(db.OrderSideBuy, time.Hour, -10),
			accepted: false,
		},
		{
			name:     "quality override bypasses the block",
			score:    0.92,
			position: position(db.OrderSideBuy, time.Hour, -10),
			accepted: true,
		},
		{
			name:     "profitable position does not block",
			score:    0.72,
			position: position(db.OrderSideBuy, time.Hour, 25),
			accepted: true,
		},
		{
			name:     "stale position does not block",
			score:    0.72,
			position: position(db.OrderSideBuy, 5*time.Hour, -10),
			accepted: true,
		},
		{
			name:     "opposite side does not block",
			score:    0.72,
			position: position(db.OrderSideSell, time.Hour, -10),
			accepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := healthySnapshot()
			snapshot.OpenPositions = []*db.Position{tt.position}

			d := v.ValidateCycle(validLongSignal(tt.score), snapshot, now)
			assert.Equal(t, tt.accepted, d.Accepted, "reason: %s", d.Reason)
			if !tt.accepted {
				assert.Equal(t, RejectCorrelationTooHigh, d.Kind)
			}
		})
	}
}

func TestCorrelationIgnoresOtherSymbols(t *testing.T) {
	now := time.Now().UTC()
	v := NewValidator(DefaultValidatorConfig())

	snapshot := healthySnapshot()
	snapshot.OpenPositions = []*db.Position{
		{Symbol: "ETHUSDT", Side: db.OrderSideBuy, UnrealizedPnl: -50, OpenedAt: now.Add(-time.Hour), IsOpen: true},
	}

	d := v.ValidateCycle(validLongSignal(0.72), snapshot, now)
	assert.True(t, d.Accepted)
}
