package signal

import (
	"math"
	"testing"
)

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name      string
		signal    Signal
		wantError bool
	}{
		{
			name: "valid long ordering",
			signal: Signal{
				Direction: DirectionLong,
				Score:     0.72,
				Levels:    Levels{Entry: 100, StopLoss: 97, TakeProfit: 105, TP2: 110, TP3: 115},
			},
		},
		{
			name: "valid short ordering",
			signal: Signal{
				Direction: DirectionShort,
				Score:     0.68,
				Levels:    Levels{Entry: 100, StopLoss: 103, TakeProfit: 95, TP2: 90, TP3: 85},
			},
		},
		{
			name: "long entry equal to tp1 is allowed",
			signal: Signal{
				Direction: DirectionLong,
				Score:     0.7,
				Levels:    Levels{Entry: 100, StopLoss: 97, TakeProfit: 100, TP2: 110, TP3: 115},
			},
		},
		{
			name: "long stop above entry",
			signal: Signal{
				Direction: DirectionLong,
				Score:     0.7,
				Levels:    Levels{Entry: 100, StopLoss: 101, TakeProfit: 105, TP2: 110, TP3: 115},
			},
			wantError: true,
		},
		{
			name: "long targets out of order",
			signal: Signal{
				Direction: DirectionLong,
				Score:     0.7,
				Levels:    Levels{Entry: 100, StopLoss: 97, TakeProfit: 110, TP2: 105, TP3: 115},
			},
			wantError: true,
		},
		{
			name: "short stop below entry",
			signal: Signal{
				Direction: DirectionShort,
				Score:     0.7,
				Levels:    Levels{Entry: 100, StopLoss: 99, TakeProfit: 95, TP2: 90, TP3: 85},
			},
			wantError: true,
		},
		{
			name: "unknown direction",
			signal: Signal{
				Direction: "SIDEWAYS",
				Score:     0.7,
				Levels:    Levels{Entry: 100, StopLoss: 97, TakeProfit: 105, TP2: 110, TP3: 115},
			},
			wantError: true,
		},
		{
			name: "score above one",
			signal: Signal{
				Direction: DirectionLong,
				Score:     1.2,
				Levels:    Levels{Entry: 100, StopLoss: 97, TakeProfit: 105, TP2: 110, TP3: 115},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.signal.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestRiskReward(t *testing.T) {
	tests := []struct {
		name   string
		signal Signal
		want   float64
	}{
		{
			name: "long with 1:1",
			signal: Signal{
				Direction: DirectionLong,
				Levels:    Levels{Entry: 100, StopLoss: 95, TakeProfit: 105},
			},
			want: 1.0,
		},
		{
			name: "long with 2.5:1",
			signal: Signal{
				Direction: DirectionLong,
				Levels:    Levels{Entry: 100, StopLoss: 98, TakeProfit: 105},
			},
			want: 2.5,
		},
		{
			name: "short mirrors the long formula",
			signal: Signal{
				Direction: DirectionShort,
				Levels:    Levels{Entry: 100, StopLoss: 102, TakeProfit: 95},
			},
			want: 2.5,
		},
		{
			name: "zero stop distance",
			signal: Signal{
				Direction: DirectionLong,
				Levels:    Levels{Entry: 100, StopLoss: 100, TakeProfit: 105},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.signal.RiskReward()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RiskReward = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestConfluenceCount(t *testing.T) {
	if (Confluence{}).Count() != 0 {
		t.Error("Expected 0 for empty confluence")
	}
	c := Confluence{Trend: true, Liquidity: true, Volume: true}
	if c.Count() != 3 {
		t.Errorf("Expected 3, got %d", c.Count())
	}
	all := Confluence{Trend: true, SmoothTrail: true, Liquidity: true, SmartMoney: true, Volume: true}
	if all.Count() != 5 {
		t.Errorf("Expected 5, got %d", all.Count())
	}
}
