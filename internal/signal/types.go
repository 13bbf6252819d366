// Package signal implements the signal generator: multi-indicator analysis
// that produces scored, directional trading signals with entry, stop and
// target levels.
package signal

import (
	"errors"
	"fmt"
	"time"
)

// Direction is the trade direction of a signal
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Analysis failure kinds. All yield "no signal"; the scheduler logs an
// observation and moves on.
var (
	ErrInsufficientData = errors.New("insufficient bars for analysis")
	ErrMalformedBars    = errors.New("malformed bar series")
	ErrDataAnomaly      = errors.New("price gap anomaly detected")
)

// Confluence records which analyzers agree with the dominant direction
type Confluence struct {
	Trend       bool `json:"trend"`
	SmoothTrail bool `json:"smooth_trail"`
	Liquidity   bool `json:"liquidity"`
	SmartMoney  bool `json:"smart_money"`
	Volume      bool `json:"volume"`
}

// Count returns the number of set confluence flags
func (c Confluence) Count() int {
	n := 0
	for _, b := range []bool{c.Trend, c.SmoothTrail, c.Liquidity, c.SmartMoney, c.Volume} {
		if b {
			n++
		}
	}
	return n
}

// Levels holds the price levels of a signal. For LONG signals
// stopLoss < entry <= tp1 < tp2 < tp3; SHORT reverses all inequalities.
type Levels struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"` // == TP1, the primary target
	TP2        float64 `json:"tp2"`
	TP3        float64 `json:"tp3"`
}

// Snapshot is the indicator state at signal creation, stored opaquely on
// the signal for later inspection
type Snapshot map[string]float64

// Signal is the output of one analysis run
type Signal struct {
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Direction  Direction  `json:"direction"`
	Score      float64    `json:"score"` // confidence in [0,1]
	Levels     Levels     `json:"levels"`
	Confluence Confluence `json:"confluence"`
	Snapshot   Snapshot   `json:"snapshot"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate checks the level ordering invariant for the signal direction
func (s *Signal) Validate() error {
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return fmt.Errorf("invalid direction: %s", s.Direction)
	}
	if s.Score < 0 || s.Score > 1 {
		return fmt.Errorf("score %f out of [0,1]", s.Score)
	}

	l := s.Levels
	if s.Direction == DirectionLong {
		if !(l.StopLoss < l.Entry && l.Entry <= l.TakeProfit && l.TakeProfit < l.TP2 && l.TP2 < l.TP3) {
			return fmt.Errorf("long levels out of order: sl=%f entry=%f tp1=%f tp2=%f tp3=%f",
				l.StopLoss, l.Entry, l.TakeProfit, l.TP2, l.TP3)
		}
	} else {
		if !(l.StopLoss > l.Entry && l.Entry >= l.TakeProfit && l.TakeProfit > l.TP2 && l.TP2 > l.TP3) {
			return fmt.Errorf("short levels out of order: sl=%f entry=%f tp1=%f tp2=%f tp3=%f",
				l.StopLoss, l.Entry, l.TakeProfit, l.TP2, l.TP3)
		}
	}

	return nil
}

// RiskReward returns (tp1-entry)/(entry-stopLoss) for LONG, mirrored for
// SHORT. Zero when the stop distance is zero.
func (s *Signal) RiskReward() float64 {
	var reward, risk float64
	if s.Direction == DirectionLong {
		reward = s.Levels.TakeProfit - s.Levels.Entry
		risk = s.Levels.Entry - s.Levels.StopLoss
	} else {
		reward = s.Levels.Entry - s.Levels.TakeProfit
		risk = s.Levels.StopLoss - s.Levels.Entry
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}
