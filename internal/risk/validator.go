// Package risk implements cycle-level signal validation and per-account
// position sizing.
package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

// RejectKind classifies cycle-level rejections
type RejectKind string

const (
	RejectMalformedSignal    RejectKind = "MalformedSignal"
	RejectPortfolioFull      RejectKind = "PortfolioFull"
	RejectDailyLossTripped   RejectKind = "DailyLossTripped"
	RejectVolatilityTooHigh  RejectKind = "VolatilityTooHigh"
	RejectCorrelationTooHigh RejectKind = "CorrelationTooHigh"
	RejectIlliquidSymbol     RejectKind = "IlliquidSymbol"
)

// Decision is the outcome of cycle validation
type Decision struct {
	Accepted bool
	Kind     RejectKind
	Reason   string
}

func accept() Decision {
	return Decision{Accepted: true}
}

func reject(kind RejectKind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// PortfolioSnapshot is the portfolio state the validator checks a signal
// against. Assembled by the scheduler at the top of each cycle.
type PortfolioSnapshot struct {
	OpenPositions     []*db.Position
	OpenCount         int
	DailyLossFraction float64 // realized loss today as a fraction of equity
	Volatility24h     float64 // of the signal's symbol
	QuoteVolume24h    float64 // of the signal's symbol
}

// ValidatorConfig tunes the cycle-level checks
type ValidatorConfig struct {
	MaxConcurrentPositions int
	MaxDailyLossGlobal     float64
	MaxVolatility          float64
	MinVolume24h           float64
	QualityOverrideScore   float64 // score at which correlation is bypassed
}

// DefaultValidatorConfig returns the production thresholds
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxConcurrentPositions: 5,
		MaxDailyLossGlobal:     0.05,
		MaxVolatility:          0.15,
		MinVolume24h:           1e6,
		QualityOverrideScore:   0.90,
	}
}

// Validator runs the ordered go/no-go checks for a selected signal
type Validator struct {
	cfg    ValidatorConfig
	logger zerolog.Logger
}

// NewValidator creates a cycle validator
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxConcurrentPositions == 0 {
		cfg = DefaultValidatorConfig()
	}
	return &Validator{
		cfg:    cfg,
		logger: log.With().Str("component", "risk_validator").Logger(),
	}
}

// ValidateCycle decides go/no-go for the cycle. Checks run in a fixed
// order and the first failure wins.
func (v *Validator) ValidateCycle(sig *signal.Signal, snapshot *PortfolioSnapshot, now time.Time) Decision {
	// 1. Structural validity
	if err := sig.Validate(); err != nil {
		return reject(RejectMalformedSignal, err.Error())
	}

	// 2. Portfolio capacity
	if snapshot.OpenCount >= v.cfg.MaxConcurrentPositions {
		return reject(RejectPortfolioFull,
			fmt.Sprintf("%d open positions, cap %d", snapshot.OpenCount, v.cfg.MaxConcurrentPositions))
	}

	// 3. Daily loss circuit breaker
	if snapshot.DailyLossFraction >= v.cfg.MaxDailyLossGlobal {
		return reject(RejectDailyLossTripped,
			fmt.Sprintf("daily loss %.4f at or above limit %.4f", snapshot.DailyLossFraction, v.cfg.MaxDailyLossGlobal))
	}

	// 4. Volatility ceiling
	if snapshot.Volatility24h > v.cfg.MaxVolatility {
		return reject(RejectVolatilityTooHigh,
			fmt.Sprintf("24h volatility %.4f above limit %.4f", snapshot.Volatility24h, v.cfg.MaxVolatility))
	}

	// 5. Correlation: a fresh losing position on the same symbol and side
	// blocks re-entry, unless the signal quality clears the override bar
	if d := v.checkCorrelation(sig, snapshot, now); !d.Accepted {
		return d
	}

	// 6. Liquidity floor
	if snapshot.QuoteVolume24h < v.cfg.MinVolume24h {
		return reject(RejectIlliquidSymbol,
			fmt.Sprintf("24h volume %.0f below floor %.0f", snapshot.QuoteVolume24h, v.cfg.MinVolume24h))
	}

	return accept()
}

func (v *Validator) checkCorrelation(sig *signal.Signal, snapshot *PortfolioSnapshot, now time.Time) Decision {
	wantSide := db.OrderSideBuy
	if sig.Direction == signal.DirectionShort {
		wantSide = db.OrderSideSell
	}

	for _, p := range snapshot.OpenPositions {
		if p.Symbol != sig.Symbol || p.Side != wantSide {
			continue
		}
		if now.Sub(p.OpenedAt) >= 4*time.Hour {
			continue
		}
		if p.UnrealizedPnl > 0 {
			continue
		}

		if sig.Score >= v.cfg.QualityOverrideScore {
			v.logger.Info().
				Str("symbol", sig.Symbol).
				Float64("score", sig.Score).
				Msg("Correlation check bypassed: quality override")
			return accept()
		}

		return reject(RejectCorrelationTooHigh,
			fmt.Sprintf("losing %s position on %s opened %s ago",
				p.Side, p.Symbol, now.Sub(p.OpenedAt).Round(time.Minute)))
	}

	return accept()
}
