package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/accounts"
	"github.com/ajitpratap0/signalflow/internal/exchange"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

// kellyClip caps the raw Kelly fraction. Full Kelly overbets badly when
// the win-rate estimate is noisy.
const kellyClip = 0.25

// WinStats is the trade-history estimate feeding Kelly sizing
type WinStats struct {
	WinRate         float64
	AvgWinLossRatio float64
	Samples         int
}

// SizeResult is the outcome of per-account sizing. Skipped results carry a
// reason and produce no order submission.
type SizeResult struct {
	Quantity    float64
	NotionalUsd float64
	Skipped     bool
	Reason      string
}

func skipResult(reason string) SizeResult {
	return SizeResult{Skipped: true, Reason: reason}
}

// Sizer computes per-account position size at execute time
type Sizer struct {
	kellyFraction float64
}

// NewSizer creates a sizer. kellyFraction scales the clipped Kelly bet;
// 0.5 is half-Kelly.
func NewSizer(kellyFraction float64) *Sizer {
	if kellyFraction <= 0 || kellyFraction > 1 {
		kellyFraction = 0.5
	}
	return &Sizer{kellyFraction: kellyFraction}
}

// SizePosition computes the order quantity and notional for one account.
// balance is the free quote balance fetched at execute time; info carries
// the exchange trading rules for the symbol.
func (s *Sizer) SizePosition(sig *signal.Signal, acct *accounts.Account, balance float64, stats WinStats, info *exchange.SymbolInfo) SizeResult {
	if sig.Levels.Entry <= 0 {
		return skipResult("entry price is zero")
	}
	if balance <= 0 {
		return skipResult("no free balance")
	}

	var notional float64
	switch acct.SizingMode {
	case accounts.SizingFixed:
		notional = math.Min(acct.SizingValue, acct.MaxPositionSizeUsd)
	case accounts.SizingPercentBalance:
		notional = math.Min(balance*acct.SizingValue, acct.MaxPositionSizeUsd)
	case accounts.SizingKelly:
		notional = math.Min(balance*s.kellyBet(stats), acct.MaxPositionSizeUsd)
	default:
		return skipResult(fmt.Sprintf("unknown sizing mode %s", acct.SizingMode))
	}

	if notional <= 0 {
		return skipResult("sizing produced zero notional")
	}
	if notional > balance*float64(acct.Leverage) {
		notional = balance * float64(acct.Leverage)
	}

	entry := sig.Levels.Entry
	quantity := notional * float64(acct.Leverage) / entry
	if info != nil && info.LotStep > 0 {
		quantity = math.Floor(quantity/info.LotStep) * info.LotStep
	}
	if quantity <= 0 {
		return skipResult("quantity rounds to zero at lot step")
	}

	if info != nil && info.MinNotional > 0 && quantity*entry < info.MinNotional {
		return skipResult("below min notional")
	}

	// Risk cap: the loss at the stop must stay inside the per-trade budget
	stopDistance := math.Abs(entry-sig.Levels.StopLoss) / entry
	riskUsd := notional * stopDistance
	if riskUsd > balance*acct.MaxRiskPerTrade {
		return skipResult(fmt.Sprintf("risk $%.2f exceeds per-trade budget $%.2f",
			riskUsd, balance*acct.MaxRiskPerTrade))
	}

	log.Debug().
		Str("account_id", acct.ID).
		Str("symbol", sig.Symbol).
		Str("mode", string(acct.SizingMode)).
		Float64("notional_usd", notional).
		Float64("quantity", quantity).
		Msg("Position sized")

	return SizeResult{Quantity: quantity, NotionalUsd: notional}
}

// kellyBet returns the scaled, clipped Kelly fraction for the account's
// trade history. Falls back to a neutral estimate when history is thin.
func (s *Sizer) kellyBet(stats WinStats) float64 {
	winRate := stats.WinRate
	ratio := stats.AvgWinLossRatio
	if stats.Samples < 10 || ratio <= 0 {
		winRate = 0.50
		ratio = 1.0
	}

	f := winRate - (1-winRate)/ratio
	if f < 0 {
		f = 0
	}
	if f > kellyClip {
		f = kellyClip
	}

	return f * s.kellyFraction
}
