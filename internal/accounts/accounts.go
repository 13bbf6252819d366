// Package accounts resolves execution accounts from environment slots and
// the account store, and turns their credentials into exchange clients.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/exchange"
)

// SizingMode selects how the risk manager sizes positions for an account
type SizingMode string

const (
	SizingFixed          SizingMode = "FIXED"
	SizingPercentBalance SizingMode = "PERCENT_BALANCE"
	SizingKelly          SizingMode = "KELLY"
)

// MarketType is the venue policy of an account
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
	MarketBoth    MarketType = "both"
)

// Credentials is the decrypted API key material. Never persisted or logged.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Account is a resolved execution destination with its policy envelope
type Account struct {
	ID   string
	Name string

	credentials Credentials

	MarketType MarketType
	Testnet    bool

	MaxPositionSizeUsd float64
	Leverage           int
	MaxDailyTrades     int
	MaxRiskPerTrade    float64
	MaxDailyLoss       float64
	StopOnDailyLoss    bool
	SizingMode         SizingMode
	SizingValue        float64

	AutoTradeEnabled bool
	IsActive         bool
	IsVerified       bool
	DailyLossTripped bool

	CurrentBalance float64
}

// Eligible reports whether the account may execute this cycle
func (a *Account) Eligible() bool {
	return a.IsActive && a.IsVerified && a.AutoTradeEnabled && !a.DailyLossTripped
}

// Decryptor turns an opaque credential blob into usable key material.
// The core never parses ciphertext itself.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// Manager merges environment-slot accounts with store-configured accounts
// and builds per-account exchange clients
type Manager struct {
	store      *db.DB
	decryptor  Decryptor
	slotPrefix string
	testnet    bool

	// MaxEnvSlots bounds the credential slot scan. Zero means no bound;
	// the scan still stops at the first missing slot.
	MaxEnvSlots int
}

// NewManager creates an account manager. The decryptor may be nil when all
// accounts come from plaintext env slots.
func NewManager(store *db.DB, decryptor Decryptor, slotPrefix string, testnet bool) *Manager {
	if slotPrefix == "" {
		slotPrefix = "CREDENTIAL_SLOT_"
	}
	return &Manager{
		store:      store,
		decryptor:  decryptor,
		slotPrefix: slotPrefix,
		testnet:    testnet,
	}
}

// envSlot is the JSON payload of one CREDENTIAL_SLOT_n environment variable
type envSlot struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	APIKey             string  `json:"api_key"`
	SecretKey          string  `json:"secret_key"`
	MarketType         string  `json:"market_type"`
	Testnet            *bool   `json:"testnet"`
	MaxPositionSizeUsd float64 `json:"max_position_size_usd"`
	Leverage           int     `json:"leverage"`
	MaxDailyTrades     int     `json:"max_daily_trades"`
	MaxRiskPerTrade    float64 `json:"max_risk_per_trade"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`
	SizingMode         string  `json:"sizing_mode"`
	SizingValue        float64 `json:"sizing_value"`
}

// ResolveAll returns the merged account set without eligibility filtering.
// Environment slots take precedence over store rows with the same id.
func (m *Manager) ResolveAll(ctx context.Context) ([]*Account, error) {
	merged := make(map[string]*Account)
	var order []string

	for _, acct := range m.resolveEnvSlots() {
		if _, seen := merged[acct.ID]; !seen {
			order = append(order, acct.ID)
		}
		merged[acct.ID] = acct
	}

	if m.store != nil {
		rows, err := m.store.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list store accounts: %w", err)
		}
		for _, row := range rows {
			if _, seen := merged[row.ID]; seen {
				continue
			}
			acct, err := m.fromStoreRow(ctx, row)
			if err != nil {
				log.Warn().Err(err).Str("account_id", row.ID).Msg("Skipping store account")
				continue
			}
			merged[acct.ID] = acct
			order = append(order, acct.ID)
		}
	}

	all := make([]*Account, 0, len(order))
	for _, id := range order {
		all = append(all, merged[id])
	}
	return all, nil
}

// ResolveEligible returns the merged, eligibility-filtered account set.
// The daily-loss trip is evaluated against realized PnL since UTC midnight.
func (m *Manager) ResolveEligible(ctx context.Context, now time.Time) ([]*Account, error) {
	all, err := m.ResolveAll(ctx)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var eligible []*Account
	for _, acct := range all {
		if m.store != nil && acct.StopOnDailyLoss && acct.CurrentBalance > 0 {
			realized, err := m.store.RealizedPnlForAccountSince(ctx, acct.ID, dayStart)
			if err != nil {
				log.Warn().Err(err).Str("account_id", acct.ID).Msg("Daily loss check failed, account skipped")
				continue
			}
			if -realized >= acct.CurrentBalance*acct.MaxDailyLoss {
				acct.DailyLossTripped = true
				log.Warn().
					Str("account_id", acct.ID).
					Float64("realized_pnl", realized).
					Msg("Daily loss limit tripped")
			}
		}

		if acct.Eligible() {
			eligible = append(eligible, acct)
		}
	}

	log.Debug().
		Int("resolved", len(all)).
		Int("eligible", len(eligible)).
		Msg("Accounts resolved")

	return eligible, nil
}

// resolveEnvSlots reads CREDENTIAL_SLOT_1, CREDENTIAL_SLOT_2, ... until the
// first missing slot
func (m *Manager) resolveEnvSlots() []*Account {
	var accounts []*Account

	for n := 1; m.MaxEnvSlots == 0 || n <= m.MaxEnvSlots; n++ {
		raw := os.Getenv(fmt.Sprintf("%s%d", m.slotPrefix, n))
		if raw == "" {
			break
		}

		var slot envSlot
		if err := json.Unmarshal([]byte(raw), &slot); err != nil {
			log.Warn().Err(err).Int("slot", n).Msg("Malformed credential slot, skipped")
			continue
		}
		if slot.APIKey == "" || slot.SecretKey == "" {
			log.Warn().Int("slot", n).Msg("Credential slot missing key material, skipped")
			continue
		}

		if slot.ID == "" {
			slot.ID = fmt.Sprintf("env-%d", n)
		}
		if slot.Name == "" {
			slot.Name = slot.ID
		}

		acct := &Account{
			ID:          slot.ID,
			Name:        slot.Name,
			credentials: Credentials{APIKey: slot.APIKey, SecretKey: slot.SecretKey},
			MarketType:  MarketType(slot.MarketType),
			Testnet:     m.testnet,

			MaxPositionSizeUsd: slot.MaxPositionSizeUsd,
			Leverage:           slot.Leverage,
			MaxDailyTrades:     slot.MaxDailyTrades,
			MaxRiskPerTrade:    slot.MaxRiskPerTrade,
			MaxDailyLoss:       slot.MaxDailyLoss,
			StopOnDailyLoss:    true,
			SizingMode:         SizingMode(slot.SizingMode),
			SizingValue:        slot.SizingValue,

			AutoTradeEnabled: true,
			IsActive:         true,
			IsVerified:       true,
		}
		if slot.Testnet != nil {
			acct.Testnet = *slot.Testnet
		}
		applyAccountDefaults(acct)

		accounts = append(accounts, acct)
	}

	return accounts
}

// fromStoreRow converts a store account, decrypting its credential blob
func (m *Manager) fromStoreRow(ctx context.Context, row *db.AccountRow) (*Account, error) {
	if m.decryptor == nil {
		return nil, fmt.Errorf("no decryptor configured for store account %s", row.ID)
	}

	plaintext, err := m.decryptor.Decrypt(ctx, row.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return nil, fmt.Errorf("decrypted credentials malformed: %w", err)
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("decrypted credentials incomplete")
	}

	acct := &Account{
		ID:          row.ID,
		Name:        row.Name,
		credentials: creds,
		MarketType:  MarketType(row.MarketType),
		Testnet:     row.Testnet,

		MaxPositionSizeUsd: row.MaxPositionSizeUsd,
		Leverage:           row.Leverage,
		MaxDailyTrades:     row.MaxDailyTrades,
		MaxRiskPerTrade:    row.MaxRiskPerTrade,
		MaxDailyLoss:       row.MaxDailyLoss,
		StopOnDailyLoss:    row.StopOnDailyLoss,
		SizingMode:         SizingMode(row.SizingMode),
		SizingValue:        row.SizingValue,

		AutoTradeEnabled: row.AutoTradeEnabled,
		IsActive:         row.IsActive,
		IsVerified:       row.IsVerified,
		CurrentBalance:   row.CurrentBalance,
	}
	applyAccountDefaults(acct)

	return acct, nil
}

// ClientFor builds a per-account exchange client. Handles are never shared
// across accounts.
func (m *Manager) ClientFor(acct *Account) exchange.Client {
	market := exchange.MarketFutures
	if acct.MarketType == MarketSpot {
		market = exchange.MarketSpot
	}

	return exchange.NewBinanceClient(exchange.BinanceConfig{
		APIKey:    acct.credentials.APIKey,
		SecretKey: acct.credentials.SecretKey,
		Testnet:   acct.Testnet,
		Market:    market,
	})
}

func applyAccountDefaults(a *Account) {
	switch a.MarketType {
	case MarketSpot, MarketFutures, MarketBoth:
	default:
		a.MarketType = MarketFutures
	}
	if a.Leverage < 1 {
		a.Leverage = 1
	}
	if a.Leverage > 125 {
		a.Leverage = 125
	}
	if a.MaxPositionSizeUsd <= 0 {
		a.MaxPositionSizeUsd = 100
	}
	if a.MaxDailyTrades <= 0 {
		a.MaxDailyTrades = 10
	}
	if a.MaxRiskPerTrade <= 0 || a.MaxRiskPerTrade > 0.10 {
		a.MaxRiskPerTrade = 0.02
	}
	if a.MaxDailyLoss <= 0 || a.MaxDailyLoss > 0.20 {
		a.MaxDailyLoss = 0.05
	}
	switch a.SizingMode {
	case SizingFixed, SizingPercentBalance, SizingKelly:
	default:
		a.SizingMode = SizingFixed
	}
	if a.SizingValue <= 0 {
		a.SizingValue = 50
	}
}
