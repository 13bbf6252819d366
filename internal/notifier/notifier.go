// Package notifier publishes execution events over NATS and sends
// high-confidence signal alerts to Telegram. All delivery is best-effort;
// failures never block the cycle.
package notifier

import (
	"encoding/json"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NATS subjects
const (
	SubjectSignals = "signalflow.signals"
	SubjectOrders  = "signalflow.orders"
	SubjectSummary = "signalflow.summary"
)

const defaultFlushTimeout = 2 * time.Second

// OrderEvent is the per-account notification emitted for each execution
// attempt
type OrderEvent struct {
	GroupID      string    `json:"group_id"`
	AccountID    string    `json:"account_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Status       string    `json:"status"`
	OrderID      string    `json:"order_id,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	NotionalUsd  float64   `json:"notional_usd,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SummaryEvent aggregates one executor fan-out
type SummaryEvent struct {
	GroupID       string    `json:"group_id"`
	Symbol        string    `json:"symbol"`
	Direction     string    `json:"direction"`
	Score         float64   `json:"score"`
	TotalAccounts int       `json:"total_accounts"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Timestamp     time.Time `json:"timestamp"`
}

// SignalAlert is the payload for high-confidence signal announcements
type SignalAlert struct {
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Direction  string  `json:"direction"`
	Score      float64 `json:"score"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Config for the notifier
type Config struct {
	NATSUrl        string
	OrderSubject   string        // defaults to SubjectOrders
	SummarySubject string        // defaults to SubjectSummary
	FlushTimeout   time.Duration // defaults to 2s
	TelegramToken  string
	TelegramChatID int64
	AlertScore     float64 // Telegram floor, above the execution floor
}

// Notifier fans events out to NATS and Telegram. Either sink may be absent.
type Notifier struct {
	nc             *nats.Conn
	bot            *tgbotapi.BotAPI
	chatID         int64
	alertScore     float64
	orderSubject   string
	summarySubject string
	flushTimeout   time.Duration
	logger         zerolog.Logger
}

// New connects the configured sinks. A failed connection disables that
// sink rather than failing startup.
func New(cfg Config) *Notifier {
	n := &Notifier{
		chatID:         cfg.TelegramChatID,
		alertScore:     cfg.AlertScore,
		orderSubject:   cfg.OrderSubject,
		summarySubject: cfg.SummarySubject,
		flushTimeout:   cfg.FlushTimeout,
		logger:         log.With().Str("component", "notifier").Logger(),
	}
	if n.alertScore == 0 {
		n.alertScore = 0.80
	}
	if n.orderSubject == "" {
		n.orderSubject = SubjectOrders
	}
	if n.summarySubject == "" {
		n.summarySubject = SubjectSummary
	}
	if n.flushTimeout == 0 {
		n.flushTimeout = defaultFlushTimeout
	}

	if cfg.NATSUrl != "" {
		nc, err := nats.Connect(cfg.NATSUrl,
			nats.Name("signalflow-notifier"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			n.logger.Warn().Err(err).Msg("NATS unavailable, event publishing disabled")
		} else {
			n.nc = nc
			n.logger.Info().Str("url", cfg.NATSUrl).Msg("NATS notifier connected")
		}
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			n.logger.Warn().Err(err).Msg("Telegram unavailable, alerts disabled")
		} else {
			n.bot = bot
			n.logger.Info().Msg("Telegram notifier connected")
		}
	}

	return n
}

// NewWithConn creates a notifier over an existing NATS connection. Used in
// tests with an embedded server.
func NewWithConn(nc *nats.Conn, alertScore float64) *Notifier {
	if alertScore == 0 {
		alertScore = 0.80
	}
	return &Notifier{
		nc:             nc,
		alertScore:     alertScore,
		orderSubject:   SubjectOrders,
		summarySubject: SubjectSummary,
		flushTimeout:   defaultFlushTimeout,
		logger:         log.With().Str("component", "notifier").Logger(),
	}
}

// Close drains the NATS connection
func (n *Notifier) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}

// PublishOrderEvent publishes a per-account execution event
func (n *Notifier) PublishOrderEvent(event *OrderEvent) {
	n.publish(n.orderSubject, event)
}

// PublishSummary publishes a cycle execution summary
func (n *Notifier) PublishSummary(summary *SummaryEvent) {
	n.publish(n.summarySubject, summary)
}

// PublishSignal announces a freshly persisted signal on NATS and, when the
// score clears the alert floor, on Telegram
func (n *Notifier) PublishSignal(alert *SignalAlert) {
	n.publish(SubjectSignals, alert)

	if alert.Score >= n.alertScore {
		n.sendTelegramAlert(alert)
	}
}

func (n *Notifier) publish(subject string, payload interface{}) {
	if n.nc == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return
	}

	if err := n.nc.Publish(subject, data); err != nil {
		n.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return
	}
	if err := n.nc.FlushTimeout(n.flushTimeout); err != nil {
		n.logger.Warn().Err(err).Str("subject", subject).Msg("Event flush timed out")
	}
}

func (n *Notifier) sendTelegramAlert(alert *SignalAlert) {
	if n.bot == nil {
		return
	}

	emoji := "\U0001F7E2" // green circle
	if alert.Direction == "SHORT" {
		emoji = "\U0001F534" // red circle
	}

	text := emoji + " *" + alert.Direction + " " + alert.Symbol + "* (" + alert.Timeframe + ")\n" +
		"Score: " + formatFloat(alert.Score, 2) + "\n" +
		"Entry: " + formatFloat(alert.Entry, 8) + "\n" +
		"Stop: " + formatFloat(alert.StopLoss, 8) + "\n" +
		"Target: " + formatFloat(alert.TakeProfit, 8)

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Str("symbol", alert.Symbol).Msg("Telegram alert failed")
	}
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
