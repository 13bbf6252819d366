// Command engine runs the trading signal engine: the cycle scheduler, the
// position monitor and the read-only status API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	osignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/accounts"
	"github.com/ajitpratap0/signalflow/internal/api"
	"github.com/ajitpratap0/signalflow/internal/config"
	"github.com/ajitpratap0/signalflow/internal/db"
	"github.com/ajitpratap0/signalflow/internal/executor"
	"github.com/ajitpratap0/signalflow/internal/market"
	"github.com/ajitpratap0/signalflow/internal/monitor"
	"github.com/ajitpratap0/signalflow/internal/notifier"
	"github.com/ajitpratap0/signalflow/internal/risk"
	"github.com/ajitpratap0/signalflow/internal/scheduler"
	"github.com/ajitpratap0/signalflow/internal/selector"
	"github.com/ajitpratap0/signalflow/internal/signal"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	runOnce := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Signals.Symbols).
		Msg("Signal engine starting")

	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Schema migration failed")
	}

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, stats caching disabled")
			redisClient = nil
		}
	}

	var decryptor accounts.Decryptor
	if cfg.Vault.Enabled {
		decryptor, err = accounts.NewVaultDecryptor(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.MountPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Vault decryptor init failed")
		}
	}
	acctManager := accounts.NewManager(database, decryptor,
		cfg.Accounts.CredentialSlotPrefix, cfg.App.Environment != "production")
	acctManager.MaxEnvSlots = cfg.Accounts.MaxEnvSlots

	notify := notifier.New(notifier.Config{
		NATSUrl:        cfg.NATS.URL,
		OrderSubject:   cfg.NATS.OrderTopic,
		SummarySubject: cfg.NATS.SummaryTopic,
		FlushTimeout:   cfg.NATS.PublishLimit,
		TelegramToken:  cfg.Telegram.BotToken,
		TelegramChatID: cfg.Telegram.ChatID,
		AlertScore:     cfg.Signals.AlertScore,
	})
	defer notify.Close()

	barStore := market.NewStore(database.Pool())
	statsCache := market.NewStatsCache(redisClient, 60*time.Second)

	generator := signal.NewGenerator(signal.GeneratorConfig{
		MinScore:      cfg.Signals.MinStoreScore,
		MinConfluence: 2,
		MinSRDistance: 0.01,
		MinRiskReward: 1.0,
	})

	winRateLookback := time.Duration(cfg.Signals.WinRateLookbackDays) * 24 * time.Hour

	sel := selector.New(database, selector.Config{
		MinScore:               cfg.Signals.MinSelectorScore,
		MaxSignalAge:           cfg.Signals.MaxSignalAge,
		Cooldown:               cfg.Scheduler.CycleCooldown,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		MaxDailySignals:        cfg.Risk.MaxDailySignals,
		WinRateLookback:        winRateLookback,
	})

	validator := risk.NewValidator(risk.ValidatorConfig{
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		MaxDailyLossGlobal:     cfg.Risk.MaxDailyLossGlobal,
		MaxVolatility:          cfg.Risk.MaxVolatility,
		MinVolume24h:           cfg.Risk.MinVolume24h,
		QualityOverrideScore:   cfg.Risk.QualityOverrideScore,
	})

	sizer := risk.NewSizer(cfg.Risk.KellyFraction)

	exec := executor.New(database, sizer, notify, acctManager.ClientFor, executor.Config{
		Deadline:          cfg.Executor.Deadline,
		CallTimeout:       cfg.Executor.ExchangeCallTimeout,
		BalanceTimeout:    cfg.Executor.BalanceTimeout,
		QuoteAsset:        cfg.Executor.QuoteAsset,
		WinRateLookback:   winRateLookback,
		SpotMinScore:      0.75,
		SpotMaxVolatility: 0.10,
	})

	sched := scheduler.New(scheduler.Config{
		Symbols:       cfg.Signals.Symbols,
		Timeframes:    cfg.Signals.Timeframes,
		Interval:      cfg.Scheduler.CycleInterval,
		CycleDeadline: cfg.Scheduler.CycleDeadline,
		MaxSignalAge:  cfg.Signals.MaxSignalAge,
		MaxWorkers:    cfg.Scheduler.AnalysisWorkers,
	}, barStore, statsCache, generator, database, sel, validator, exec, acctManager, notify)

	if *runOnce {
		sched.RunCycle(ctx)
		return
	}

	posMonitor := monitor.New(database, acctManager, nil,
		cfg.Scheduler.MonitorInterval, cfg.Executor.ExchangeCallTimeout)
	go posMonitor.Run(ctx)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port)
	}

	var statusAPI *api.Server
	if cfg.API.Enabled {
		statusAPI = api.New(cfg.API.GetAPIAddr(), database)
		go func() {
			if err := statusAPI.Start(); err != nil {
				log.Error().Err(err).Msg("Status API failed")
			}
		}()
	}

	sched.Run(ctx)

	if statusAPI != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusAPI.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Status API shutdown failed")
		}
	}

	log.Info().Msg("Signal engine stopped")
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + strconv.Itoa(port)
	log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
