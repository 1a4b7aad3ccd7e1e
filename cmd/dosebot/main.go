package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/DoseboT/internal/alarm"
	"github.com/Kerhoff/DoseboT/internal/api"
	"github.com/Kerhoff/DoseboT/internal/config"
	"github.com/Kerhoff/DoseboT/internal/handlers"
	"github.com/Kerhoff/DoseboT/internal/metrics"
	"github.com/Kerhoff/DoseboT/internal/models"
	"github.com/Kerhoff/DoseboT/internal/platform/httpclient"
	"github.com/Kerhoff/DoseboT/internal/remote"
	"github.com/Kerhoff/DoseboT/internal/repository"
	"github.com/Kerhoff/DoseboT/internal/repository/memory"
	"github.com/Kerhoff/DoseboT/internal/repository/postgres"
	"github.com/Kerhoff/DoseboT/internal/repository/redis"
	"github.com/Kerhoff/DoseboT/internal/service"
	"github.com/Kerhoff/DoseboT/internal/telegram"
	"github.com/Kerhoff/DoseboT/pkg/logger"
)

// stores are the persistence backends selected by configuration
type stores struct {
	kv        repository.KVStore
	adherence repository.AdherenceRepository
	plans     repository.PlanSource
	closers   []io.Closer

	// adherenceTimeout is set when the adherence log retries remotely
	adherenceTimeout time.Duration
}

func (s *stores) Close() {
	for _, c := range s.closers {
		c.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, l *logrus.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := config.NewDatabase(ctx, cfg.DatabaseURL, l)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, db)

		if err := db.Migrate(cfg.MigrationsPath); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.kv = postgres.NewKVStore(db.DB)
		s.adherence = postgres.NewAdherenceRepository(db.DB)

	case config.BackendRedis:
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.closers = append(s.closers, client)
		s.kv = redis.NewKVStore(client, cfg.RedisNamespace)
		s.adherence = memory.NewAdherenceRepo()
		l.Warn("Adherence events are kept in memory; set REMOTE_API_URL or use the postgres backend to persist them")

	default:
		s.kv = memory.NewKVStore()
		s.adherence = memory.NewAdherenceRepo()
		l.Warn("Using in-memory store; reminders and adherence are lost on restart")
	}

	if cfg.RemoteAPIURL != "" {
		retry := httpclient.DefaultRetryPolicy()
		retry.MaxAttempts = cfg.RemoteRetries

		client, err := remote.New(cfg.RemoteAPIURL, cfg.RemoteAPIToken, cfg.RemoteTimeout, retry, l)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create remote API client: %w", err)
		}
		s.adherence = client
		s.plans = client
		s.adherenceTimeout = max(cfg.CallTimeout, retry.Budget(cfg.RemoteTimeout))
		l.Infof("Using remote medication API at %s", cfg.RemoteAPIURL)
	}

	return s, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting DoseboT...")

	loc, _ := cfg.Location()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	st, err := openStores(ctx, cfg, l)
	if err != nil {
		l.Fatalf("Failed to open stores: %v", err)
	}
	defer st.Close()

	m := metrics.New()

	alarms := alarm.New(l, alarm.Config{
		Tick:       cfg.AlarmTick,
		MaxRepeats: cfg.AlarmRepeats,
		Location:   loc,
	})

	engine, err := service.Initialize(service.Deps{
		Store:     st.kv,
		Triggers:  alarms,
		Adherence: st.adherence,
		Plans:     st.plans,
		Logger:    l,
		Metrics:   m,
	}, service.Options{
		CallTimeout:      cfg.CallTimeout,
		AdherenceTimeout: st.adherenceTimeout,
		AdherenceWindow:  cfg.Window,
		Now:              func() time.Time { return time.Now().In(loc) },
	})
	if err != nil {
		l.Fatalf("Failed to initialize reminder engine: %v", err)
	}

	// Telegram bot
	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.TelegramChatID, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram bot: %v", err)
		}

		bot.RegisterCommand("start", handlers.NewStartHandler(cfg.TelegramChatID, l))
		bot.RegisterCommand("help", handlers.NewHelpHandler(l))
		bot.RegisterCommand("taken", handlers.NewTakenHandler(engine, l))
		bot.RegisterCommand("skip", handlers.NewSkipHandler(engine, l))
		bot.RegisterCommand("stats", handlers.NewStatsHandler(engine, l))

		bot.RegisterCallback(telegram.CallbackTaken, handlers.NewDoseCallbackHandler(engine, models.AdherenceTaken, l))
		bot.RegisterCallback(telegram.CallbackSkip, handlers.NewDoseCallbackHandler(engine, models.AdherenceSkipped, l))

		engine.RegisterFireListener(bot.Notify)
	} else {
		l.Warn("TELEGRAM_TOKEN is not set; fired reminders are only logged")
		engine.RegisterFireListener(func(ctx context.Context, fired models.FiredTrigger) {
			logger.WithPlan(l, fired.Request.Payload.PlanID).WithFields(logrus.Fields{
				"medication": fired.Request.Payload.MedicationName,
				"dose_time":  fired.Request.Payload.DoseTime.String(),
				"silent":     fired.Request.Silent,
				"repeat":     fired.Repeat,
			}).Info("Reminder fired")
		})
	}

	// There is always a delivery channel, so alarms may be registered
	alarms.Authorize(true)

	// Alarms live in process; restore them for every active plan
	if report, err := engine.SyncPlans(ctx, true); err != nil {
		l.WithError(err).Error("Initial plan sync finished with errors")
	} else {
		l.Infof("Restored reminders for %d plans", report.Rescheduled)
	}

	go alarms.Start(ctx)
	go engine.StartPlanSync(ctx, cfg.SyncInterval)

	// Start HTTP API server
	apiServer := api.NewServer(engine, l)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	// Start Prometheus metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	// Start Telegram bot polling
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	}

	l.Info("DoseboT started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("HTTP server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.Errorf("Metrics server shutdown error: %v", err)
	}

	l.Info("DoseboT stopped")
}
