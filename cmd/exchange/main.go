// cmd/exchange runs the matching engine behind the REST/websocket gateway,
// journaling every order lifecycle event to the configured audit sinks.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-simv1/config"
	"exchange-simv1/internal/audit"
	"exchange-simv1/internal/engine"
	"exchange-simv1/internal/gateway"
	"exchange-simv1/internal/logger"
	"exchange-simv1/internal/metrics"
	"exchange-simv1/internal/notification"
	"exchange-simv1/internal/ordermanager"
	kafkastore "exchange-simv1/internal/store/kafka"
	redisstore "exchange-simv1/internal/store/redis"
	sqlitestore "exchange-simv1/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log, logCloser := logger.Init("exchange", logger.ParseLevel(cfg.LogLevel), logger.Options{File: cfg.LogFile})
	defer logCloser.Close()
	log.Info("starting", slog.Any("symbols", cfg.Symbols), slog.String("http", cfg.HTTPAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	// ---- Alerts ----
	alerts := notification.Multi{notification.LogNotifier{}}
	if cfg.AlertWebhookURL != "" {
		alerts = append(alerts, notification.NewWebhookNotifier(cfg.AlertWebhookURL, "exchange"))
	}

	// ---- Audit sinks ----
	var (
		sinks []audit.Sink
		rdb   *goredis.Client
		sqlDB *sql.DB
	)

	if cfg.AuditCSVPath != "" {
		csvSink, err := audit.NewCSVSink(cfg.AuditCSVPath)
		if err != nil {
			log.Error("csv audit sink failed", slog.String("path", cfg.AuditCSVPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, csvSink)
	}

	if cfg.SQLitePath != "" {
		journal, err := sqlitestore.NewJournal(cfg.SQLitePath)
		if err != nil {
			log.Error("sqlite journal failed", slog.String("path", cfg.SQLitePath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		sqlDB = journal.DB()
		health.EnableSQLite(true)
		sinks = append(sinks, journal)
	}

	if cfg.RedisAddr != "" {
		writer, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			// The exchange keeps trading without Redis; health reports degraded.
			health.EnableRedis(false)
			notification.Dispatch(alerts, notification.Alert{
				Level:   notification.AlertWarning,
				Title:   "redis unavailable, audit stream disabled",
				Message: err.Error(),
			}, 10*time.Second)
		} else {
			rdb = writer.Client()
			health.EnableRedis(true)

			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				level := notification.AlertInfo
				if to == redisstore.StateOpen {
					level = notification.AlertCritical
				}
				notification.Dispatch(alerts, notification.Alert{
					Level:   level,
					Title:   "redis circuit breaker " + to.String(),
					Message: "audit stream writer moved from " + from.String() + " to " + to.String(),
				}, 10*time.Second)
			}
			buffered := redisstore.NewBufferedWriter(ctx, writer, cb, 0)
			buffered.OnBuffer = prom.RedisBufferedWrites.Inc
			buffered.OnFlush = func(n int) {
				log.Info("redis buffer flushed", slog.Int("events", n))
			}
			sinks = append(sinks, buffered)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, kafkastore.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info("kafka audit producer", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTopic))
	}

	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	// ---- Engine ----
	eng, err := engine.New(engine.Config{
		Symbols: cfg.Symbols,
		Limits: ordermanager.Limits{
			MaxOrdersPerMinute: cfg.MaxOrdersPerMinute,
			MaxLongPosition:    cfg.MaxLongPosition,
			MaxShortPosition:   cfg.MaxShortPosition,
		},
		StartingCash: cfg.StartingCash,
	}, audit.Multi(sinks), prom)
	if err != nil {
		log.Error("engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	health.SetEngineOK(true, eng.Symbols())
	eng.Subscribe(func(e audit.Event) {
		if e.Type == audit.EventNew {
			health.SetLastOrderTime(e.TS)
		}
	})

	// ---- Gateway ----
	hub := gateway.NewHub(500)
	hub.OnClientCount = func(n int) { prom.GatewayClients.Set(float64(n)) }
	api := gateway.NewServer(eng, hub, cfg.TOTPSecret)
	if cfg.TOTPSecret != "" {
		log.Info("TOTP required on mutating routes")
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("gateway listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	httpSrv.Shutdown(shutdownCtx)
	health.SetEngineOK(false, eng.Symbols())
	if err := eng.Close(); err != nil {
		log.Warn("closing audit sinks", slog.String("error", err.Error()))
	}
	cancel()
	metricsSrv.Stop(shutdownCtx)
	log.Info("stopped")
}
