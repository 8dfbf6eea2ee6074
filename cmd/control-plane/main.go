package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/api"
	"github.com/hydrosense/control-plane/internal/connectivity"
	"github.com/hydrosense/control-plane/internal/engine"
	"github.com/hydrosense/control-plane/internal/history"
	"github.com/hydrosense/control-plane/internal/scheduler"
	st "github.com/hydrosense/control-plane/internal/store"
	"github.com/hydrosense/control-plane/internal/watchdog"
	"github.com/hydrosense/control-plane/pkg/logger"
)

func main() {
	cfg := loadConfig()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "control-plane")
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Warn("invalid TZ, falling back to local", zap.String("tz", cfg.Timezone), zap.Error(err))
		}
	}

	// Persistence port: Postgres in production, in-memory when no DSN is
	// configured (local/offline runs).
	var devices st.Store
	var pinger api.Pinger
	if cfg.PostgresDSN != "" {
		pg, err := st.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		pinger = pg
		devices = st.NewBreaker(pg, gobreaker.Settings{
			Name:    "device-store",
			Timeout: 15 * time.Second,
		})
	} else {
		log.Warn("no POSTGRES_DSN configured, using in-memory store")
		devices = st.NewMemory()
	}

	manager := connectivity.NewManager(connectivity.Config{
		BrokerURL: cfg.BrokerURL,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Namespace: cfg.Namespace,
		QueueCap:  cfg.QueueCap,
	}, log.Named("mqtt"))

	var sink history.Sink
	var histHealth api.HistoryHealth
	if cfg.InfluxURL != "" {
		writer := history.NewWriter(history.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, log.Named("history"))
		defer writer.Close()
		sink = writer
		histHealth = writer
	}

	dogs := watchdog.NewRegistry(manager, manager.Topics(), cfg.WatchdogTimeout, log.Named("watchdog"))
	defer dogs.StopAll()

	eng := engine.New(devices, manager, manager.Topics(), log.Named("engine"),
		engine.WithSink(sink),
		engine.WithDebounceWindow(cfg.DebounceWindow),
		engine.WithRegistrationHook(func(deviceID string) {
			dogs.StopTracking(deviceID)
		}),
		engine.WithProvisioningTracker(dogs),
	)
	manager.OnMessage(eng.HandleMessage)

	// Inability to reach the broker at startup is the one fatal failure.
	if err := manager.Connect(ctx); err != nil {
		log.Fatal("mqtt connect failed", zap.Error(err))
	}
	defer manager.Stop()

	exec := scheduler.NewExecutor(devices, eng, loc, log.Named("scheduler"))
	go exec.Run(ctx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewMux(manager, pinger, histHealth)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ops http server failed", zap.Error(err))
		}
	}()

	log.Info("control plane running",
		zap.String("broker", cfg.BrokerURL),
		zap.String("namespace", cfg.Namespace),
		zap.String("http", cfg.HTTPAddr))

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
}
