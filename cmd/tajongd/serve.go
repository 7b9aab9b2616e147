package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tajong-backend/config"
	"tajong-backend/internal/api"
	"tajong-backend/internal/audio"
	"tajong-backend/internal/notification"
	"tajong-backend/internal/runner"
	"tajong-backend/internal/scheduler"
	"tajong-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, gormDB, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, store.NewGormStore(gormDB), log)
	},
}

// audioBackend builds the playback sink. The library is nil for the MQTT
// backend, where sound files live on the remote player.
func audioBackend(cfg *config.AudioConfig, log *zap.Logger) (*audio.Sink, *audio.Library, func(), error) {
	switch cfg.Backend {
	case config.AudioBackendMQTT:
		player, err := audio.DialMQTT(cfg.MQTT, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return audio.NewRemoteSink(player, log), nil, player.Close, nil
	case config.AudioBackendCommand:
		lib := audio.NewLibrary(afero.NewOsFs(), cfg.SoundsDir, cfg.AmpCacheDir)
		player := audio.NewCommandPlayer(cfg.Command, cfg.Args, log)
		return audio.NewLocalSink(lib, player, log), lib, func() { player.Stop() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

func serve(ctx context.Context, cfg *config.Config, s store.Store, log *zap.Logger) error {
	sink, library, closeSink, err := audioBackend(&cfg.Audio, log)
	if err != nil {
		return err
	}
	defer closeSink()

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, s.DB(), webpushOptions, log)
	} else {
		log.Warn("VAPID keys not configured, push notifications disabled")
	}

	sc := &cfg.Scheduler
	ledger := scheduler.NewLedger(s, time.Duration(sc.PauseCacheSeconds)*time.Second)
	resolver := scheduler.NewResolver(s, ledger, sc.LookaheadDays, log)
	events := notification.NewRecorder(s, pool, cfg.Push.NotifyResults, log)
	engine := scheduler.NewEngine(s, resolver, ledger, events, sink, log, scheduler.Options{
		Lateness:    sc.Lateness,
		PurgePolicy: sc.PurgePolicy,
		Location:    sc.Location,
	})
	svc := runner.NewService(sc, engine, pool, log)

	handler := api.NewHandler(s, svc, library, webpushOptions, sc.Location, log)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(&cfg.Server, handler, log),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(runCtx) }()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var exitErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services")
	case exitErr = <-runErr:
		log.Error("scheduler stopped", zap.Error(exitErr))
	case exitErr = <-serveErr:
		log.Error("HTTP server failed", zap.Error(exitErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}
	cancel()

	log.Info("server stopped")
	return exitErr
}
