package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbums/cbums/internal/api"
	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/coin"
	"github.com/cbums/cbums/internal/company"
	"github.com/cbums/cbums/internal/config"
	"github.com/cbums/cbums/internal/crypto"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/ratelimit"
	"github.com/cbums/cbums/internal/trip"
	"github.com/cbums/cbums/internal/upload"
	"github.com/cbums/cbums/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CBUMS API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		return err
	}
	if cipher == nil {
		slog.Warn("activity log encryption disabled, set encryption.key to enable")
	}

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (int32, int32, int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	userStore := user.NewStore(pool)
	companyStore := company.NewStore(pool)
	tripStore := trip.NewStore(pool)
	coinStore := coin.NewStore(pool)
	auditStore := audit.NewStore(pool, cipher)

	recorder := audit.NewRecorder(auditStore, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
	recorder.OnFlushError(m.RecorderFlushErrorsTotal.Inc)
	go recorder.Start(ctx)

	// Drop expired sessions hourly so the table does not grow unbounded.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := userStore.CleanExpiredSessions(ctx); err != nil {
					slog.Error("cleaning expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned expired sessions", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Uploads degrade gracefully when object storage is unreachable; the
	// rest of the API stays up.
	var uploadService *upload.Service
	objectStore, err := upload.NewObjectStore(cfg.Storage)
	if err != nil {
		slog.Warn("object storage unavailable, uploads disabled", "error", err)
	} else if err := objectStore.EnsureBucket(ctx); err != nil {
		slog.Warn("object storage bucket check failed, uploads disabled", "error", err)
	} else {
		uploadService = upload.NewService(objectStore)
	}

	limiter := ratelimit.New(cfg.RateLimit.Login, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Users:          userStore,
		Companies:      companyStore,
		Trips:          tripStore,
		Coins:          coinStore,
		Activity:       auditStore,
		Recorder:       recorder,
		Uploads:        uploadService,
		Sessions:       user.NewAuthAdapter(userStore),
		LoginLimiter:   limiter,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	recorder.Stop()

	return srv.Shutdown(shutdownCtx)
}
