package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/activity"
	"github.com/automedic/clinic/internal/api"
	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/config"
	"github.com/automedic/clinic/internal/dispatch"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/infrastructure/postgres"
	"github.com/automedic/clinic/internal/observability/metrics"
	"github.com/automedic/clinic/internal/observability/tracing"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/circuitbreaker"
	"github.com/automedic/clinic/pkg/workerpool"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Env
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	breakers := circuitbreaker.NewManager(func(name string, to circuitbreaker.State) {
		m.SetBreakerState(name, to.Level())
	}, logger)
	client := backend.New(backend.Config{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout}, breakers, m, logger)

	var recorder activity.Recorder = activity.Nop{}
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		outbox := postgres.NewOutbox(pool, nil, postgres.DefaultOutboxConfig(), m, logger)
		if err := outbox.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = outbox
		logger.Info("recording activity to outbox")
	}

	d, err := dispatch.New(client, recorder, workerpool.Config{
		Workers:                 cfg.ShareWorkers,
		QueueSize:               cfg.ShareWorkers * 16,
		GracefulShutdownTimeout: 10 * time.Second,
	}, m, logger)
	if err != nil {
		return err
	}
	d.Start()
	defer d.Close()

	router := api.NewRouter(api.Deps{
		Sessions:      session.NewManager(client, cfg.SessionTTL, m, logger),
		Backend:       client,
		Dispatcher:    d,
		Drafts:        prescription.NewDraftStore(cfg.DraftTTL),
		Recorder:      recorder,
		Breakers:      breakers,
		Metrics:       m,
		Gatherer:      reg,
		SecureCookies: cfg.SecureCookies(),
		CORSOrigins:   cfg.CORSOrigins,
		ServiceName:   serviceName,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return run(ctx, server, logger)
}

// run serves until ctx ends and then shuts down gracefully.
func run(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
