package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/infrastructure/postgres"
	"github.com/automedic/clinic/internal/infrastructure/redpanda"
)

func relayCmd() *cobra.Command {
	var (
		maintenance time.Duration
		retain      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay recorded activity from the outbox to Redpanda",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required for the relay")
			}

			ctx, stop := signalContext()
			defer stop()

			pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			producerCfg := redpanda.DefaultProducerConfig()
			producerCfg.Brokers = cfg.KafkaBrokers
			producer, err := redpanda.NewProducer(producerCfg, logger)
			if err != nil {
				return err
			}
			defer producer.Close()

			outbox := postgres.NewOutbox(pool, producer, postgres.DefaultOutboxConfig(), nil, logger)
			if err := outbox.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := outbox.Start(); err != nil {
				return err
			}
			logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

			if maintenance <= 0 {
				maintenance = time.Minute
			}
			ticker := time.NewTicker(maintenance)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					outbox.Stop()
					stats := producer.Stats()
					logger.Info("relay stopped",
						zap.Int64("messages_sent", stats.MessagesSent),
						zap.Int64("errors", stats.ErrorCount))
					return nil
				case <-ticker.C:
					maintain(ctx, outbox, retain, logger)
				}
			}
		},
	}

	cmd.Flags().DurationVar(&maintenance, "maintenance-interval", time.Minute, "how often to dead-letter and clean up entries")
	cmd.Flags().DurationVar(&retain, "retain", 7*24*time.Hour, "how long processed entries are kept")
	return cmd
}

func maintain(ctx context.Context, outbox *postgres.Outbox, retain time.Duration, logger *zap.Logger) {
	if moved, err := outbox.MoveToDeadLetter(ctx); err != nil {
		logger.Error("dead letter pass failed", zap.Error(err))
	} else if moved > 0 {
		logger.Warn("entries dead-lettered", zap.Int64("count", moved))
	}

	if removed, err := outbox.CleanupProcessed(ctx, retain); err != nil {
		logger.Error("cleanup failed", zap.Error(err))
	} else if removed > 0 {
		logger.Info("processed entries removed", zap.Int64("count", removed))
	}

	if stats, err := outbox.GetStats(ctx); err == nil {
		logger.Info("outbox stats",
			zap.Int64("pending", stats.Pending),
			zap.Int64("processed_24h", stats.Processed),
			zap.Int64("failed", stats.Failed))
	}
}
