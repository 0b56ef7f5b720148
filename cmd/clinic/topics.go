package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/automedic/clinic/internal/infrastructure/redpanda"
)

func topicsCmd() *cobra.Command {
	var replication int16

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Create the activity topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signalContext()
			defer stop()

			if err := redpanda.HealthCheck(ctx, cfg.KafkaBrokers); err != nil {
				return err
			}

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			if err := admin.EnsureTopics(ctx, replication); err != nil {
				return err
			}

			names, err := admin.ListTopics(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.Flags().Int16Var(&replication, "replication", 1, "replication factor for new topics")
	return cmd
}
