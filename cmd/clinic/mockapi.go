package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/automedic/clinic/internal/mockapi"
)

func mockAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mock-api",
		Short: "Run the in-memory backend API for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			mcfg := mockapi.DefaultConfig()
			mcfg.SigningKey = []byte(cfg.MockAPIKey)
			srv, err := mockapi.New(mcfg, logger.Named("mock-api"))
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			return run(ctx, &http.Server{
				Addr:              ":" + cfg.MockAPIPort,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}, logger)
		},
	}
}
