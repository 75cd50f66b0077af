package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepdive/config"
	"github.com/mohammad-safakhou/deepdive/internal/runtime"
	srv "github.com/mohammad-safakhou/deepdive/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			tracing, err := runtime.SetupTracing(cmd.Context(), cfg.Telemetry, "deepdive-api")
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(ctx)
			}()

			return srv.Run(cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
