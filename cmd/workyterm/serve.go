package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workyterm/workyterm/pkg/logging"
	"github.com/workyterm/workyterm/pkg/metrics"
	"github.com/workyterm/workyterm/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Listen
			if listen != "" {
				addr = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for id, ok := range a.registry.ProbeAll(ctx) {
				metrics.RecordProbe(string(id), ok)
				if !ok {
					a.log.Warn().Str("provider", string(id)).Msg("provider unreachable")
				}
			}

			srv := server.New(addr, a.engine, a.registry, a.cache, a.history, logging.Component(a.log, "server"))
			return srv.ListenAndServe(ctx)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
