// Relayd — the vidmesh signaling relay.
//
// It terminates participant WebSockets, tracks session membership, and
// routes session-scoped control messages between participants. Media never
// touches this process: peers connect directly once negotiated.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/vidmesh/vidmesh/internal/config"
	"github.com/vidmesh/vidmesh/internal/relay"
	"github.com/vidmesh/vidmesh/internal/util"
)

var version = "dev"

func main() {
	var (
		listenAddr string
		debugMode  bool
	)

	root := &cobra.Command{
		Use:     "relayd",
		Short:   "vidmesh signaling relay",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debugMode {
				util.EnableDebug()
			}

			cfg, err := config.LoadRelay()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			srv := relay.NewServer(cfg)
			port, err := srv.Start(cfg.ListenAddr)
			if err != nil {
				return err
			}
			defer srv.Close()

			util.StartStatsReporter(ctx)
			util.LogInfo("relay listening on port %d", port)

			<-ctx.Done()
			util.LogInfo("shutting down")
			return nil
		},
	}

	root.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides RELAY_LISTEN_ADDR)")
	root.Flags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
