package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/beamlink/beamcast/internal/config"
	"github.com/beamlink/beamcast/internal/relay"
	"github.com/beamlink/beamcast/internal/ui"
)

var flagServePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broadcast relay server",
	Long: `Run the relay server that matches hosts and viewers by broadcast name
and carries their signaling traffic.

Examples:
  beamcast serve
  beamcast serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load(config.Options{Port: flagServePort})
	if err != nil {
		return err
	}

	hub := relay.NewHub()
	go hub.Run(context.Background())

	router := relay.NewServer(hub)

	ui.PrintInfof("Relay server listening on %s", cfg.ListenAddr())
	slog.Info("relay server starting", "addr", cfg.ListenAddr())

	if err := router.Run(cfg.ListenAddr()); err != nil {
		return fmt.Errorf("relay server: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServePort, "port", "p", "", "Port to listen on")
}
