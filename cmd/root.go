package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/beamlink/beamcast/internal/ui"
	"github.com/beamlink/beamcast/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "beamcast",
	Short:   "One-to-many live broadcasting over WebRTC",
	Long: `Beamcast streams live media from one host to many viewers using WebRTC.
A lightweight relay server matches hosts and viewers by broadcast name and
carries their signaling traffic; media flows peer to peer once connected.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
