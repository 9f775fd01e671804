package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/aashish-nayak/WatchTOgather/internal/ui"
	"github.com/aashish-nayak/WatchTOgather/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Share your screen with friends over WebRTC, chat included",
	Long:    `WatchTogether broadcasts a screen to any number of viewers directly over WebRTC. A lightweight relay only brokers the connection; video and chat flow peer to peer. Start a broadcast with "watch host", hand out the room ID, and viewers tune in with "watch join".`,
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
