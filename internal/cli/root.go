package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	nickname  string
	userID    string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pixelctl",
		Short: "CLI client for the pixelfield canvas server",
		Long: `pixelctl talks to a running pixelfield server over its websocket
protocol: paint pixels, stream live canvas events, and dump field state.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:8080/ws", "Websocket URL of the server")
	rootCmd.PersistentFlags().StringVar(&nickname, "nickname", "pixelctl", "Display name to log in with")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "Existing actor id (omit on first login)")

	rootCmd.AddCommand(newPaintCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newFieldCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
