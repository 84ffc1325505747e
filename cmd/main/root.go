package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.4.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trading-relay",
	Short: "Real-time relay between a brokerage websocket API and trading dashboards",
	Long: `trading-relay keeps one authorized upstream connection to the brokerage,
mirrors ticks, balance and open positions in memory, and serves them to
dashboards over REST and a websocket push channel.

A gRPC control service exposes status, start/stop and settings for tooling.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trading-relay version %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config/default.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}
