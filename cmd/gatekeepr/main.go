package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
)

var (
	// Global flags
	debugMode    bool
	logLevel     string
	clientSocket string
	adminSocket  string
	configFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatekeepr",
	Short: "System-wide access-control decision service",
	Long: `Gatekeepr answers whether a (client, user, privilege) triple is permitted,
backed by a persistent hierarchically-bucketed policy database. The daemon
serves untrusted clients over a local socket; this tool also bundles the
administration commands and the checksum generator.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug mode with verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&clientSocket, "socket", "", "Client socket path (default: well-known path)")
	rootCmd.PersistentFlags().StringVar(&adminSocket, "admin-socket", "", "Admin socket path (default: well-known path)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Daemon configuration file")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(bucketCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(descriptionsCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(chsgenCmd)
	rootCmd.AddCommand(versionCmd)
}

// initLogger initializes the logger with the specified settings
func initLogger() {
	log := logger.GetLogger()
	if debugMode {
		log.SetLevel(logger.DebugLevel)
	} else {
		log.SetLevel(logger.ParseLevel(logLevel))
	}
}
