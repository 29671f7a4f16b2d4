package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datafold/datafold/pkg/log"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "datafold",
	Short: "DataFold - content-addressed data platform core",
	Long: `DataFold is the embedded core of a content-addressed data
platform: an append-only atom store, schema-governed mutation and query
engines, and a transform orchestrator, wrapped in a single binary.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (optional)")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the embedded store's data directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(mutateCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(keysCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
