package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "spanscope",
	Short: "Frame profiler fed by tracing spans",
	Long: `spanscope runs a host loop whose tracing spans are recorded as profiler
scopes, one profiler frame per iteration, and inspects the recorded frames.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)

	rootCmd.PersistentFlags().String("config", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable development logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
