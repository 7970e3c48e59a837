package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tailgame",
	Short: "尾盘博弈 - A股尾盘选股",
	Long: `tailgame CLI

Polls A-share snapshot APIs (tushare, eastmoney, sina, tencent), filters and
scores the market, recommends one stock inside the first window and locks the
final pick for the day.

Usage:
  go run ./cmd/tailgame [command]

Examples:
  go run ./cmd/tailgame serve
  go run ./cmd/tailgame scan --at 14:30
  go run ./cmd/tailgame watch --symbol 002400 --support 12.26
  go run ./cmd/tailgame sources
  go run ./cmd/tailgame migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default is $STRATEGY_FILE or built-in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
