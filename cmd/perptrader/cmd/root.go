package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "perptrader",
	Short: "A leveraged perpetual futures trading bot with a bar-by-bar backtester",
	Long: `Perptrader trades one USDT-margined perpetual on Binance futures.

It provides tools for:
  - Backtesting the strategy on 5m bars with the same engine the bot uses
  - Running the bot live, against the venue or a paper order book
  - Querying the trade journal and equity history
  - Generating and validating configuration files`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var (
	cfgFile  string
	logLevel string
	console  bool

	cfg *config.Config
	log *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML or JSON config (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&console, "console", false, "human readable logs")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	cfg = c

	newLogger := logger.New
	if console {
		newLogger = logger.NewConsole
	}
	l, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log = l
	return nil
}
