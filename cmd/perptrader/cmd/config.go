package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Secrets (API keys, Telegram token) are never written; set them in the
environment or a .env file:
  PERPTRADER_BINANCE_API_KEY, PERPTRADER_BINANCE_SECRET, PERPTRADER_TELEGRAM_TOKEN

Examples:
  perptrader config init -o perptrader.yaml
  perptrader config validate -f perptrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "perptrader.yaml", "output config file path (.json for JSON)")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  perptrader backtest -c %s --data bars.csv\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account:  %.2f USDT at %.0fx\n", c.Account.InitialCapital, c.Account.Leverage)
	fmt.Fprintf(out, "  Symbol:   %s\n", c.Instrument.Symbol)
	fmt.Fprintf(out, "  Strategy: %s (risk %.1f%%, stop %.1f%%)\n", c.Strategy.Name, c.Risk.RiskPct*100, c.Risk.StopPct*100)
	fmt.Fprintf(out, "  Exits:    tp1 %.1fR closes %.0f%%, tp2 %.1fR\n", c.Exits.TP1Ratio, c.Exits.TP1ClosePct*100, c.Exits.TP2Ratio)
	fmt.Fprintf(out, "  Venue:    testnet=%v real_trading=%v credentials=%v\n", c.Exchange.Testnet, c.Exchange.RealTradingEnabled, c.Exchange.HasCredentials())
	return nil
}
