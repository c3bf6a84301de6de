package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"fiscal/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "fiscal",
	Short: "Fiscal CLI - NF-e, receipt and expense bookkeeping for the import operation",
	Long: `Fiscal CLI posts Brazilian import paperwork to the operation's ledger.

It extracts NF-e XML invoices and classifies them into import, internal
transfer or customer sale postings, consolidates ZIP archives of sale
invoices into single entries, reads receipts with OCR to register
expenses, and holds back postings that already exist in the ledger
unless explicitly forced.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Fiscal CLI executed")

		fmt.Println("Welcome to Fiscal CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().String("submitter", "", "Submitter identity postings run under (default: OS username)")
}

// resolveSubmitter returns the identity staged postings are keyed by.
func resolveSubmitter(cmd *cobra.Command) string {
	if submitter, _ := cmd.Flags().GetString("submitter"); submitter != "" {
		return submitter
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "operator"
}
