package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fiscal/internal/config"
	"fiscal/internal/ledger/sheets"
	"fiscal/internal/logger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ledger spreadsheet and its section entry counts",
	Long: `Connect to the configured ledger spreadsheet and report its title and
how many entries each section holds. Sections the spreadsheet does not
have yet are listed as missing; the expense section in particular is
only created on first use.

Required environment variables:
  SPREADSHEET_ID - Ledger spreadsheet ID or URL
  CREDENTIALS_JSON - Inline service account JSON, OR
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file`,
	Example: `  # Human-readable overview
  fiscal status

  # Machine-readable
  fiscal status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// StatusOutput represents the JSON output structure when --json flag is used
type StatusOutput struct {
	SpreadsheetID string          `json:"spreadsheet_id"`
	Title         string          `json:"title"`
	Sections      []SectionStatus `json:"sections"`
}

// SectionStatus reports one ledger section's presence and entry count.
type SectionStatus struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Present bool   `json:"present"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("json", false, "Output results in JSON format")
	statusCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	statusCmd.Flags().Int("timeout", 60, "Request timeout in seconds")
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("status")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := cfg.ValidateLedger(); err != nil {
		return fmt.Errorf("ledger not configured: %w\n\nSet SPREADSHEET_ID to the ledger spreadsheet ID or URL", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	store, err := sheets.NewStore(ctx, cfg.SpreadsheetID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to the ledger spreadsheet")
		return fmt.Errorf("failed to connect to the ledger: %w", err)
	}

	summary, err := store.Info(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger summary")
		return fmt.Errorf("failed to read the ledger: %w", err)
	}

	out := &StatusOutput{
		SpreadsheetID: summary.SpreadsheetID,
		Title:         summary.Title,
	}
	for _, sec := range summary.Sections {
		out.Sections = append(out.Sections, SectionStatus{
			Name:    sec.Name,
			Entries: sec.Entries,
			Present: sec.Present,
		})
	}

	return outputStatusResults(out, outputPath, jsonOutput, log)
}

func outputStatusResults(out *StatusOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Ledger: %s ===\n", out.Title)
	fmt.Fprintf(&b, "Spreadsheet ID: %s\n\n", out.SpreadsheetID)
	for _, sec := range out.Sections {
		if !sec.Present {
			fmt.Fprintf(&b, "%-18s missing (created on first use)\n", sec.Name)
			continue
		}
		fmt.Fprintf(&b, "%-18s %d entries\n", sec.Name, sec.Entries)
	}

	return writeOutput([]byte(b.String()), outputPath, log)
}
