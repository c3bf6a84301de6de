package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fiscal/internal/bundle"
	"fiscal/internal/config"
	"fiscal/internal/logger"
	"fiscal/internal/nfe"
	"fiscal/pkg/models"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle [zip-file]",
	Short: "Consolidate a ZIP of sale NF-e XMLs into one ledger entry",
	Long: `Process a ZIP archive of NF-e XML files and consolidate the customer
sale invoices it contains into a single ledger entry under one import
process reference.

Every .xml entry in the archive is extracted, nested directories
included. Return shipments are counted and left out, and entries that
cannot be parsed are skipped. The consolidated entry carries the sum of
the invoice values and identifies the batch as "ZIP com N NFs".

Only customer sale bundles can be posted. Posting uses the same
environment variables as 'fiscal invoice'.`,
	Example: `  # Inspect an archive without writing anything
  fiscal bundle notas.zip

  # Post the consolidated sale entry
  fiscal bundle notas.zip --pi "PI: YWXS2025115" --post

  # Rehearse against an in-memory ledger
  fiscal bundle notas.zip --pi "PI: YWXS2025115" --post --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBundle,
}

// BundleOutput represents the JSON output structure when --json flag is used
type BundleOutput struct {
	FileName               string   `json:"file_name"`
	Reference              string   `json:"reference,omitempty"`
	InvoiceCount           int      `json:"invoice_count"`
	TotalValue             string   `json:"total_value"`
	ReturnShipmentsSkipped int      `json:"return_shipments_skipped,omitempty"`
	InvoiceNumbers         []string `json:"invoice_numbers"`
	Posted                 bool     `json:"posted"`
	Section                string   `json:"section,omitempty"`
}

func init() {
	rootCmd.AddCommand(bundleCmd)

	bundleCmd.Flags().String("pi", "", "Import process reference, e.g. \"PI: YWXS2025115\"")
	bundleCmd.Flags().Bool("post", false, "Write the consolidated posting to the ledger")
	bundleCmd.Flags().Bool("dry-run", false, "Use an empty in-memory ledger instead of the spreadsheet")
	bundleCmd.Flags().Bool("json", false, "Output results in JSON format")
	bundleCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	bundleCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runBundle(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("bundle")

	pi, _ := cmd.Flags().GetString("pi")
	post, _ := cmd.Flags().GetBool("post")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	zipPath := args[0]

	log.Info().
		Str("file", zipPath).
		Bool("post", post).
		Msg("Starting ZIP bundle processing")

	if _, err := validateInputFile(zipPath, []string{".zip"}, log); err != nil {
		return err
	}

	reference, err := resolveReference(pi)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(zipPath)
	if err != nil {
		log.Error().Err(err).Str("file", zipPath).Msg("Failed to read ZIP file")
		return fmt.Errorf("failed to read ZIP file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	entities := nfe.Entities{
		InternalOriginTaxID: cfg.InternalOriginTaxID,
		InternalDestTaxID:   cfg.InternalDestTaxID,
	}

	res, err := bundle.Process(data, entities)
	if err != nil {
		if errors.Is(err, bundle.ErrUnreadableArchive) {
			return fmt.Errorf("could not open the archive: %s is not a readable ZIP file", zipPath)
		}
		return fmt.Errorf("bundle processing failed: %w", err)
	}

	log.Info().
		Int("invoices", res.Count()).
		Int("return_shipments_skipped", res.ReturnShipmentsSkipped).
		Str("total_value", res.TotalValue.String()).
		Msg("Bundle processed")

	out := bundleOutput(filepath.Base(zipPath), reference, res)

	if post {
		ctx, cancel := createContextWithTimeout(timeoutSecs, log)
		defer cancel()

		store, storeErr := buildLedgerStore(ctx, cfg, dryRun, log)
		if storeErr != nil {
			return storeErr
		}

		svc := buildWorkflow(store, cfg)
		submitter := resolveSubmitter(cmd)
		slog := logger.WithSubmitter(submitter)

		if stageErr := svc.StageBundle(ctx, submitter, res, reference); stageErr != nil {
			return handlePostingError(stageErr)
		}

		outcome, confirmErr := svc.ConfirmBundle(ctx, submitter)
		if confirmErr != nil {
			return handlePostingError(confirmErr)
		}

		out.Posted = true
		out.Section = outcome.Section
		slog.Info().
			Int("invoices", res.Count()).
			Str("section", outcome.Section).
			Msg("Bundle posted")
	}

	return outputBundleResults(out, outputPath, jsonOutput, log)
}

func bundleOutput(fileName, reference string, res *models.BundleResult) *BundleOutput {
	numbers := make([]string, 0, res.Count())
	for _, rec := range res.Invoices {
		numbers = append(numbers, rec.InvoiceNumber)
	}

	return &BundleOutput{
		FileName:               fileName,
		Reference:              reference,
		InvoiceCount:           res.Count(),
		TotalValue:             res.TotalValue.String(),
		ReturnShipmentsSkipped: res.ReturnShipmentsSkipped,
		InvoiceNumbers:         numbers,
	}
}

func outputBundleResults(out *BundleOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Bundle %s ===\n", out.FileName)
	fmt.Fprintf(&b, "Invoices: %d\n", out.InvoiceCount)
	fmt.Fprintf(&b, "Total value: %s\n", out.TotalValue)
	if out.Reference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", out.Reference)
	}
	if out.ReturnShipmentsSkipped > 0 {
		fmt.Fprintf(&b, "Return shipments skipped: %d\n", out.ReturnShipmentsSkipped)
	}
	if len(out.InvoiceNumbers) > 0 {
		fmt.Fprintf(&b, "Invoice numbers: %s\n", strings.Join(out.InvoiceNumbers, ", "))
	}
	if out.Posted {
		fmt.Fprintf(&b, "\nPosted to section %s as \"ZIP com %d NFs\"\n", out.Section, out.InvoiceCount)
	}

	return writeOutput([]byte(b.String()), outputPath, log)
}
