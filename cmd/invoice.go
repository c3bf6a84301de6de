package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fiscal/internal/config"
	"fiscal/internal/dedup"
	"fiscal/internal/ledger"
	"fiscal/internal/ledger/memory"
	"fiscal/internal/ledger/sheets"
	"fiscal/internal/logger"
	"fiscal/internal/nfe"
	"fiscal/internal/session"
	"fiscal/internal/workflow"
	"fiscal/pkg/models"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice [xml-file]",
	Short: "Extract an NF-e XML, classify it and post it to the ledger",
	Long: `Process an NF-e XML file: extract the invoice fields, classify the
transaction by operation nature and the corporate tax IDs involved,
check the ledger for the invoice number, and with --post write the
posting to the section the classification selects.

Return shipments (REMESSA) are recognized and never posted.

Required environment variables for posting:
  SPREADSHEET_ID - Ledger spreadsheet ID or URL
  CREDENTIALS_JSON - Inline service account JSON, OR
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file

Optional environment variables:
  CNPJ_INTERNAL_ORIGIN, CNPJ_INTERNAL_DEST - Corporate tax IDs used by
  the classifier (defaults match the import operation)`,
	Example: `  # Inspect an NF-e without writing anything
  fiscal invoice nota.xml

  # Post under an import process reference
  fiscal invoice nota.xml --pi "PI: YWXS2025115" --post

  # Post even though the invoice number is already in the ledger
  fiscal invoice nota.xml --pi "PI: YWXS2025115" --post --force

  # Rehearse the posting against an empty in-memory ledger
  fiscal invoice nota.xml --pi "PI: YWXS2025115" --post --dry-run

  # Machine-readable result
  fiscal invoice nota.xml --json -o resultado.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoice,
}

// InvoiceOutput represents the JSON output structure when --json flag is used
type InvoiceOutput struct {
	FileName        string         `json:"file_name"`
	InvoiceNumber   string         `json:"invoice_number"`
	Reference       string         `json:"reference"`
	IssueDate       string         `json:"issue_date"`
	Type            string         `json:"type"`
	OperationNature string         `json:"operation_nature"`
	EmitterName     string         `json:"emitter_name"`
	EmitterTaxID    string         `json:"emitter_tax_id"`
	RecipientName   string         `json:"recipient_name"`
	RecipientTaxID  string         `json:"recipient_tax_id"`
	ProductsValue   string         `json:"products_value"`
	InvoiceValue    string         `json:"invoice_value"`
	ICMS            string         `json:"icms"`
	IPI             string         `json:"ipi"`
	PIS             string         `json:"pis"`
	COFINS          string         `json:"cofins"`
	ImportDuty      string         `json:"import_duty"`
	AFRMM           string         `json:"afrmm"`
	SISCOMEX        string         `json:"siscomex"`
	Duplicate       *DuplicateInfo `json:"duplicate,omitempty"`
	Posted          bool           `json:"posted"`
	Section         string         `json:"section,omitempty"`
}

// DuplicateInfo points at the ledger row that already holds the posting.
type DuplicateInfo struct {
	Section string `json:"section,omitempty"`
	Row     int    `json:"row"`
	Date    string `json:"date,omitempty"`
}

func init() {
	rootCmd.AddCommand(invoiceCmd)

	invoiceCmd.Flags().String("pi", "", "Import process reference, e.g. \"PI: YWXS2025115\"")
	invoiceCmd.Flags().Bool("post", false, "Write the posting to the ledger")
	invoiceCmd.Flags().Bool("force", false, "Post even when the invoice number is already in the ledger")
	invoiceCmd.Flags().Bool("dry-run", false, "Use an empty in-memory ledger instead of the spreadsheet")
	invoiceCmd.Flags().Bool("json", false, "Output results in JSON format")
	invoiceCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	invoiceCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runInvoice(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")

	pi, _ := cmd.Flags().GetString("pi")
	post, _ := cmd.Flags().GetBool("post")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	xmlPath := args[0]

	log.Info().
		Str("file", xmlPath).
		Bool("post", post).
		Bool("dry_run", dryRun).
		Msg("Starting NF-e processing")

	if _, err := validateInputFile(xmlPath, []string{".xml"}, log); err != nil {
		return err
	}

	reference, err := resolveReference(pi)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(xmlPath)
	if err != nil {
		log.Error().Err(err).Str("file", xmlPath).Msg("Failed to read XML file")
		return fmt.Errorf("failed to read XML file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	rec, err := nfe.Extract(data, reference)
	if err != nil {
		if errors.Is(err, nfe.ErrMalformedDocument) {
			return fmt.Errorf("could not read the NF-e: %s does not look like a valid NF-e XML", xmlPath)
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	entities := nfe.Entities{
		InternalOriginTaxID: cfg.InternalOriginTaxID,
		InternalDestTaxID:   cfg.InternalDestTaxID,
	}
	typ := nfe.Classify(rec, entities)

	log.Info().
		Str("invoice_number", rec.InvoiceNumber).
		Str("type", string(typ)).
		Str("invoice_value", rec.InvoiceValue.String()).
		Msg("NF-e extracted")

	out := invoiceOutput(filepath.Base(xmlPath), rec, typ)

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	store, storeErr := buildLedgerStore(ctx, cfg, dryRun, log)
	if storeErr != nil {
		if post {
			return storeErr
		}
		log.Warn().Err(storeErr).Msg("Ledger unavailable, skipping duplicate check")
	}

	if storeErr == nil && !post {
		if match, checkErr := dedup.NewDetector(store).CheckInvoice(ctx, rec.InvoiceNumber); checkErr != nil {
			log.Warn().Err(checkErr).Msg("Duplicate check unavailable")
		} else if match != nil {
			out.Duplicate = &DuplicateInfo{Section: match.Section, Row: match.Row, Date: match.Date}
		}
	}

	if post {
		svc := buildWorkflow(store, cfg)
		submitter := resolveSubmitter(cmd)
		slog := logger.WithSubmitter(submitter)

		match, stageErr := svc.StageInvoice(ctx, submitter, rec, typ)
		if stageErr != nil {
			return handlePostingError(stageErr)
		}
		if match != nil {
			out.Duplicate = &DuplicateInfo{Section: match.Section, Row: match.Row, Date: match.Date}
		}

		outcome, confirmErr := svc.ConfirmInvoice(ctx, submitter, force)
		if confirmErr != nil {
			return handlePostingError(confirmErr)
		}
		if outcome.InvoiceDuplicate != nil {
			out.Duplicate = &DuplicateInfo{
				Section: outcome.InvoiceDuplicate.Section,
				Row:     outcome.InvoiceDuplicate.Row,
				Date:    outcome.InvoiceDuplicate.Date,
			}
			if outErr := outputInvoiceResults(out, outputPath, jsonOutput, log); outErr != nil {
				return outErr
			}
			return fmt.Errorf("NF %s is already in the ledger (%s, row %d). Re-run with --force to post anyway",
				rec.InvoiceNumber, outcome.InvoiceDuplicate.Section, outcome.InvoiceDuplicate.Row)
		}

		out.Posted = true
		out.Section = outcome.Section
		slog.Info().
			Str("invoice_number", rec.InvoiceNumber).
			Str("section", outcome.Section).
			Msg("Invoice posted")
	}

	return outputInvoiceResults(out, outputPath, jsonOutput, log)
}

func invoiceOutput(fileName string, rec *models.InvoiceRecord, typ models.TransactionType) *InvoiceOutput {
	return &InvoiceOutput{
		FileName:        fileName,
		InvoiceNumber:   rec.InvoiceNumber,
		Reference:       rec.Reference,
		IssueDate:       rec.IssueDate,
		Type:            string(typ),
		OperationNature: rec.OperationNature,
		EmitterName:     rec.EmitterName,
		EmitterTaxID:    rec.EmitterTaxID,
		RecipientName:   rec.RecipientName,
		RecipientTaxID:  rec.RecipientTaxID,
		ProductsValue:   rec.ProductsValue.String(),
		InvoiceValue:    rec.InvoiceValue.String(),
		ICMS:            rec.ICMS.String(),
		IPI:             rec.IPI.String(),
		PIS:             rec.PIS.String(),
		COFINS:          rec.COFINS.String(),
		ImportDuty:      rec.ImportDuty.String(),
		AFRMM:           rec.AFRMM.String(),
		SISCOMEX:        rec.SISCOMEX.String(),
	}
}

func outputInvoiceResults(out *InvoiceOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== NF-e %s (%s) ===\n", out.InvoiceNumber, out.FileName)
	fmt.Fprintf(&b, "Type: %s\n", out.Type)
	fmt.Fprintf(&b, "Issue date: %s\n", out.IssueDate)
	fmt.Fprintf(&b, "Reference: %s\n", out.Reference)
	fmt.Fprintf(&b, "Nature: %s\n", out.OperationNature)
	fmt.Fprintf(&b, "Emitter: %s (%s)\n", out.EmitterName, out.EmitterTaxID)
	fmt.Fprintf(&b, "Recipient: %s (%s)\n", out.RecipientName, out.RecipientTaxID)
	fmt.Fprintf(&b, "Products value: %s\n", out.ProductsValue)
	fmt.Fprintf(&b, "Invoice value: %s\n", out.InvoiceValue)
	fmt.Fprintf(&b, "Taxes: ICMS %s | IPI %s | PIS %s | COFINS %s\n", out.ICMS, out.IPI, out.PIS, out.COFINS)
	fmt.Fprintf(&b, "Import charges: II %s | AFRMM %s | SISCOMEX %s\n", out.ImportDuty, out.AFRMM, out.SISCOMEX)

	if out.Duplicate != nil {
		fmt.Fprintf(&b, "\nAlready in the ledger: %s, row %d (date %s)\n", out.Duplicate.Section, out.Duplicate.Row, out.Duplicate.Date)
	}
	if out.Posted {
		fmt.Fprintf(&b, "\nPosted to section %s\n", out.Section)
	}

	return writeOutput([]byte(b.String()), outputPath, log)
}

// validateInputFile checks the document exists, is a regular non-empty file,
// and warns when the extension is not one the command expects.
func validateInputFile(path string, wantExts []string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().Str("file", path).Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if fileInfo.Size() == 0 {
		log.Error().Str("file", path).Msg("File is empty")
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	known := false
	for _, want := range wantExts {
		if ext == want {
			known = true
			break
		}
	}
	if !known {
		log.Warn().
			Str("file", path).
			Str("extension", ext).
			Strs("expected", wantExts).
			Msg("File extension does not match the expected document type")
	}

	return fileInfo, nil
}

// resolveReference extracts the process token from the --pi flag text.
// An empty flag is allowed; garbage that yields no token is not.
func resolveReference(pi string) (string, error) {
	if strings.TrimSpace(pi) == "" {
		return "", nil
	}
	token := workflow.ExtractReference(pi)
	if token == "" {
		return "", fmt.Errorf("could not find a process reference in %q. Use the PI format, e.g.: \"PI: YWXS2025115\"", pi)
	}
	return token, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	// Handle interrupt signals gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling operation")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// buildLedgerStore connects the ledger backend: the configured spreadsheet,
// or an in-memory store when --dry-run asks for a rehearsal.
func buildLedgerStore(ctx context.Context, cfg *config.Config, dryRun bool, log zerolog.Logger) (ledger.Store, error) {
	if dryRun {
		log.Info().Msg("Dry run: using an in-memory ledger, nothing will be written to the spreadsheet")
		return memory.NewStore(), nil
	}

	if err := cfg.ValidateLedger(); err != nil {
		return nil, fmt.Errorf("ledger not configured: %w\n\nSet SPREADSHEET_ID to the ledger spreadsheet ID or URL, or pass --dry-run", err)
	}

	store, err := sheets.NewStore(ctx, cfg.SpreadsheetID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to the ledger spreadsheet")
		return nil, fmt.Errorf("failed to connect to the ledger: %w", err)
	}

	return store, nil
}

// buildWorkflow wires the posting workflow over a ledger store.
func buildWorkflow(store ledger.Store, cfg *config.Config) *workflow.Service {
	return workflow.NewService(
		session.NewMemoryStore(cfg.SessionTTL),
		ledger.NewWriter(store),
		dedup.NewDetector(store),
		nfe.Entities{
			InternalOriginTaxID: cfg.InternalOriginTaxID,
			InternalDestTaxID:   cfg.InternalDestTaxID,
		},
	)
}

// handlePostingError translates workflow errors into actionable messages.
func handlePostingError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrReturnShipment):
		return fmt.Errorf("this NF-e is a return shipment (REMESSA) and is never posted")
	case errors.Is(err, workflow.ErrUnknownType):
		return fmt.Errorf("could not classify this NF-e from its operation nature and tax IDs, so it was not posted")
	case errors.Is(err, workflow.ErrNoReference):
		return fmt.Errorf("an import process reference is required. Pass --pi, e.g.: --pi \"PI: YWXS2025115\"")
	case errors.Is(err, workflow.ErrNoValue):
		return fmt.Errorf("no expense value chosen. Pass --value, e.g.: --value 1234,56")
	case errors.Is(err, workflow.ErrNoCategory):
		return fmt.Errorf("no valid expense category. Pass --category with one of: %s", strings.Join(ledger.ExpenseCategories, ", "))
	case errors.Is(err, ledger.ErrEmptyBundle):
		return fmt.Errorf("the archive contains no postable invoices")
	case errors.Is(err, ledger.ErrNotPostable):
		return fmt.Errorf("only customer sale invoices can be posted this way")
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("operation timed out. Try increasing --timeout")
	default:
		return err
	}
}

// writeOutput sends rendered results to the output file or stdout.
func writeOutput(data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			log.Error().Err(err).Str("output_file", outputPath).Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(data)).
			Msg("Results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Println()
	}
	return nil
}
