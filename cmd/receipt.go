package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fiscal/internal/config"
	"fiscal/internal/dedup"
	"fiscal/internal/ledger"
	"fiscal/internal/logger"
	"fiscal/internal/ocr"
	"fiscal/internal/receipt"
	"fiscal/pkg/models"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt [file]",
	Short: "Read a payment receipt with OCR and register the expense",
	Long: `Read a payment receipt (PDF, photo, or plain text) and register the
expense under an import process reference.

PDF and image files go through Google Cloud Vision OCR with Portuguese
language hints; .txt files are read as-is. The recognized text is
scanned for monetary values, a date and an expense category. When the
receipt shows more than one value, the largest is taken as the total
unless --value picks another.

Before posting, the expense section is checked for an entry under the
same reference within 100 days and 1% of the value. A match holds the
posting back unless --force is given.

Required environment variables for OCR and posting:
  CREDENTIALS_JSON - Inline service account JSON, OR
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file
  SPREADSHEET_ID - Ledger spreadsheet ID or URL (posting only)`,
	Example: `  # Inspect what the OCR reads out of a receipt
  fiscal receipt recibo.pdf

  # Register the expense under a process reference
  fiscal receipt recibo.pdf --pi "PI: YWXS2025115" --post

  # Override the guessed category and value
  fiscal receipt recibo.jpg --pi "PI: YWXS2025115" --category Armazenagem --value 1234,56 --post

  # A category outside the fixed list needs a description
  fiscal receipt recibo.pdf --pi "PI: YWXS2025115" --category Outros --description "Taxa de liberação" --post

  # Post even though a similar expense is already in the ledger
  fiscal receipt recibo.pdf --pi "PI: YWXS2025115" --post --force`,
	Args: cobra.ExactArgs(1),
	RunE: runReceipt,
}

// ReceiptOutput represents the JSON output structure when --json flag is used
type ReceiptOutput struct {
	FileName    string                `json:"file_name"`
	Reference   string                `json:"reference,omitempty"`
	Date        string                `json:"date"`
	Category    string                `json:"category"`
	Description string                `json:"description,omitempty"`
	Values      []string              `json:"values"`
	ChosenValue string                `json:"chosen_value,omitempty"`
	TextPreview string                `json:"text_preview,omitempty"`
	Duplicate   *ExpenseDuplicateInfo `json:"duplicate,omitempty"`
	Posted      bool                  `json:"posted"`
	Section     string                `json:"section,omitempty"`
}

// ExpenseDuplicateInfo describes the closest expense already in the ledger.
type ExpenseDuplicateInfo struct {
	Row         int    `json:"row"`
	Date        string `json:"date,omitempty"`
	Category    string `json:"category,omitempty"`
	Value       string `json:"value,omitempty"`
	DiffPercent string `json:"diff_percent,omitempty"`
	Total       int    `json:"total"`
}

func init() {
	rootCmd.AddCommand(receiptCmd)

	receiptCmd.Flags().String("pi", "", "Import process reference, e.g. \"PI: YWXS2025115\"")
	receiptCmd.Flags().String("category", "", "Expense category (overrides the guess)")
	receiptCmd.Flags().String("value", "", "Expense value (overrides the extracted values), e.g. 1234,56")
	receiptCmd.Flags().String("description", "", "Free-text description, required with --category Outros")
	receiptCmd.Flags().String("note", "", "Optional observation written with the expense")
	receiptCmd.Flags().Bool("post", false, "Write the expense to the ledger")
	receiptCmd.Flags().Bool("force", false, "Post even when a similar expense is already in the ledger")
	receiptCmd.Flags().Bool("dry-run", false, "Use an empty in-memory ledger instead of the spreadsheet")
	receiptCmd.Flags().Bool("json", false, "Output results in JSON format")
	receiptCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	receiptCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runReceipt(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("receipt")

	pi, _ := cmd.Flags().GetString("pi")
	category, _ := cmd.Flags().GetString("category")
	valueRaw, _ := cmd.Flags().GetString("value")
	description, _ := cmd.Flags().GetString("description")
	note, _ := cmd.Flags().GetString("note")
	post, _ := cmd.Flags().GetBool("post")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	filePath := args[0]

	log.Info().
		Str("file", filePath).
		Bool("post", post).
		Msg("Starting receipt processing")

	if _, err := validateInputFile(filePath, []string{".pdf", ".png", ".jpg", ".jpeg", ".txt"}, log); err != nil {
		return err
	}

	reference, err := resolveReference(pi)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	text, err := recognizeReceipt(ctx, filePath, log)
	if err != nil {
		return err
	}

	facts := receipt.Extract(text)

	log.Info().
		Int("values_found", len(facts.Values)).
		Str("date", facts.Date).
		Str("category_guess", facts.Category).
		Msg("Receipt facts extracted")

	out := receiptOutput(filepath.Base(filePath), reference, facts)

	if !post {
		return outputReceiptResults(out, outputPath, jsonOutput, log)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	store, err := buildLedgerStore(ctx, cfg, dryRun, log)
	if err != nil {
		return err
	}

	svc := buildWorkflow(store, cfg)
	submitter := resolveSubmitter(cmd)
	slog := logger.WithSubmitter(submitter)

	if err := svc.StageReceipt(ctx, submitter, facts, reference); err != nil {
		return handlePostingError(err)
	}

	if category != "" {
		needsDescription, catErr := svc.SelectCategory(ctx, submitter, category)
		if catErr != nil {
			return fmt.Errorf("invalid category %q. Valid categories: %s", category, strings.Join(ledger.ExpenseCategories, ", "))
		}
		if needsDescription && description == "" {
			return fmt.Errorf("--category %s needs --description with the expense text", ledger.CategoryOther)
		}
	}
	if description != "" {
		if descErr := svc.SetCustomDescription(ctx, submitter, description); descErr != nil {
			return handlePostingError(descErr)
		}
	}
	if note != "" {
		if noteErr := svc.SetNote(ctx, submitter, note); noteErr != nil {
			return handlePostingError(noteErr)
		}
	}

	switch {
	case valueRaw != "":
		v, valErr := svc.SetManualValue(ctx, submitter, valueRaw)
		if valErr != nil {
			return fmt.Errorf("could not parse --value %q. Use: 1234.56 or 1234,56", valueRaw)
		}
		out.ChosenValue = v.String()
	case len(facts.Values) > 1:
		// Candidates come sorted largest first; the largest is the
		// presumed total.
		v, selErr := svc.SelectValue(ctx, submitter, 0)
		if selErr != nil {
			return handlePostingError(selErr)
		}
		out.ChosenValue = v.String()
		log.Info().
			Str("value", v.String()).
			Msg("Multiple values found, using the largest")
	case len(facts.Values) == 1:
		out.ChosenValue = facts.Values[0].String()
	}

	outcome, err := svc.ConfirmExpense(ctx, submitter, force)
	if err != nil {
		return handlePostingError(err)
	}
	if outcome.ExpenseDuplicate != nil {
		out.Duplicate = expenseDuplicateInfo(outcome.ExpenseDuplicate)
		if outErr := outputReceiptResults(out, outputPath, jsonOutput, log); outErr != nil {
			return outErr
		}
		return fmt.Errorf("a similar expense is already in the ledger (row %d, %s). Re-run with --force to post anyway",
			outcome.ExpenseDuplicate.Row, outcome.ExpenseDuplicate.Value.String())
	}

	out.Posted = true
	out.Section = outcome.Section
	slog.Info().
		Str("reference", reference).
		Str("section", outcome.Section).
		Msg("Expense posted")

	return outputReceiptResults(out, outputPath, jsonOutput, log)
}

// recognizeReceipt turns the receipt file into text. Plain text files are
// read directly; PDFs and images go through the Vision OCR service.
func recognizeReceipt(ctx context.Context, filePath string, log zerolog.Logger) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	if ext == ".txt" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return string(data), nil
	}

	svc, err := createOCRService(ctx, log)
	if err != nil {
		return "", err
	}
	defer svc.Close()

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var text string
	if ext == ".pdf" {
		text, err = svc.RecognizePDF(ctx, file)
	} else {
		text, err = svc.RecognizeImage(ctx, file)
	}
	if err != nil {
		return "", handleOCRError(err, log)
	}

	log.Debug().
		Int("text_length", len(text)).
		Msg("OCR completed")
	return text, nil
}

// createOCRService creates and configures the OCR service
func createOCRService(ctx context.Context, log zerolog.Logger) (*ocr.VisionService, error) {
	// Check if credentials are configured before attempting to create service
	hasCredentials := os.Getenv("CREDENTIALS_JSON") != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""

	if !hasCredentials {
		log.Error().Msg("Google Cloud credentials not configured")
		return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export CREDENTIALS_JSON with inline service account JSON:\n" +
			"   export CREDENTIALS_JSON='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
			"2. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"3. Check that your .env file contains the credentials variables")
	}

	ocrService, err := ocr.NewVisionService(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().
				Err(err).
				Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n"+
				"1. Credentials file exists and is readable\n"+
				"2. JSON format is valid\n"+
				"3. Service account has proper permissions\n\n"+
				"Original error: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create OCR service")
		return nil, fmt.Errorf("failed to create OCR service: %w", err)
	}

	log.Debug().Msg("OCR service created successfully")
	return ocrService, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum 5 pages). Try splitting into smaller files")
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document. The receipt may be blank or illegible")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "auth:") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials:\n\n"+
			"1. Set CREDENTIALS_JSON with inline service account JSON, or\n"+
			"2. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path\n"+
			"3. Ensure the service account has 'Cloud Vision API User' role\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account has the 'Cloud Vision API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud Vision API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

func receiptOutput(fileName, reference string, facts *models.ReceiptFacts) *ReceiptOutput {
	values := make([]string, 0, len(facts.Values))
	for _, v := range facts.Values {
		values = append(values, v.String())
	}

	return &ReceiptOutput{
		FileName:    fileName,
		Reference:   reference,
		Date:        facts.Date,
		Category:    facts.Category,
		Values:      values,
		TextPreview: facts.RawText,
	}
}

func expenseDuplicateInfo(match *dedup.ExpenseMatch) *ExpenseDuplicateInfo {
	return &ExpenseDuplicateInfo{
		Row:         match.Row,
		Date:        match.Date,
		Category:    match.Category,
		Value:       match.Value.String(),
		DiffPercent: match.DiffPercent.StringFixed(2),
		Total:       match.Total,
	}
}

func outputReceiptResults(out *ReceiptOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Receipt %s ===\n", out.FileName)
	fmt.Fprintf(&b, "Date: %s\n", out.Date)
	fmt.Fprintf(&b, "Category: %s\n", out.Category)
	if out.Reference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", out.Reference)
	}
	if len(out.Values) > 0 {
		fmt.Fprintf(&b, "Values found: %s\n", strings.Join(out.Values, ", "))
	} else {
		fmt.Fprintf(&b, "Values found: none\n")
	}
	if out.ChosenValue != "" {
		fmt.Fprintf(&b, "Chosen value: %s\n", out.ChosenValue)
	}
	if out.TextPreview != "" {
		fmt.Fprintf(&b, "\nText preview:\n%s\n", out.TextPreview)
	}
	if out.Duplicate != nil {
		fmt.Fprintf(&b, "\nSimilar expense already in the ledger: row %d, %s on %s (%s%% off", out.Duplicate.Row, out.Duplicate.Value, out.Duplicate.Date, out.Duplicate.DiffPercent)
		if out.Duplicate.Total > 1 {
			fmt.Fprintf(&b, ", %d close matches", out.Duplicate.Total)
		}
		b.WriteString(")\n")
	}
	if out.Posted {
		fmt.Fprintf(&b, "\nExpense posted to %s\n", out.Section)
	}

	return writeOutput([]byte(b.String()), outputPath, log)
}
