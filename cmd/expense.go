package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fiscal/internal/config"
	"fiscal/internal/logger"
	"fiscal/internal/workflow"
)

var expenseCmd = &cobra.Command{
	Use:   "expense [reference] [value] [description...]",
	Short: "Register an expense directly, without a receipt",
	Long: `Register an expense in the ledger from the command line, skipping the
receipt and OCR flow entirely.

The reference is taken as given (uppercased), the value accepts comma or
dot decimals, and the remaining arguments form the description. The
category is derived from the description text: the first standard
category name it contains wins, anything else falls under Outros. The
expense is dated today and posted immediately, with no duplicate check.

Posting uses the same environment variables as 'fiscal invoice'.`,
	Example: `  # Register a freight payment
  fiscal expense YWXS2025115 1234,56 Pagamento frete nacional

  # Values accept dot decimals too
  fiscal expense YWXS2025115 89.90 Taxa SISCOMEX complementar

  # Rehearse against an in-memory ledger
  fiscal expense YWXS2025115 500 Armazenagem extra --dry-run`,
	Args: cobra.MinimumNArgs(3),
	RunE: runExpense,
}

// ExpenseOutput represents the JSON output structure when --json flag is used
type ExpenseOutput struct {
	Reference   string `json:"reference"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Posted      bool   `json:"posted"`
	Section     string `json:"section"`
}

func init() {
	rootCmd.AddCommand(expenseCmd)

	expenseCmd.Flags().Bool("dry-run", false, "Use an empty in-memory ledger instead of the spreadsheet")
	expenseCmd.Flags().Bool("json", false, "Output results in JSON format")
	expenseCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	expenseCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExpense(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("expense")

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	reference := args[0]
	valueRaw := args[1]
	description := strings.Join(args[2:], " ")

	value, err := workflow.ParseValue(valueRaw)
	if err != nil {
		return fmt.Errorf("could not parse value %q. Use: 1234.56 or 1234,56", valueRaw)
	}

	log.Info().
		Str("reference", reference).
		Str("value", value.String()).
		Msg("Registering manual expense")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	store, err := buildLedgerStore(ctx, cfg, dryRun, log)
	if err != nil {
		return err
	}

	svc := buildWorkflow(store, cfg)
	submitter := resolveSubmitter(cmd)
	slog := logger.WithSubmitter(submitter)

	exp, section, err := svc.PostManualExpense(ctx, reference, value, description)
	if err != nil {
		return handlePostingError(err)
	}

	slog.Info().
		Str("reference", exp.Reference).
		Str("category", exp.Category).
		Str("section", section).
		Msg("Manual expense posted")

	out := &ExpenseOutput{
		Reference:   exp.Reference,
		Date:        exp.Date,
		Category:    exp.Category,
		Value:       exp.Value.String(),
		Description: exp.Description,
		Posted:      true,
		Section:     section,
	}

	return outputExpenseResults(out, outputPath, jsonOutput, log)
}

func outputExpenseResults(out *ExpenseOutput, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput(data, outputPath, log)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Expense posted to %s\n", out.Section)
	fmt.Fprintf(&b, "Reference: %s\n", out.Reference)
	fmt.Fprintf(&b, "Date: %s\n", out.Date)
	fmt.Fprintf(&b, "Category: %s\n", out.Category)
	fmt.Fprintf(&b, "Value: %s\n", out.Value)
	fmt.Fprintf(&b, "Description: %s\n", out.Description)

	return writeOutput([]byte(b.String()), outputPath, log)
}
