// Package sheets implements the ledger store on a Google Sheets
// spreadsheet, one worksheet per ledger section.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"fiscal/internal/ledger"
	"fiscal/internal/logger"
)

// Store is a ledger.Store backed by a Google Sheets spreadsheet.
type Store struct {
	svc           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates a store for the given spreadsheet. The reference may be
// a bare spreadsheet ID or a full Google Sheets URL.
func NewStore(ctx context.Context, spreadsheetRef string) (*Store, error) {
	const op = "NewStore"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := resolveSpreadsheetID(spreadsheetRef)
	if err != nil {
		return nil, fmt.Errorf("%s: resolving spreadsheet reference: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Resolved spreadsheet ID")

	creds, err := loadCredentials()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing credentials: %w", op, err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: creating sheets client: %w", op, err)
	}

	return &Store{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// resolveSpreadsheetID accepts either a bare spreadsheet ID or a full
// Google Sheets URL and returns the ID.
func resolveSpreadsheetID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("spreadsheet reference is empty")
	}

	if !strings.Contains(ref, "/") {
		return ref, nil
	}

	re := regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	matches := re.FindStringSubmatch(ref)
	if len(matches) < 2 {
		return "", fmt.Errorf("unrecognized Google Sheets URL format")
	}
	return matches[1], nil
}

// loadCredentials reads service account credentials from CREDENTIALS_JSON
// (inline JSON) or GOOGLE_APPLICATION_CREDENTIALS (file path).
func loadCredentials() ([]byte, error) {
	if credsJSON := os.Getenv("CREDENTIALS_JSON"); credsJSON != "" {
		return []byte(credsJSON), nil
	}
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return creds, nil
	}
	return nil, fmt.Errorf("neither CREDENTIALS_JSON nor GOOGLE_APPLICATION_CREDENTIALS is set")
}

// AppendRow appends one row after the last row of the section's worksheet.
func (s *Store) AppendRow(ctx context.Context, section string, values []interface{}) error {
	const op = "AppendRow"

	valueRange := &sheets.ValueRange{Values: [][]interface{}{values}}

	_, err := s.svc.Spreadsheets.Values.Append(
		s.spreadsheetID,
		fmt.Sprintf("%s!A1", section),
		valueRange,
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()

	if err != nil {
		if isMissingRange(err) {
			return fmt.Errorf("%s: section %s: %w", op, section, ledger.ErrSectionNotFound)
		}
		return fmt.Errorf("%s: appending to %s: %w", op, section, err)
	}

	s.log.Debug().
		Str("section", section).
		Int("cells", len(values)).
		Msg("Row appended to sheet")

	return nil
}

// ReadAllRows returns every row of the section's worksheet, header
// included, with each cell converted to a trimmed string.
func (s *Store) ReadAllRows(ctx context.Context, section string) ([][]string, error) {
	const op = "ReadAllRows"

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, section).Context(ctx).Do()
	if err != nil {
		if isMissingRange(err) {
			return nil, fmt.Errorf("%s: section %s: %w", op, section, ledger.ErrSectionNotFound)
		}
		return nil, fmt.Errorf("%s: reading %s: %w", op, section, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = strings.TrimSpace(fmt.Sprintf("%v", cell))
		}
		rows[i] = row
	}

	s.log.Debug().
		Str("section", section).
		Int("rows", len(rows)).
		Msg("Read section from sheet")

	return rows, nil
}

// EnsureSection creates the section's worksheet with a header row when it
// is absent. Existing worksheets are left untouched.
func (s *Store) EnsureSection(ctx context.Context, section string, header []string) error {
	const op = "EnsureSection"

	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: getting spreadsheet: %w", op, err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == section {
			return nil
		}
	}

	s.log.Info().Str("section", section).Msg("Creating ledger section")

	batchReq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: section},
			}},
		},
	}

	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, batchReq).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: creating section %s: %w", op, section, err)
	}
	sheetID := resp.Replies[0].AddSheet.Properties.SheetId

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	valueRange := &sheets.ValueRange{Values: [][]interface{}{headerCells}}

	_, err = s.svc.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A1", section),
		valueRange,
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: writing header for %s: %w", op, section, err)
	}

	if err := s.formatHeader(ctx, sheetID, len(header)); err != nil {
		s.log.Warn().Err(err).Str("section", section).Msg("Failed to format header, continuing anyway")
	}

	return nil
}

// formatHeader makes the header row bold and auto-sizes the columns.
func (s *Store) formatHeader(ctx context.Context, sheetID int64, columns int) error {
	const op = "formatHeader"

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.9,
							Green: 0.9,
							Blue:  0.9,
						},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}

	batchReq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, batchReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// isMissingRange reports whether the API error indicates the worksheet
// does not exist.
func isMissingRange(err error) bool {
	return strings.Contains(err.Error(), "Unable to parse range")
}

// SectionCount is the row count of one ledger section.
type SectionCount struct {
	Name    string
	Entries int
	Present bool
}

// Summary describes the spreadsheet and the state of every ledger section.
type Summary struct {
	SpreadsheetID string
	Title         string
	Sections      []SectionCount
}

// Info returns the spreadsheet title and per-section entry counts. Entry
// counts exclude the header row.
func (s *Store) Info(ctx context.Context) (*Summary, error) {
	const op = "Info"

	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: getting spreadsheet: %w", op, err)
	}

	summary := &Summary{
		SpreadsheetID: s.spreadsheetID,
		Title:         spreadsheet.Properties.Title,
	}

	sections := append([]string(nil), ledger.InvoiceSections...)
	sections = append(sections, ledger.SectionExpenses)

	for _, section := range sections {
		rows, err := s.ReadAllRows(ctx, section)
		if err != nil {
			if errors.Is(err, ledger.ErrSectionNotFound) {
				summary.Sections = append(summary.Sections, SectionCount{Name: section})
				continue
			}
			return nil, fmt.Errorf("%s: counting %s: %w", op, section, err)
		}

		entries := len(rows) - 1
		if entries < 0 {
			entries = 0
		}
		summary.Sections = append(summary.Sections, SectionCount{
			Name:    section,
			Entries: entries,
			Present: true,
		})
	}

	return summary, nil
}
