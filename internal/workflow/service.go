// Package workflow drives the staging and confirmation state machine
// between document extraction and ledger posting. Each submitter stages at
// most one document, fills in whatever the posting still needs (reference,
// category, value), and then confirms or cancels.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiscal/internal/dedup"
	"fiscal/internal/ledger"
	"fiscal/internal/logger"
	"fiscal/internal/nfe"
	"fiscal/internal/normalize"
	"fiscal/internal/session"
	"fiscal/pkg/models"
)

// Outcome is the result of a confirmation attempt.
type Outcome struct {
	Posted  bool
	Section string

	// InvoiceDuplicate is set when confirmation stopped because the
	// invoice number is already in the ledger. The staging is kept so a
	// forced confirmation can follow.
	InvoiceDuplicate *dedup.InvoiceMatch

	// ExpenseDuplicate is set when confirmation stopped because a
	// similar expense is already in the ledger.
	ExpenseDuplicate *dedup.ExpenseMatch
}

// Service coordinates sessions, duplicate detection and ledger posting.
type Service struct {
	sessions session.Store
	writer   *ledger.Writer
	detector *dedup.Detector
	entities nfe.Entities
	log      zerolog.Logger
}

// NewService creates a workflow service.
func NewService(sessions session.Store, writer *ledger.Writer, detector *dedup.Detector, entities nfe.Entities) *Service {
	return &Service{
		sessions: sessions,
		writer:   writer,
		detector: detector,
		entities: entities,
		log:      logger.WithComponent("workflow"),
	}
}

// StageInvoice stages an extracted invoice for confirmation. Return
// shipments and unclassifiable invoices are rejected. The ledger is
// checked for the invoice number; a match is returned as an advisory
// finding, with the invoice staged either way.
func (s *Service) StageInvoice(ctx context.Context, submitter string, rec *models.InvoiceRecord, typ models.TransactionType) (*dedup.InvoiceMatch, error) {
	const op = "StageInvoice"

	switch typ {
	case models.TypeReturnShipment:
		return nil, fmt.Errorf("%s: %w", op, ErrReturnShipment)
	case models.TypeUnknown:
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownType)
	}

	match, err := s.detector.CheckInvoice(ctx, rec.InvoiceNumber)
	if err != nil {
		s.log.Warn().Err(err).Str("submitter", submitter).Msg("Duplicate check unavailable, staging without it")
		match = nil
	}

	reference := rec.Reference
	if reference == models.UnknownReference {
		reference = ""
	}

	sub := &models.PendingSubmission{
		ID:        uuid.NewString(),
		Submitter: submitter,
		Kind:      models.KindInvoice,
		StagedAt:  time.Now(),
		Invoice:   rec,
		Type:      typ,
		Reference: reference,
	}
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return nil, fmt.Errorf("%s: storing submission: %w", op, err)
	}

	s.log.Info().
		Str("submitter", submitter).
		Str("invoice_number", rec.InvoiceNumber).
		Str("type", string(typ)).
		Bool("duplicate_found", match != nil).
		Msg("Invoice staged")

	return match, nil
}

// StageBundle stages a processed archive for consolidated posting. The
// bundle's transaction type is the classification of its first invoice.
func (s *Service) StageBundle(ctx context.Context, submitter string, res *models.BundleResult, reference string) error {
	const op = "StageBundle"

	if res.Count() == 0 {
		return fmt.Errorf("%s: %w", op, ledger.ErrEmptyBundle)
	}

	typ := nfe.Classify(res.Invoices[0], s.entities)

	sub := &models.PendingSubmission{
		ID:        uuid.NewString(),
		Submitter: submitter,
		Kind:      models.KindBundle,
		StagedAt:  time.Now(),
		Bundle:    res,
		Type:      typ,
		Reference: strings.ToUpper(strings.TrimSpace(reference)),
	}
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return fmt.Errorf("%s: storing submission: %w", op, err)
	}

	s.log.Info().
		Str("submitter", submitter).
		Int("invoices", res.Count()).
		Str("type", string(typ)).
		Str("total", res.TotalValue.String()).
		Msg("Bundle staged")

	return nil
}

// StageReceipt stages extracted receipt facts for the expense flow. A
// single candidate value is selected automatically; none at all puts the
// submission into manual value entry.
func (s *Service) StageReceipt(ctx context.Context, submitter string, facts *models.ReceiptFacts, reference string) error {
	const op = "StageReceipt"

	sub := &models.PendingSubmission{
		ID:        uuid.NewString(),
		Submitter: submitter,
		Kind:      models.KindReceipt,
		StagedAt:  time.Now(),
		Receipt:   facts,
		Reference: strings.ToUpper(strings.TrimSpace(reference)),
		Category:  facts.Category,
	}

	switch len(facts.Values) {
	case 0:
		sub.AwaitingManualValue = true
	case 1:
		sub.Value = facts.Values[0]
		sub.ValueChosen = true
	}

	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return fmt.Errorf("%s: storing submission: %w", op, err)
	}

	s.log.Info().
		Str("submitter", submitter).
		Int("values", len(facts.Values)).
		Str("date", facts.Date).
		Str("category_guess", facts.Category).
		Msg("Receipt staged")

	return nil
}

// SetReference extracts a process reference from free text and attaches it
// to the pending submission. Returns the extracted token.
func (s *Service) SetReference(ctx context.Context, submitter, text string) (string, error) {
	const op = "SetReference"

	token := ExtractReference(text)
	if token == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoReference)
	}

	sub, err := s.pending(ctx, submitter)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	sub.Reference = token
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return "", fmt.Errorf("%s: storing submission: %w", op, err)
	}

	s.log.Debug().Str("submitter", submitter).Str("reference", token).Msg("Reference set")
	return token, nil
}

// SelectCategory sets the expense category on a pending receipt. Selecting
// CategoryOther requires a custom description next; the returned flag
// tells the caller to collect one.
func (s *Service) SelectCategory(ctx context.Context, submitter, category string) (bool, error) {
	const op = "SelectCategory"

	if !validCategory(category) {
		return false, fmt.Errorf("%s: unknown category %q", op, category)
	}

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	sub.Category = category
	sub.AwaitingDescription = category == ledger.CategoryOther
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return false, fmt.Errorf("%s: storing submission: %w", op, err)
	}

	return sub.AwaitingDescription, nil
}

// SetCustomDescription attaches the free-text description CategoryOther
// expenses carry.
func (s *Service) SetCustomDescription(ctx context.Context, submitter, text string) error {
	const op = "SetCustomDescription"

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%s: description is empty", op)
	}

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sub.CustomDescription = text
	sub.AwaitingDescription = false
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return fmt.Errorf("%s: storing submission: %w", op, err)
	}
	return nil
}

// SetNote attaches an optional observation to a pending receipt.
func (s *Service) SetNote(ctx context.Context, submitter, note string) error {
	const op = "SetNote"

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sub.Note = strings.TrimSpace(note)
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return fmt.Errorf("%s: storing submission: %w", op, err)
	}
	return nil
}

// SelectValue picks one of the candidate values extracted from the receipt.
func (s *Service) SelectValue(ctx context.Context, submitter string, idx int) (decimal.Decimal, error) {
	const op = "SelectValue"

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	if idx < 0 || idx >= len(sub.Receipt.Values) {
		return decimal.Zero, fmt.Errorf("%s: value index %d out of range (%d candidates)", op, idx, len(sub.Receipt.Values))
	}

	sub.Value = sub.Receipt.Values[idx]
	sub.ValueChosen = true
	sub.AwaitingManualValue = false
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return decimal.Zero, fmt.Errorf("%s: storing submission: %w", op, err)
	}

	return sub.Value, nil
}

// SetManualValue sets a user-typed value on a pending receipt. The caller
// re-prompts on a parse error.
func (s *Service) SetManualValue(ctx context.Context, submitter, raw string) (decimal.Decimal, error) {
	const op = "SetManualValue"

	v, err := ParseValue(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: value %q: %w", op, raw, err)
	}

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	sub.Value = v
	sub.ValueChosen = true
	sub.AwaitingManualValue = false
	if err := s.sessions.Put(ctx, submitter, sub); err != nil {
		return decimal.Zero, fmt.Errorf("%s: storing submission: %w", op, err)
	}

	return v, nil
}

// ConfirmInvoice posts the pending invoice. Unless forced, the ledger is
// re-checked first: on a match the outcome carries the duplicate and
// nothing is posted, with the staging kept for a forced retry. Posting,
// successful or not, consumes the staging.
func (s *Service) ConfirmInvoice(ctx context.Context, submitter string, force bool) (*Outcome, error) {
	const op = "ConfirmInvoice"

	sub, err := s.pendingOfKind(ctx, submitter, models.KindInvoice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.Reference == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoReference)
	}

	rec := *sub.Invoice
	rec.Reference = sub.Reference

	if !force {
		match, err := s.detector.CheckInvoice(ctx, rec.InvoiceNumber)
		if err != nil {
			s.log.Warn().Err(err).Str("submitter", submitter).Msg("Duplicate check unavailable, posting without it")
		} else if match != nil {
			return &Outcome{InvoiceDuplicate: match}, nil
		}
	}

	section, err := s.writer.PostInvoice(ctx, &rec, sub.Type)
	s.clearSession(ctx, submitter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Outcome{Posted: true, Section: section}, nil
}

// ConfirmBundle posts the pending bundle as one consolidated row. A bundle
// without a reference cannot be posted and its staging is dropped.
func (s *Service) ConfirmBundle(ctx context.Context, submitter string) (*Outcome, error) {
	const op = "ConfirmBundle"

	sub, err := s.pendingOfKind(ctx, submitter, models.KindBundle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.Reference == "" {
		s.clearSession(ctx, submitter)
		return nil, fmt.Errorf("%s: %w", op, ErrNoReference)
	}

	section, err := s.writer.PostBundle(ctx, sub.Reference, sub.Bundle, sub.Type)
	s.clearSession(ctx, submitter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Outcome{Posted: true, Section: section}, nil
}

// ConfirmExpense posts the pending receipt as an expense. Unless forced,
// the expense section is checked for a close match first; on a match the
// outcome carries the duplicate and the staging is kept.
func (s *Service) ConfirmExpense(ctx context.Context, submitter string, force bool) (*Outcome, error) {
	const op = "ConfirmExpense"

	sub, err := s.pendingOfKind(ctx, submitter, models.KindReceipt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.Reference == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoReference)
	}
	if !validCategory(sub.Category) {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCategory)
	}
	if !sub.ValueChosen {
		return nil, fmt.Errorf("%s: %w", op, ErrNoValue)
	}

	date := normalize.Date(sub.Receipt.Date).Canonical

	if !force {
		match, err := s.detector.CheckExpense(ctx, sub.Reference, sub.Value, date)
		if err != nil {
			s.log.Warn().Err(err).Str("submitter", submitter).Msg("Duplicate check unavailable, posting without it")
		} else if match != nil {
			return &Outcome{ExpenseDuplicate: match}, nil
		}
	}

	exp := ledger.Expense{
		Reference:   sub.Reference,
		Date:        date,
		Category:    sub.Category,
		Value:       sub.Value,
		Description: expenseDescription(sub),
		Note:        sub.Note,
	}

	section, err := s.writer.PostExpense(ctx, exp)
	s.clearSession(ctx, submitter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Outcome{Posted: true, Section: section}, nil
}

// Cancel drops the submitter's pending submission.
func (s *Service) Cancel(ctx context.Context, submitter string) error {
	const op = "Cancel"

	if err := s.sessions.Delete(ctx, submitter); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug().Str("submitter", submitter).Msg("Pending submission cancelled")
	return nil
}

// PostManualExpense posts an expense directly, without staging or
// duplicate checking. The category is derived from the description, the
// date is today. Returns the expense as posted and the section it went to.
func (s *Service) PostManualExpense(ctx context.Context, reference string, value decimal.Decimal, description string) (*ledger.Expense, string, error) {
	const op = "PostManualExpense"

	reference = strings.ToUpper(strings.TrimSpace(reference))
	if reference == "" {
		return nil, "", fmt.Errorf("%s: %w", op, ErrNoReference)
	}

	description = strings.TrimSpace(description)
	exp := ledger.Expense{
		Reference:   reference,
		Date:        normalize.Today(),
		Category:    deriveCategory(description),
		Value:       value,
		Description: description,
	}

	section, err := s.writer.PostExpense(ctx, exp)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("category", exp.Category).
		Str("value", value.String()).
		Msg("Manual expense posted")

	return &exp, section, nil
}

// pending returns the submitter's pending submission of any kind.
func (s *Service) pending(ctx context.Context, submitter string) (*models.PendingSubmission, error) {
	sub, err := s.sessions.Get(ctx, submitter)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNoPending
		}
		return nil, err
	}
	return sub, nil
}

// pendingOfKind returns the submitter's pending submission, requiring it
// to be of the given kind.
func (s *Service) pendingOfKind(ctx context.Context, submitter string, kind models.SubmissionKind) (*models.PendingSubmission, error) {
	sub, err := s.pending(ctx, submitter)
	if err != nil {
		return nil, err
	}
	if sub.Kind != kind {
		return nil, ErrWrongKind
	}
	return sub, nil
}

func (s *Service) clearSession(ctx context.Context, submitter string) {
	if err := s.sessions.Delete(ctx, submitter); err != nil {
		s.log.Warn().Err(err).Str("submitter", submitter).Msg("Failed to clear pending submission")
	}
}

// expenseDescription resolves the description column: the category name,
// or the custom text for CategoryOther, falling back to the extracted
// category guess.
func expenseDescription(sub *models.PendingSubmission) string {
	if sub.Category != ledger.CategoryOther {
		return sub.Category
	}
	if sub.CustomDescription != "" {
		return sub.CustomDescription
	}
	return sub.Receipt.Category
}

// deriveCategory picks the first standard category whose name appears in
// the description, defaulting to CategoryOther.
func deriveCategory(description string) string {
	upper := strings.ToUpper(description)
	for _, cat := range ledger.ExpenseCategories {
		if cat == ledger.CategoryOther {
			continue
		}
		if strings.Contains(upper, strings.ToUpper(cat)) {
			return cat
		}
	}
	return ledger.CategoryOther
}

func validCategory(category string) bool {
	for _, cat := range ledger.ExpenseCategories {
		if cat == category {
			return true
		}
	}
	return false
}
