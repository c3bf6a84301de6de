package workflow

import "errors"

var (
	// ErrNoPending is returned when an operation needs a pending
	// submission and the submitter has none.
	ErrNoPending = errors.New("no pending submission")

	// ErrWrongKind is returned when the pending submission is not the
	// kind the operation works on.
	ErrWrongKind = errors.New("pending submission is of a different kind")

	// ErrNoReference is returned when a posting needs an import process
	// reference and none was provided or extracted.
	ErrNoReference = errors.New("no process reference")

	// ErrReturnShipment is returned when a return shipment invoice is
	// staged. Return shipments are never accounted.
	ErrReturnShipment = errors.New("return shipments are not posted")

	// ErrUnknownType is returned when an invoice cannot be classified
	// into a postable transaction type.
	ErrUnknownType = errors.New("invoice type could not be determined")

	// ErrNoValue is returned when an expense is confirmed before a value
	// was selected or entered.
	ErrNoValue = errors.New("no expense value selected")

	// ErrNoCategory is returned when an expense is confirmed without a
	// valid category.
	ErrNoCategory = errors.New("no valid expense category selected")
)
