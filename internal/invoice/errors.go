package invoice

import "errors"

var (
	ErrNotFound               = errors.New("invoice not found")
	ErrInvalidSale            = errors.New("invalid sale request")
	ErrUnitUnavailable        = errors.New("inventory unit unavailable")
	ErrDuplicateChassis       = errors.New("chassis already invoiced")
	ErrDuplicateInvoiceNumber = errors.New("invoice number already exists")
	ErrChassisBusy            = errors.New("chassis is being invoiced by another request")
	ErrSyncInFlight           = errors.New("invoice sync already in progress")
	ErrNotRetryable           = errors.New("invoice is not in a retryable state")
	ErrOverrideNotAuthorized  = errors.New("duplicate chassis override not authorized")
)
