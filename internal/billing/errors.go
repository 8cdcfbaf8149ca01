package billing

import (
	"errors"
	"fmt"

	"github.com/newsline/newsline/internal/platform/httpx"
)

// Business outcomes. Returned inside Outcome with HTTP 200.
var (
	ErrAlreadyGenerated = errors.New("bill already generated for this period")
	ErrNoDeliveries     = errors.New("no deliveries in this period")
	ErrAlreadyPaid      = errors.New("bill already paid")
	ErrBillNotPending   = errors.New("bill is not pending")
	ErrRequestPending   = errors.New("a payment request is already pending for this bill")
	ErrAlreadyResolved  = errors.New("payment request already resolved")
	ErrConcurrentUpdate = errors.New("bill changed concurrently, retry")
)

// Request errors mapped to HTTP status codes.
var (
	ErrForbidden       = fmt.Errorf("billing: %w", httpx.ErrForbidden)
	ErrNotAllotted     = fmt.Errorf("billing: no active allotment between agent and customer: %w", httpx.ErrForbidden)
	ErrBillNotFound    = fmt.Errorf("billing: bill %w", httpx.ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("billing: payment request %w", httpx.ErrNotFound)
	ErrInvalidInput    = fmt.Errorf("billing: %w", httpx.ErrValidation)
)

var businessErrors = []error{
	ErrAlreadyGenerated,
	ErrNoDeliveries,
	ErrAlreadyPaid,
	ErrBillNotPending,
	ErrRequestPending,
	ErrAlreadyResolved,
	ErrConcurrentUpdate,
}

// businessOutcome converts err into a failed Outcome when it is an expected
// business result.
func businessOutcome(err error) (Outcome, bool) {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return Outcome{Success: false, Message: target.Error(), Reason: target}, true
		}
	}
	return Outcome{}, false
}

// outcomeLabel names the outcome for metrics.
func outcomeLabel(reason error) string {
	switch {
	case reason == nil:
		return "success"
	case errors.Is(reason, ErrAlreadyGenerated):
		return "already_generated"
	case errors.Is(reason, ErrNoDeliveries):
		return "no_deliveries"
	case errors.Is(reason, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(reason, ErrBillNotPending):
		return "bill_not_pending"
	case errors.Is(reason, ErrRequestPending):
		return "request_pending"
	case errors.Is(reason, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(reason, ErrConcurrentUpdate):
		return "concurrent_update"
	default:
		return "error"
	}
}
