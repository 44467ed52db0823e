package services

import (
	"errors"
	"fmt"

	"github.com/phillip/iinsaf-marketplace-go/store"
)

// Category roots. Every error returned by this package wraps exactly one.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("state conflict")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrExternal   = errors.New("external service failed")
)

var (
	ErrAlreadyResponded     = fmt.Errorf("%w: reporter has already responded", ErrConflict)
	ErrCapacityReached      = fmt.Errorf("%w: all reporter slots are taken", ErrConflict)
	ErrNotOpen              = fmt.Errorf("%w: not accepting reporters", ErrConflict)
	ErrAcceptWindowExpired  = fmt.Errorf("%w: acceptance window has expired", ErrConflict)
	ErrProofWindowExpired   = fmt.Errorf("%w: proof submission window has expired", ErrConflict)
	ErrInvalidTransition    = fmt.Errorf("%w: transition not allowed from current status", ErrConflict)
	ErrInitialProofRequired = fmt.Errorf("%w: initial proof is not approved, resubmit the initial proof first", ErrConflict)
	ErrInsufficientBalance  = fmt.Errorf("%w: insufficient wallet balance", ErrConflict)
	ErrDuplicateTransaction = fmt.Errorf("%w: transaction already recorded", ErrConflict)
	ErrTokenConsumed        = fmt.Errorf("%w: idempotency token already used", ErrConflict)
	ErrPaymentAlreadyUsed   = fmt.Errorf("%w: payment already used", ErrConflict)
	ErrNotTargeted          = fmt.Errorf("%w: reporter was not offered this job", ErrForbidden)
	ErrNotOwner             = fmt.Errorf("%w: not the owner", ErrForbidden)
	ErrPaymentNotCaptured   = fmt.Errorf("%w: payment is not captured", ErrValidation)
	ErrCouponInvalid        = fmt.Errorf("%w: coupon cannot be applied", ErrValidation)
	ErrPricingMissing       = fmt.Errorf("%w: pricing is not configured", ErrNotFound)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr maps persistence sentinels onto the category roots.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, store.ErrDuplicateTransaction):
		return ErrDuplicateTransaction
	case errors.Is(err, store.ErrCapacityReached):
		return ErrCapacityReached
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s changed concurrently", ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
