package domain

import "errors"

// Configuration errors: fatal, never retried, no state mutated.
var (
	ErrInvalidPricingMethod = errors.New("invalid delivery pricing method")
	ErrUnknownContext       = errors.New("unknown cancellation context")
)

// Business rejections: expected outcomes the caller decides how to surface.
var (
	ErrNotEligible    = errors.New("line not eligible for requested cancellation context")
	ErrNegativeRefund = errors.New("refund would be negative")
	ErrNoOutstanding  = errors.New("no outstanding settlement to apply")
	ErrUnknownCarrier = errors.New("unknown carrier code")
)

// ErrInvariant wraps defects in the aggregation dependency order. Callers
// must treat it as a bug, not a business failure.
var ErrInvariant = errors.New("fee aggregation invariant violated")
