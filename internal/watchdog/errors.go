package watchdog

import "errors"

// Validation failures surfaced synchronously to the caller. All are local
// and non-retryable; every operation behind them is a pure transformation
// over in-memory state.
var (
	// ErrSelectorCardinality indicates a selector resolved to zero or
	// multiple elements when exactly one was expected.
	ErrSelectorCardinality = errors.New("selector did not resolve to exactly one element")

	// ErrUninitializedSession indicates a field was initialized before the
	// session started monitoring.
	ErrUninitializedSession = errors.New("session is not monitoring")

	// ErrInvalidFieldType indicates the registered element is not a
	// text-capable control.
	ErrInvalidFieldType = errors.New("element is not a text-capable field")

	// ErrHandleNotInitialized indicates restart was called before
	// initialize.
	ErrHandleNotInitialized = errors.New("field handle has not been initialized")
)
