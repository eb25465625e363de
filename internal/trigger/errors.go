package trigger

import (
	"errors"
	"fmt"
)

// Named registry errors, distinguishable with errors.Is so the host can
// map them to diagnostics instead of generic failures.
var (
	ErrProviderNotRegistered     = errors.New("trigger: provider not registered")
	ErrEventNotRegistered        = errors.New("trigger: event not registered")
	ErrProviderAlreadyRegistered = errors.New("trigger: provider already registered")
	ErrEventAlreadyRegistered    = errors.New("trigger: event already registered")
)

// ErrCursorInvalidated is returned by incremental-fetch helpers when the
// provider reports the persisted cursor is no longer valid and a fresh
// baseline was taken. The delivery that observed it is acknowledged, not
// failed.
var ErrCursorInvalidated = errors.New("trigger: incremental cursor invalidated")

// IgnoreError is the deliberate not-an-error outcome of a projector whose
// filter rejected the event. Filter names the first rejecting filter and is
// for logs only; it never changes control flow.
type IgnoreError struct {
	Filter string
}

func (e *IgnoreError) Error() string {
	if e.Filter == "" {
		return "event ignored"
	}
	return fmt.Sprintf("event ignored by %s filter", e.Filter)
}

// Ignore builds the ignore signal for the named rejecting filter.
func Ignore(filter string) error {
	return &IgnoreError{Filter: filter}
}

// IsIgnore reports whether err (or anything it wraps) is an ignore signal.
func IsIgnore(err error) bool {
	var ignore *IgnoreError
	return errors.As(err, &ignore)
}
