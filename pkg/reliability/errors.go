package reliability

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned without any network attempt when a provider's
// breaker is open (the provider is deliberately skipped).
var ErrCircuitOpen = errors.New("circuit open")

// ErrTimeout is returned when an operation exceeds its per-attempt budget.
// Cancellation of the underlying call is best-effort: the caller stops
// waiting, the socket may linger until the transport notices.
var ErrTimeout = errors.New("operation timed out")

// OpError annotates a provider failure with provider and operation context.
// It wraps the final underlying error after all attempts are spent.
type OpError struct {
	Provider  string
	Operation string
	Attempts  int
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s/%s failed after %d attempt(s): %v", e.Provider, e.Operation, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
