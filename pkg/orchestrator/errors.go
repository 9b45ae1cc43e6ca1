package orchestrator

import (
	"fmt"
	"strings"
)

// ExhaustedError is returned when a lookup operation fell through the entire
// ranked provider chain without a usable result. List operations never
// produce it; they degrade to an empty result instead.
type ExhaustedError struct {
	Operation string
	Tried     []string
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all providers exhausted (tried %s): %v",
		e.Operation, strings.Join(e.Tried, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
