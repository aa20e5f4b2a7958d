package memory

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks a backing-store failure or timeout. Retrieval
// recovers from it locally (degraded mode); destructive operations report it.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrEmbeddingUnavailable marks an embedding-provider failure. Never fatal:
// callers degrade to keyword matching.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// ValidationError indicates a client-side validation failure, such as a
// clear-all request without the confirmation flag.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// storeFailure wraps a backing-store error so callers can test against
// ErrStoreUnavailable while the log line keeps the original cause.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
