package payments

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidState     = errors.New("order not in PAID state")
	ErrKeyConflict      = errors.New("idempotency key was used for a different request")
	ErrRequestInFlight  = errors.New("request in flight; retry shortly")
	ErrMissingKey       = errors.New("missing idempotency key")
	ErrInvalidAmount    = errors.New("amount_cents must be greater than zero")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter code")
	ErrInvalidEntry     = errors.New("ledger entry must have exactly one nonzero side")
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrKeyContended reports that another caller created or locked the key between
	// lookup and lock acquisition. The coordinator re-enters its state machine on it.
	ErrKeyContended = errors.New("idempotency key contended")

	ErrStorageFailure = errors.New("storage failure")
)

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// StatusCode maps an error to its HTTP-analogous status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrMissingKey),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCurrency):
		return http.StatusBadRequest
	case errors.Is(err, ErrKeyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRequestInFlight):
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind is the label recorded on the *_errors_total counters.
func ErrorKind(err error) string {
	switch code := StatusCode(err); code {
	case http.StatusConflict:
		return "409_conflict"
	case http.StatusTooEarly:
		return "425_inflight"
	default:
		return fmt.Sprintf("%d", code)
	}
}
