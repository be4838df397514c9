package apperr

import (
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-inventory-service/pkg/database/postgres"
	"google.golang.org/grpc/codes"
)

type Kind string

const (
	InsufficientStock   Kind = "insufficient_stock"
	BatchMismatch       Kind = "batch_mismatch"
	InvalidState        Kind = "invalid_state"
	NotFound            Kind = "not_found"
	InvalidArgument     Kind = "invalid_argument"
	ConcurrencyConflict Kind = "concurrency_conflict"
	InternalError       Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
// Untyped errors are InternalError; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable is the retry predicate for the transaction manager.
func IsRetryable(err error) bool {
	return Is(err, ConcurrencyConflict) || postgres.IsRetryable(err)
}

// FromDB classifies a persistence error.
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if postgres.IsRetryable(err) {
		return Wrap(ConcurrencyConflict, op, err)
	}
	if postgres.IsUniqueViolation(err) {
		return Wrap(InvalidState, op, err)
	}
	if postgres.IsInvalidText(err) {
		return Wrap(InvalidArgument, op, err)
	}
	return Wrap(InternalError, op, err)
}

// Result is the structured outcome handed to callers outside the core.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
}

func ToResult(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Success: false, Message: err.Error(), Kind: KindOf(err)}
}

// GRPCCode maps a kind onto the closest gRPC status code.
func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case "":
		return codes.OK
	case NotFound:
		return codes.NotFound
	case InvalidArgument:
		return codes.InvalidArgument
	case InsufficientStock, InvalidState, BatchMismatch:
		return codes.FailedPrecondition
	case ConcurrencyConflict:
		return codes.Aborted
	default:
		return codes.Internal
	}
}
