package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an Error.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindEmbedding   Kind = "embedding"
	KindIndex       Kind = "index"
	KindUnavailable Kind = "retrieval_unavailable"
	KindConfig      Kind = "config"
	KindSession     Kind = "session"
)

// Error is a categorized error carrying the failing operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrValidation)
// works regardless of message or operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" && t.Kind == KindConfig {
		return e.Kind == t.Kind && e.Message == t.Message
	}
	return e.Kind == t.Kind
}

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrEmbedding            = &Error{Kind: KindEmbedding}
	ErrIndex                = &Error{Kind: KindIndex}
	ErrRetrievalUnavailable = &Error{Kind: KindUnavailable}
	ErrSessionBackend       = &Error{Kind: KindSession}
	ErrDimensionMismatch    = &Error{Kind: KindConfig, Message: "embedding dimension mismatch"}
)

func NewValidationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NewEmbeddingError(op string, err error) error {
	return &Error{Kind: KindEmbedding, Op: op, Err: err}
}

func NewIndexError(op string, err error) error {
	return &Error{Kind: KindIndex, Op: op, Err: err}
}

func NewSessionError(op string, err error) error {
	return &Error{Kind: KindSession, Op: op, Err: err}
}

// Unavailable wraps a provider fault so callers see RetrievalUnavailable
// while the original cause stays reachable through errors.Is / errors.As.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

// DimensionMismatch reports an embedder and index that disagree on vector size.
func DimensionMismatch(op string, want, got int) error {
	return &Error{
		Kind:    KindConfig,
		Op:      op,
		Message: ErrDimensionMismatch.Message,
		Err:     fmt.Errorf("expected %d, got %d", want, got),
	}
}

// StatusFor maps an engine error to the HTTP status a transport should use.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
