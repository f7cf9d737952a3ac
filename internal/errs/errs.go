package errs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind categorizes a failure for retry policy, exit codes, and the
// structured error body returned by the HTTP shell.
type Kind int

const (
	// KindConfig - missing or invalid configuration; pipeline not started.
	KindConfig Kind = iota
	// KindRepository - unreadable or shallow repository; fatal at the stage.
	KindRepository
	// KindStoreTransient - graph store timeout or deadlock; retried with backoff.
	KindStoreTransient
	// KindStorePermanent - constraint violation or other non-retryable store failure.
	KindStorePermanent
	// KindDecoding - per-file decode failure; recorded, never fails a stage.
	KindDecoding
	// KindDerivation - per-family derivation failure; other families continue.
	KindDerivation
	// KindCancelled - cooperative cancellation; partial progress reported.
	KindCancelled
	// KindInternal - invariant violation or unexpected state.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRepository:
		return "repository"
	case KindStoreTransient:
		return "store_transient"
	case KindStorePermanent:
		return "store_permanent"
	case KindDecoding:
		return "decoding"
	case KindDerivation:
		return "derivation"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is a structured error carrying its taxonomy kind and the
// pipeline stage it surfaced in.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind so callers can use errors.Is with sentinel kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the retry loop should re-attempt the
// operation. Only transient store failures qualify.
func (e *Error) Retryable() bool { return e.Kind == KindStoreTransient }

// WithStage annotates the error with the pipeline stage it surfaced in.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// KindOf extracts the taxonomy kind from any error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// StageOf extracts the stage annotation, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Retryable reports whether any error in the chain is retryable.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// CLI exit codes. The contract: 0 success, 2 configuration error,
// 3 repository unreadable, 4 graph store unreachable, 5 stage failure,
// 130 cancelled. Only transient store errors map to 4; a permanent
// store error is a stage failure, not an unreachable store.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindRepository:
		return 3
	case KindStoreTransient:
		return 4
	case KindCancelled:
		return 130
	default:
		return 5
	}
}

// Retry runs fn up to attempts times, sleeping base, 4*base, 16*base
// between tries. Non-retryable errors and context cancellation abort
// immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Wrap(ctx.Err(), KindCancelled, "retry aborted")
		case <-time.After(delay):
		}
		delay *= 4
	}
	return err
}
