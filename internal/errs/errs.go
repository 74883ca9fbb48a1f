package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	// Append the original err as the last arg for %w.
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// WithKind tags err with a sentinel kind so errors.Is matches both the kind
// and the original cause.
func WithKind(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	if kind == nil {
		return Wrap(err, msg)
	}
	return &KindError{kind: kind, err: Wrap(err, msg)}
}

// KindError pairs a classification sentinel with the wrapped cause.
type KindError struct {
	kind error
	err  error
}

func (e *KindError) Error() string   { return e.kind.Error() + ": " + e.err.Error() }
func (e *KindError) Unwrap() []error { return []error{e.kind, e.err} }
func (e *KindError) Kind() error     { return e.kind }

// WithStack captures a stack trace once (recommended: only at the root cause boundary).
// You can still wrap it later with Wrap/Wrapf.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	// If it already has stack, don't double-capture.
	var se *StackError
	if errors.As(err, &se) {
		return err
	}

	return &StackError{
		err:   err,
		stack: debug.Stack(),
	}
}

// StackError wraps an error and stores a stack trace.
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// LogValue makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
type loggable struct{ err error }

func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	chain := ErrorChainStrings(l.err)

	// Try to find stack (if present anywhere in the chain).
	var se *StackError
	hasStack := errors.As(l.err, &se)

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", chain),
	}

	var ke *KindError
	if errors.As(l.err, &ke) {
		attrs = append(attrs, slog.String("kind", ke.Kind().Error()))
	}

	if hasStack {
		// Keep it as string for JSON logs.
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
// For a KindError the chain continues through the cause, not the kind.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	for e := err; e != nil; {
		out = append(out, e.Error())
		if ke, ok := e.(*KindError); ok {
			e = ke.err
			continue
		}
		e = errors.Unwrap(e)
	}
	return out
}
