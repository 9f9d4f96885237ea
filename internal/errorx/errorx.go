// Package errorx defines the engine-wide error surface. Every public call
// returns an *Error with a Kind discriminator; internal layers return these
// errors as they are (a foreign cause is attached with WithCause), and the
// kind of the outermost *Error is the one reported.
package errorx

import "fmt"

// Kind is the category of an engine error.
type Kind string

const (
	KindParse          Kind = "parse"
	KindCatalog        Kind = "catalog"
	KindType           Kind = "type"
	KindArithmetic     Kind = "arithmetic"
	KindCompression    Kind = "compression"
	KindIO             Kind = "io"
	KindOutOfMemory    Kind = "out_of_memory"
	KindCancelled      Kind = "cancelled"
	KindNotImplemented Kind = "not_implemented"
	KindInternal       Kind = "internal"
)

// Error is the unified engine error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Parsef creates a parse/binding error.
func Parsef(format string, args ...any) *Error { return New(KindParse, format, args...) }

// Catalogf creates an unknown table/column/function error.
func Catalogf(format string, args ...any) *Error { return New(KindCatalog, format, args...) }

// Typef creates a type mismatch or invalid cast error.
func Typef(format string, args ...any) *Error { return New(KindType, format, args...) }

// Arithmeticf creates a division-by-zero or overflow error.
func Arithmeticf(format string, args ...any) *Error { return New(KindArithmetic, format, args...) }

// Compressionf creates a corrupted-segment or unsupported-codec error.
func Compressionf(format string, args ...any) *Error { return New(KindCompression, format, args...) }

// IOf creates a block read/write or checksum error.
func IOf(format string, args ...any) *Error { return New(KindIO, format, args...) }

// OutOfMemoryf creates a memory-limit error.
func OutOfMemoryf(format string, args ...any) *Error { return New(KindOutOfMemory, format, args...) }

// Cancelledf creates a cancellation error.
func Cancelledf(format string, args ...any) *Error { return New(KindCancelled, format, args...) }

// NotImplementedf creates a recognized-but-unsupported error.
func NotImplementedf(format string, args ...any) *Error { return New(KindNotImplemented, format, args...) }

// Internalf creates an invariant-violation error.
func Internalf(format string, args ...any) *Error { return New(KindInternal, format, args...) }

// KindOf extracts the kind of an engine error, or KindInternal for foreign
// errors that leaked through.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

func is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// IsCancelled reports whether err is a cancellation error.
func IsCancelled(err error) bool { return is(err, KindCancelled) }

// IsOutOfMemory reports whether err is a memory-limit error.
func IsOutOfMemory(err error) bool { return is(err, KindOutOfMemory) }

// IsType reports whether err is a type error.
func IsType(err error) bool { return is(err, KindType) }

// IsArithmetic reports whether err is an arithmetic error.
func IsArithmetic(err error) bool { return is(err, KindArithmetic) }

// IsCatalog reports whether err is a catalog lookup error.
func IsCatalog(err error) bool { return is(err, KindCatalog) }

// IsParse reports whether err is a parse or binding error.
func IsParse(err error) bool { return is(err, KindParse) }
