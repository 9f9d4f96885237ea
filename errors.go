package prismdb

import "github.com/turingworks/prismdb/internal/errorx"

// Error is the unified engine error surfaced by every public call.
type Error = errorx.Error

// ErrorKind is the category of an engine error.
type ErrorKind = errorx.Kind

// Error kinds.
const (
	ErrParse          = errorx.KindParse
	ErrCatalog        = errorx.KindCatalog
	ErrType           = errorx.KindType
	ErrArithmetic     = errorx.KindArithmetic
	ErrCompression    = errorx.KindCompression
	ErrIO             = errorx.KindIO
	ErrOutOfMemory    = errorx.KindOutOfMemory
	ErrCancelled      = errorx.KindCancelled
	ErrNotImplemented = errorx.KindNotImplemented
	ErrInternal       = errorx.KindInternal
)

// KindOf extracts the kind of an engine error.
func KindOf(err error) ErrorKind { return errorx.KindOf(err) }

// IsCancelled reports whether err is a cancellation error.
func IsCancelled(err error) bool { return errorx.IsCancelled(err) }

// IsOutOfMemory reports whether err is a memory-limit error.
func IsOutOfMemory(err error) bool { return errorx.IsOutOfMemory(err) }

// IsParse reports whether err is a parse or binding error.
func IsParse(err error) bool { return errorx.IsParse(err) }

// IsCatalog reports whether err is a catalog lookup error.
func IsCatalog(err error) bool { return errorx.IsCatalog(err) }

// IsType reports whether err is a type error.
func IsType(err error) bool { return errorx.IsType(err) }

// IsArithmetic reports whether err is an arithmetic error.
func IsArithmetic(err error) bool { return errorx.IsArithmetic(err) }
