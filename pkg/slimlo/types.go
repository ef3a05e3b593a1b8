// Package slimlo is the host-facing API for SlimLO's DOCX→PDF
// conversion pool: a fixed number of supervised worker subprocesses, each
// wrapping one instance of the embedded document engine, dispatched to
// round-robin with crash recovery and bounded-lifetime recycling.
package slimlo

import (
	"github.com/ocx/slimlo/internal/convresult"
	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/wire"
)

// Result is the outcome of one conversion. ErrorCode and ErrorMessage are
// only meaningful when Success is false; PDF is only populated by
// ExecuteBuffer. Diagnostics may be present even on success.
type Result = convresult.Result

// Diagnostic is a single non-fatal finding the engine surfaced during a
// conversion, most commonly a font substitution.
type Diagnostic = convresult.Diagnostic

// ErrorCode is the numeric result-code taxonomy shared with the wire
// protocol; see the ErrCode* constants.
type ErrorCode = errcode.Code

// Format identifies a source document's office format. Only FormatDOCX is
// accepted: Execute and ExecuteBuffer reject the others with
// ErrCodeInvalidFormat before any worker is consulted.
type Format = wire.Format

// Options carries the PDF export knobs a caller may set on a conversion.
type Options = wire.Options

const (
	FormatUnknown = wire.FormatUnknown
	FormatDOCX    = wire.FormatDOCX
	FormatXLSX    = wire.FormatXLSX
	FormatPPTX    = wire.FormatPPTX
)

// ParseFormat maps a format name (as accepted over HTTP or in config) to its
// Format value, returning FormatUnknown for anything unrecognized.
var ParseFormat = wire.ParseFormat

const (
	ErrCodeOK                 = errcode.OK
	ErrCodeInitFailed         = errcode.InitFailed
	ErrCodeDocumentLoadFailed = errcode.DocumentLoadFailed
	ErrCodePDFExportFailed    = errcode.PDFExportFailed
	ErrCodeInvalidFormat      = errcode.InvalidFormat
	ErrCodeInputNotFound      = errcode.InputNotFound
	ErrCodeOutOfMemory        = errcode.OutOfMemory
	ErrCodePermissionDenied   = errcode.PermissionDenied
	ErrCodeAlreadyInitialized = errcode.AlreadyInitialized
	ErrCodeNotInitialized     = errcode.NotInitialized
	ErrCodeInvalidArgument    = errcode.InvalidArgument
	ErrCodeTimeout            = errcode.Timeout
	ErrCodeUnknown            = errcode.Unknown
)
