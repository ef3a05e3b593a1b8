// Package errcode defines the numeric result codes carried on the wire
// between a worker and its supervisor, and surfaced to hosts via pkg/slimlo.
package errcode

// Code is a conversion result code. Zero means success; everything else is
// a flavor of failure. Hosts that only understand a subset of these should
// treat any code they don't recognize as Unknown.
type Code int

const (
	OK                  Code = 0
	InitFailed          Code = 1
	DocumentLoadFailed  Code = 2
	PDFExportFailed     Code = 3
	InvalidFormat       Code = 4
	InputNotFound       Code = 5
	OutOfMemory         Code = 6
	PermissionDenied    Code = 7
	AlreadyInitialized  Code = 8
	NotInitialized      Code = 9
	InvalidArgument     Code = 10
	Timeout             Code = 11
	Unknown             Code = 99
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InitFailed:
		return "init_failed"
	case DocumentLoadFailed:
		return "document_load_failed"
	case PDFExportFailed:
		return "pdf_export_failed"
	case InvalidFormat:
		return "invalid_format"
	case InputNotFound:
		return "input_not_found"
	case OutOfMemory:
		return "out_of_memory"
	case PermissionDenied:
		return "permission_denied"
	case AlreadyInitialized:
		return "already_initialized"
	case NotInitialized:
		return "not_initialized"
	case InvalidArgument:
		return "invalid_argument"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}
