package wire

import (
	"encoding/json"
	"strings"
)

// RequestType identifies the kind of control frame sent host-to-worker.
type RequestType string

const (
	TypeInit          RequestType = "init"
	TypeConvert       RequestType = "convert"
	TypeConvertBuffer RequestType = "convert_buffer"
	TypeQuit          RequestType = "quit"
)

// ResponseType identifies the kind of control frame sent worker-to-host.
type ResponseType string

const (
	TypeReady        ResponseType = "ready"
	TypeResult       ResponseType = "result"
	TypeBufferResult ResponseType = "buffer_result"
	TypeError        ResponseType = "error"
)

// Format identifies the source document's office format.
type Format int

const (
	FormatUnknown Format = 0
	FormatDOCX    Format = 1
	FormatXLSX    Format = 2
	FormatPPTX    Format = 3
)

// String returns the lowercase format name, or "unknown" for an
// unrecognized value.
func (f Format) String() string {
	switch f {
	case FormatDOCX:
		return "docx"
	case FormatXLSX:
		return "xlsx"
	case FormatPPTX:
		return "pptx"
	default:
		return "unknown"
	}
}

// ParseFormat maps a format name to its Format value, for host callers that
// identify formats by name rather than number. Matching is case-insensitive.
func ParseFormat(name string) Format {
	switch strings.ToLower(name) {
	case "docx":
		return FormatDOCX
	case "xlsx":
		return FormatXLSX
	case "pptx":
		return FormatPPTX
	default:
		return FormatUnknown
	}
}

// Options carries the PDF export knobs a caller may set on a conversion.
type Options struct {
	PDFVersion  int    `json:"pdf_version,omitempty"`
	JPEGQuality int    `json:"jpeg_quality,omitempty"`
	DPI         int    `json:"dpi,omitempty"`
	TaggedPDF   bool   `json:"tagged_pdf,omitempty"`
	PageRange   string `json:"page_range,omitempty"`
	Password    string `json:"password,omitempty"`
}

// Request is the JSON control frame a supervisor sends to its worker.
type Request struct {
	Type         RequestType `json:"type"`
	ID           int64       `json:"id,omitempty"`
	ResourcePath string      `json:"resource_path,omitempty"`
	FontPaths    []string    `json:"font_paths,omitempty"`
	Input        string      `json:"input,omitempty"`
	Output       string      `json:"output,omitempty"`
	Format       int         `json:"format,omitempty"`
	DataSize     int64       `json:"data_size,omitempty"`
	Options      *Options    `json:"options,omitempty"`
}

// Diagnostic mirrors convresult.Diagnostic on the wire.
type Diagnostic struct {
	Severity        string `json:"severity"`
	Category        string `json:"category"`
	Message         string `json:"message"`
	Font            string `json:"font,omitempty"`
	SubstitutedWith string `json:"substituted_with,omitempty"`
}

// Response is the JSON control frame a worker sends back to its supervisor.
// A convert_buffer success carries no PDF bytes here; those follow as a
// separate binary frame per spec.
type Response struct {
	Type         ResponseType `json:"type"`
	ID           int64        `json:"id,omitempty"`
	Success      bool         `json:"success,omitempty"`
	ErrorCode    *int         `json:"error_code,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
	Version      string       `json:"version,omitempty"`
	DataSize     *int64       `json:"data_size,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// EncodeRequest marshals a Request to its wire payload.
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest unmarshals a wire payload into a Request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeResponse marshals a Response to its wire payload.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse unmarshals a wire payload into a Response.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
