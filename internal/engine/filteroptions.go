package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ocx/slimlo/internal/wire"
)

// PathToFileURL converts an absolute filesystem path into the file:// URL
// form the engine's loadDocument/saveAs calls expect.
func PathToFileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepathToSlash(path)}
	return u.String()
}

func filepathToSlash(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// PDFFilterOptions renders the §6 Options object into the engine's
// filter-options string for the writer_pdf_Export filter.
func PDFFilterOptions(opts *wire.Options) string {
	if opts == nil {
		return ""
	}
	var parts []string
	if opts.PDFVersion > 0 {
		parts = append(parts, fmt.Sprintf("SelectPdfVersion=%d", opts.PDFVersion))
	}
	if opts.JPEGQuality > 0 {
		parts = append(parts, fmt.Sprintf("Quality=%d", opts.JPEGQuality))
	}
	if opts.DPI > 0 {
		parts = append(parts, fmt.Sprintf("MaxImageResolution=%d", opts.DPI))
	}
	if opts.TaggedPDF {
		parts = append(parts, "UseTaggedPDF=true")
	}
	if opts.PageRange != "" {
		parts = append(parts, fmt.Sprintf("PageRange=%s", opts.PageRange))
	}
	return strings.Join(parts, ";")
}

// PDFFilterName returns the engine's export filter name for a source
// document format.
func PDFFilterName(format wire.Format) string {
	switch format {
	case wire.FormatXLSX:
		return "calc_pdf_Export"
	case wire.FormatPPTX:
		return "impress_pdf_Export"
	default:
		return "writer_pdf_Export"
	}
}

// LoadOptions renders the password field (the only loadDocument-affecting
// option) into the engine's load-options JSON string.
func LoadOptions(opts *wire.Options) string {
	if opts == nil || opts.Password == "" {
		return ""
	}
	return fmt.Sprintf(`{"Password":%q}`, opts.Password)
}
