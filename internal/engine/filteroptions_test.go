package engine

import (
	"testing"

	"github.com/ocx/slimlo/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestPathToFileURL(t *testing.T) {
	assert.Equal(t, "file:///tmp/input.docx", PathToFileURL("/tmp/input.docx"))
}

func TestPDFFilterOptions(t *testing.T) {
	assert.Equal(t, "", PDFFilterOptions(nil))

	opts := &wire.Options{PDFVersion: 1, JPEGQuality: 80, DPI: 150, TaggedPDF: true, PageRange: "1-3"}
	got := PDFFilterOptions(opts)
	assert.Contains(t, got, "SelectPdfVersion=1")
	assert.Contains(t, got, "Quality=80")
	assert.Contains(t, got, "MaxImageResolution=150")
	assert.Contains(t, got, "UseTaggedPDF=true")
	assert.Contains(t, got, "PageRange=1-3")
}

func TestPDFFilterName(t *testing.T) {
	assert.Equal(t, "writer_pdf_Export", PDFFilterName(wire.FormatDOCX))
	assert.Equal(t, "calc_pdf_Export", PDFFilterName(wire.FormatXLSX))
	assert.Equal(t, "impress_pdf_Export", PDFFilterName(wire.FormatPPTX))
}

func TestLoadOptions(t *testing.T) {
	assert.Equal(t, "", LoadOptions(nil))
	assert.Equal(t, "", LoadOptions(&wire.Options{}))
	assert.Contains(t, LoadOptions(&wire.Options{Password: "secret"}), "secret")
}
