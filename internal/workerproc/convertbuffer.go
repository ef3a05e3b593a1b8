package workerproc

import (
	"fmt"
	"os"

	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/wire"
)

// handleConvertBuffer implements the convert_buffer handler. Unlike the
// other handlers it writes its own response (and, on success, a second
// binary frame carrying the PDF), so it returns the (nil, exit) shape the
// caller uses to tell whether the loop must stop because a write failed.
func (l *Loop) handleConvertBuffer(req *wire.Request) (*wire.Response, bool) {
	docBytes, err := l.in.ReadFrame()
	if err != nil {
		l.log.Error("EOS reading convert_buffer payload frame")
		return nil, true
	}

	if int64(len(docBytes)) != req.DataSize {
		return nil, l.writeBufferResult(bufferFailure(req.ID, errcode.InvalidArgument,
			"data_size does not match framed payload length"))
	}

	inPath, outPath, cleanup, err := l.stageTempFiles(docBytes, req.Format)
	if err != nil {
		return nil, l.writeBufferResult(bufferFailure(req.ID, errcode.Unknown, err.Error()))
	}
	defer cleanup()

	success, errCode, errMsg, diagnostics := l.convert(inPath, outPath, req.Format, req.Options)
	resp := &wire.Response{Type: wire.TypeBufferResult, ID: req.ID, Success: success, Diagnostics: diagnostics}
	if !success {
		resp.ErrorCode = &errCode
		resp.ErrorMessage = &errMsg
		return nil, l.writeBufferResult(resp)
	}

	pdfBytes, err := os.ReadFile(outPath)
	if err != nil {
		return nil, l.writeBufferResult(bufferFailure(req.ID, errcode.PDFExportFailed,
			fmt.Sprintf("reading converted output: %v", err)))
	}

	size := int64(len(pdfBytes))
	resp.DataSize = &size
	if exit := l.writeBufferResult(resp); exit {
		return nil, true
	}

	if err := l.writeFrame(pdfBytes); err != nil {
		l.log.Error("failed to write PDF result frame, exiting", "error", err)
		return nil, true
	}
	return nil, false
}

func bufferFailure(id int64, code errcode.Code, msg string) *wire.Response {
	c := int(code)
	return &wire.Response{Type: wire.TypeBufferResult, ID: id, Success: false, ErrorCode: &c, ErrorMessage: &msg}
}

// writeBufferResult encodes and writes resp, returning true (meaning "the
// loop must exit") if the write failed.
func (l *Loop) writeBufferResult(resp *wire.Response) bool {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		l.log.Error("failed to encode buffer_result", "error", err)
		return true
	}
	if err := l.writeFrame(data); err != nil {
		l.log.Error("failed to write buffer_result, exiting", "error", err)
		return true
	}
	return false
}

func (l *Loop) writeFrame(data []byte) error {
	return l.out.WriteFrame(data)
}

// stageTempFiles persists doc to a temp file named with the right extension
// for format and reserves a sibling output path. The returned cleanup func
// removes both unconditionally.
func (l *Loop) stageTempFiles(doc []byte, format int) (inPath, outPath string, cleanup func(), err error) {
	ext := extensionForFormat(format)
	f, err := os.CreateTemp("", "slimlo-in-*"+ext)
	if err != nil {
		return "", "", nil, fmt.Errorf("creating temp input file: %w", err)
	}
	inPath = f.Name()
	if _, err := f.Write(doc); err != nil {
		f.Close()
		os.Remove(inPath)
		return "", "", nil, fmt.Errorf("writing temp input file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(inPath)
		return "", "", nil, fmt.Errorf("closing temp input file: %w", err)
	}

	outPath = inPath + ".out.pdf"
	cleanup = func() {
		os.Remove(inPath)
		os.Remove(outPath)
	}
	return inPath, outPath, cleanup, nil
}

func extensionForFormat(format int) string {
	switch wire.Format(format) {
	case wire.FormatXLSX:
		return ".xlsx"
	case wire.FormatPPTX:
		return ".pptx"
	default:
		return ".docx"
	}
}
