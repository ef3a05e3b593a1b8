package workerproc

import (
	"github.com/ocx/slimlo/internal/convresult"
	"github.com/ocx/slimlo/internal/diag"
	"github.com/ocx/slimlo/internal/engine"
	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/wire"
)

func notInitialized(id int64) *wire.Response {
	code := int(errcode.NotInitialized)
	msg := "engine not initialized"
	return &wire.Response{Type: wire.TypeResult, ID: id, Success: false, ErrorCode: &code, ErrorMessage: &msg}
}

func (l *Loop) handleInit(req *wire.Request) *wire.Response {
	if l.initialized {
		return &wire.Response{Type: wire.TypeError, Message: "already initialized"}
	}
	if err := l.engine.Init(req.ResourcePath, req.FontPaths); err != nil {
		return &wire.Response{Type: wire.TypeError, Message: err.Error()}
	}
	l.initialized = true
	return &wire.Response{Type: wire.TypeReady, Version: l.engine.Version()}
}

func (l *Loop) handleConvert(req *wire.Request) *wire.Response {
	success, errCode, errMsg, diagnostics := l.convert(req.Input, req.Output, req.Format, req.Options)
	resp := &wire.Response{Type: wire.TypeResult, ID: req.ID, Success: success, Diagnostics: diagnostics}
	if !success {
		resp.ErrorCode = &errCode
		resp.ErrorMessage = &errMsg
	}
	return resp
}

// convert runs the shared load/filter-options/saveAs path used by both
// handlers, capturing engine stderr for the duration of the call.
func (l *Loop) convert(input, output string, format int, opts *wire.Options) (success bool, errCode int, errMsg string, diagnostics []wire.Diagnostic) {
	loadFailed := false
	ok, stderr := captureStderr(stderrCaptureLimit, func() bool {
		doc := l.engine.LoadDocument(engine.PathToFileURL(input), engine.LoadOptions(opts))
		if doc == nil {
			loadFailed = true
			return false
		}
		filterName := engine.PDFFilterName(wire.Format(format))
		filterOptions := engine.PDFFilterOptions(opts)
		return doc.SaveAs(engine.PathToFileURL(output), filterName, filterOptions)
	})

	diagnostics = toWireDiagnostics(diag.Parse(stderr))

	if !ok {
		code := errcode.PDFExportFailed
		if loadFailed {
			code = errcode.DocumentLoadFailed
		}
		return false, int(code), engineFailureMessage(l.engine, "conversion failed"), diagnostics
	}
	return true, 0, "", diagnostics
}

func engineFailureMessage(eng engine.Engine, fallback string) string {
	if msg := eng.GetError(); msg != "" {
		return msg
	}
	return fallback
}

func toWireDiagnostics(in []convresult.Diagnostic) []wire.Diagnostic {
	if len(in) == 0 {
		return nil
	}
	out := make([]wire.Diagnostic, len(in))
	for i, d := range in {
		out[i] = wire.Diagnostic{
			Severity:        d.Severity,
			Category:        d.Category,
			Message:         d.Message,
			Font:            d.Font,
			SubstitutedWith: d.SubstitutedWith,
		}
	}
	return out
}
