// Package engine defines the capability contract the worker program needs
// from the embedded document engine, and a concrete implementation against
// a soffice-compatible headless binary. The real production engine is a
// native library loaded in-process; that binding is out of scope here (see
// spec Non-goals), so this package is deliberately the smallest surface a
// workerproc handler needs: load, save-as, and read-the-last-error.
package engine

// Document is a loaded document handle returned by Engine.LoadDocument.
type Document interface {
	// SaveAs exports the document through filterName (e.g. "writer_pdf_Export")
	// with filterOptions (a filter-specific options string) to url, returning
	// whether the export succeeded.
	SaveAs(url, filterName, filterOptions string) bool
}

// Engine is the capability contract exposed by the embedded engine. A
// worker holds exactly one Engine for its whole lifetime.
type Engine interface {
	// Init prepares the engine against resourcePath, the directory holding
	// its runtime resources (UNO types, basic libraries, etc). Called once,
	// at worker startup, in response to an init request.
	Init(resourcePath string, fontPaths []string) error

	// LoadDocument opens the document at url, returning nil if loading
	// failed; callers should then consult GetError for the reason.
	LoadDocument(url, loadOptionsJSON string) Document

	// GetError returns the last error message produced by a failed
	// LoadDocument or SaveAs call on this engine.
	GetError() string

	// Version identifies the engine build, echoed in the worker's ready
	// response.
	Version() string

	// Destroy releases the engine's resources. Called once, on clean
	// worker shutdown.
	Destroy()
}
