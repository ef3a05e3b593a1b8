// Package enginetest provides a scriptable fake engine.Engine for tests of
// workerproc and supervisor that don't need a real soffice binary.
package enginetest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ocx/slimlo/internal/engine"
)

// Fake is an in-memory stand-in for engine.Engine. SaveAsErr, when set,
// makes every SaveAs call fail with that message instead of writing output.
type Fake struct {
	InitErr   error
	SaveAsErr string
	Stderr    string        // written to os.Stderr on every SaveAs, to exercise diag capture
	Delay     time.Duration // sleep before SaveAs completes, to exercise timeout/cancellation paths
	version   string

	lastError string
}

func New() *Fake {
	return &Fake{version: "fake-engine-1.0"}
}

func (f *Fake) Init(resourcePath string, fontPaths []string) error {
	return f.InitErr
}

func (f *Fake) LoadDocument(url, loadOptionsJSON string) engine.Document {
	path := strings.TrimPrefix(url, "file://")
	if _, err := os.Stat(path); err != nil {
		f.lastError = err.Error()
		return nil
	}
	return &fakeDocument{f: f}
}

func (f *Fake) GetError() string { return f.lastError }
func (f *Fake) Version() string  { return f.version }
func (f *Fake) Destroy()         {}

type fakeDocument struct{ f *Fake }

func (d *fakeDocument) SaveAs(url, filterName, filterOptions string) bool {
	if d.f.Delay > 0 {
		time.Sleep(d.f.Delay)
	}
	if d.f.Stderr != "" {
		fmt.Fprintln(os.Stderr, d.f.Stderr)
	}
	if d.f.SaveAsErr != "" {
		d.f.lastError = d.f.SaveAsErr
		return false
	}
	path := strings.TrimPrefix(url, "file://")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake\n"), 0o644); err != nil {
		d.f.lastError = err.Error()
		return false
	}
	return true
}
