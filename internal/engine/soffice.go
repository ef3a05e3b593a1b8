package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultBinary is the soffice executable name looked up on PATH when no
// explicit path is configured.
const DefaultBinary = "soffice"

// SofficeEngine is a stand-in Engine implementation that shells out to a
// soffice-compatible headless binary per conversion, the nearest buildable
// approximation of the native in-process engine this module's worker
// contract was designed against.
type SofficeEngine struct {
	binary       string
	resourcePath string
	fontPaths    []string
	version      string

	mu        sync.Mutex
	lastError string
}

// NewSofficeEngine constructs an engine that invokes binary (or DefaultBinary
// if empty) for every conversion.
func NewSofficeEngine(binary string) *SofficeEngine {
	if binary == "" {
		binary = DefaultBinary
	}
	return &SofficeEngine{binary: binary}
}

func (e *SofficeEngine) Init(resourcePath string, fontPaths []string) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("engine binary %q not found: %w", e.binary, err)
	}
	e.resourcePath = resourcePath
	e.fontPaths = fontPaths
	out, err := exec.Command(e.binary, "--version").Output()
	if err == nil {
		e.version = strings.TrimSpace(string(out))
	} else {
		e.version = "unknown"
	}
	return nil
}

func (e *SofficeEngine) LoadDocument(url, loadOptionsJSON string) Document {
	path := strings.TrimPrefix(url, "file://")
	if _, err := os.Stat(path); err != nil {
		e.setError(err.Error())
		return nil
	}
	return &sofficeDocument{engine: e, sourcePath: path}
}

func (e *SofficeEngine) GetError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

func (e *SofficeEngine) Version() string {
	return e.version
}

func (e *SofficeEngine) Destroy() {}

func (e *SofficeEngine) setError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

type sofficeDocument struct {
	engine     *SofficeEngine
	sourcePath string
}

func (d *sofficeDocument) SaveAs(outURL, filterName, filterOptions string) bool {
	outPath := strings.TrimPrefix(outURL, "file://")
	outDir := filepath.Dir(outPath)

	filterArg := "pdf:" + filterName
	if filterOptions != "" {
		filterArg += ":" + filterOptions
	}

	args := []string{"--headless", "--invisible", "--nocrashreport", "--nodefault",
		"--nofirststartwizard", "--nolockcheck", "--nologo", "--norestore",
		"--convert-to", filterArg, "--outdir", outDir, d.sourcePath}
	if d.engine.resourcePath != "" {
		args = append([]string{"-env:UserInstallation=file://" + d.engine.resourcePath}, args...)
	}

	cmd := exec.Command(d.engine.binary, args...)
	if len(d.engine.fontPaths) > 0 {
		cmd.Env = append(os.Environ(), "SLIMLO_FONT_PATH="+strings.Join(d.engine.fontPaths, string(os.PathListSeparator)))
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		d.engine.setError(fmt.Sprintf("conversion failed: %v: %s", err, strings.TrimSpace(string(out))))
		return false
	}

	converted := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(d.sourcePath), filepath.Ext(d.sourcePath))+".pdf")
	if converted != outPath {
		if err := os.Rename(converted, outPath); err != nil {
			d.engine.setError(fmt.Sprintf("renaming converted output: %v", err))
			return false
		}
	}
	return true
}
