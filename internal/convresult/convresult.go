// Package convresult holds the conversion result shape shared between the
// supervisor (which produces it from wire responses) and pkg/slimlo (which
// re-exports it to hosts). It lives below pkg/slimlo so internal packages
// can construct results without importing back out of the module's public
// surface.
package convresult

import "github.com/ocx/slimlo/internal/errcode"

// Diagnostic is a single non-fatal finding surfaced by the engine during a
// conversion, most commonly a font substitution.
type Diagnostic struct {
	Severity        string
	Category        string
	Message         string
	Font            string
	SubstitutedWith string
}

// Result is the outcome of one conversion attempt. Success is false for
// every flavor of failure; ErrorCode and ErrorMessage are only meaningful
// when Success is false. PDF is only populated by buffer-mode conversions.
type Result struct {
	Success      bool
	ErrorCode    errcode.Code
	ErrorMessage string
	Diagnostics  []Diagnostic
	PDF          []byte
}
