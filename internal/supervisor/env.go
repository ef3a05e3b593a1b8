package supervisor

import (
	"os"
	"runtime"
	"strings"
)

// missingLibraryPackageHint enumerates the OS packages most commonly
// missing when the engine fails to load its native dependencies.
const missingLibraryPackageHint = "libreoffice-core, libxinerama1, and libnss3"

func containsMissingLibraryPhrase(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "missing shared library")
}

// buildHints returns the engine environment hints layered on top of the
// worker's library search path: a headless-rendering hint where the engine
// supports one, a log-filter hint for font warnings, and a font-path
// variable when custom font directories are configured.
func buildHints(profileDir string, fontDirs []string) map[string]string {
	hints := map[string]string{
		"SAL_LOG": "+WARN.vcl.fonts",
		"HOME":    profileDir,
		"TMPDIR":  profileDir,
	}
	if runtime.GOOS == "windows" {
		// No headless VCL backend on Windows; poll on the calling thread
		// instead of requiring a message pump.
		hints["SAL_POLL_ON_CALLING_THREAD"] = "1"
	} else {
		hints["SAL_USE_VCLPLUGIN"] = "svp"
	}
	if fp := fontPathHint(fontDirs); fp != "" {
		hints["SAL_FONTPATH"] = fp
	}
	return hints
}

// fontPathHint returns the engine's font-path environment value for dirs,
// or "" if none were configured.
func fontPathHint(dirs []string) string {
	if len(dirs) == 0 {
		return ""
	}
	return strings.Join(dirs, string(os.PathListSeparator))
}
