// Package locate resolves the on-disk template file for a request from
// its CGI headers and the configured base directory.
package locate

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultTemplate is the literal fallback name tried last.
const defaultTemplate = "index.tcl"

// candidates returns the ordered suffixes to try: DOCUMENT_URI,
// SCRIPT_NAME, PATH_INFO, then the literal default.
func candidates(headers map[string]string) []string {
	out := make([]string, 0, 4)
	for _, h := range []string{"DOCUMENT_URI", "SCRIPT_NAME", "PATH_INFO"} {
		if v, ok := headers[h]; ok && v != "" {
			out = append(out, strings.TrimPrefix(v, "/"))
		}
	}
	out = append(out, defaultTemplate)
	return out
}

// Resolve finds the first candidate suffix under base that refers to an
// existing, regular, readable file. base is scriptPath
// if configured, else headers["DOCUMENT_ROOT"]. If no candidate resolves,
// Resolve returns ok=false and last, the final (default) candidate's
// full path, so the caller can emit a 404 body naming it.
func Resolve(base string, headers map[string]string) (path string, ok bool, last string) {
	cands := candidates(headers)

	for i, suffix := range cands {
		full := filepath.Join(base, suffix)
		if i == len(cands)-1 {
			last = full
		}
		if isRegularReadableFile(full) {
			return full, true, ""
		}
	}
	return "", false, last
}

func isRegularReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Base picks the configured script_path if non-empty, else
// headers["DOCUMENT_ROOT"].
func Base(scriptPath string, headers map[string]string) string {
	if scriptPath != "" {
		return scriptPath
	}
	return headers["DOCUMENT_ROOT"]
}
