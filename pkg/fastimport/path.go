// Package fastimport is a typed client for the git fast-import streaming
// protocol, used to append commits to the history store. One session owns a
// duplex byte stream to a `git fast-import` process: commands are written to
// its stdin and the read side (`ls`, `cat-blob`) is parsed from its stdout
// with explicit length-prefixed framing.
package fastimport

import "strings"

// QuotePath renders a path for the fast-import stream. C-style quoting is
// mandatory when the path starts with a double quote or contains LF: the name
// is wrapped in double quotes and any LF, backslash or double quote byte is
// escaped with a preceding backslash. All other paths are written verbatim.
func QuotePath(path string) string {
	if !strings.HasPrefix(path, `"`) && !strings.Contains(path, "\n") {
		return path
	}

	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)

	return `"` + escaped + `"`
}
