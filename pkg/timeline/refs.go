// Package timeline defines the persisted record formats of the history store:
// per-line token provenance records stored in "annotated" blobs, and the
// ND-JSON delta records stored under "timeline/".
package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PathUnchanged is the sentinel stored in a ref's path field while the file
// has not moved since the token was introduced. It keeps annotated blobs
// compact for the overwhelmingly common case.
const PathUnchanged = "%"

// NoContext is the sentinel context for tokens with no enclosing scope.
const NoContext = "%"

// ErrMalformedRecord is returned when an annotated line cannot be parsed.
var ErrMalformedRecord = errors.New("malformed provenance record")

// ErrUnencodablePath is returned when a path cannot be represented in the
// annotated line format.
var ErrUnencodablePath = errors.New("path not encodable in provenance record")

// TokenRef identifies a token in space and time: the revision, path and
// 1-based line at which it can be found.
//
// A ref is canonical when resolving it yields a line whose own Introduced ref
// describes itself. Non-canonical refs must be re-resolved by loading the
// annotated blob they point at and following the chain.
type TokenRef struct {
	Rev    string
	Path   string
	Lineno int
}

// ResolvePath returns the concrete path of the ref given the path of the file
// the containing record was read from.
func (r TokenRef) ResolvePath(filePath string) string {
	if r.Path == PathUnchanged {
		return filePath
	}

	return r.Path
}

func (r TokenRef) serialize(sb *strings.Builder) {
	sb.WriteString(r.Rev)
	sb.WriteByte(':')
	sb.WriteString(r.Path)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(r.Lineno))
}

// parseRef parses "rev:path:lineno". The path may itself contain colons, so
// the rev is taken from the front and the lineno from the back.
func parseRef(s string) (TokenRef, error) {
	first := strings.IndexByte(s, ':')
	last := strings.LastIndexByte(s, ':')

	if first < 0 || last <= first {
		return TokenRef{}, fmt.Errorf("%w: ref %q", ErrMalformedRecord, s)
	}

	lineno, err := strconv.Atoi(s[last+1:])
	if err != nil {
		return TokenRef{}, fmt.Errorf("%w: ref lineno %q", ErrMalformedRecord, s)
	}

	return TokenRef{
		Rev:    s[:first],
		Path:   s[first+1 : last],
		Lineno: lineno,
	}, nil
}

// RemovalMarker records a contiguous run of tokens deleted immediately after
// the line carrying it, without corresponding additions. Loading the parent
// revision's annotated file for Path, locating FirstRemoved and counting
// NumRemoved tokens recovers the exact removed run without generating a diff.
type RemovalMarker struct {
	Rev          string
	Path         string
	Lineno       int
	FirstRemoved TokenRef
	NumRemoved   int
}
