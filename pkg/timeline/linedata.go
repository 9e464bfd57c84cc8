package timeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Field separators of the annotated line format. The format is
//
//	introduced[|predecessor][#removal-ref|first-removed-ref|count]
//
// where each ref is "rev:path:lineno". Refs are parsed from both ends so
// paths containing ':' survive; paths containing the separators themselves
// cannot be encoded and are rejected at write time.
const (
	predecessorSep = '|'
	removalSep     = '#'
)

// LineData is the per-line provenance record persisted in annotated blobs,
// one generation per revision. Records are immutable once written.
type LineData struct {
	// Introduced is the earliest revision where content equivalent to this
	// line was produced.
	Introduced TokenRef
	// Predecessor, when set, points at the token this line evolved from,
	// always the sequentially earliest token in the evolution chain.
	Predecessor *TokenRef
	// Removal, when set, describes a run of tokens deleted immediately
	// after this line.
	Removal *RemovalMarker
}

// IsPathUnchanged reports whether the introduced ref still carries the
// path-compression sentinel.
func (d *LineData) IsPathUnchanged() bool {
	return d.Introduced.Path == PathUnchanged
}

// Serialize renders the record as a single annotated line (no trailing
// newline). Paths containing separator bytes cannot round-trip and yield an
// error; callers treat that as a structural defect.
func (d *LineData) Serialize() (string, error) {
	for _, p := range d.paths() {
		if strings.ContainsAny(p, "|#\n") {
			return "", fmt.Errorf("%w: %q", ErrUnencodablePath, p)
		}
	}

	var sb strings.Builder

	d.Introduced.serialize(&sb)

	if d.Predecessor != nil {
		sb.WriteByte(predecessorSep)
		d.Predecessor.serialize(&sb)
	}

	if d.Removal != nil {
		sb.WriteByte(removalSep)

		ref := TokenRef{Rev: d.Removal.Rev, Path: d.Removal.Path, Lineno: d.Removal.Lineno}
		ref.serialize(&sb)
		sb.WriteByte(predecessorSep)
		d.Removal.FirstRemoved.serialize(&sb)
		sb.WriteByte(predecessorSep)
		sb.WriteString(strconv.Itoa(d.Removal.NumRemoved))
	}

	return sb.String(), nil
}

func (d *LineData) paths() []string {
	paths := []string{d.Introduced.Path}
	if d.Predecessor != nil {
		paths = append(paths, d.Predecessor.Path)
	}

	if d.Removal != nil {
		paths = append(paths, d.Removal.Path, d.Removal.FirstRemoved.Path)
	}

	return paths
}

// Parse decodes a single annotated line.
func Parse(line string) (*LineData, error) {
	rest := line

	var removalPart string
	if idx := strings.IndexByte(rest, removalSep); idx >= 0 {
		removalPart = rest[idx+1:]
		rest = rest[:idx]
	}

	var predecessorPart string
	if idx := strings.IndexByte(rest, predecessorSep); idx >= 0 {
		predecessorPart = rest[idx+1:]
		rest = rest[:idx]
	}

	introduced, err := parseRef(rest)
	if err != nil {
		return nil, err
	}

	data := &LineData{Introduced: introduced}

	if predecessorPart != "" {
		pred, predErr := parseRef(predecessorPart)
		if predErr != nil {
			return nil, predErr
		}

		data.Predecessor = &pred
	}

	if removalPart != "" {
		removal, remErr := parseRemoval(removalPart)
		if remErr != nil {
			return nil, remErr
		}

		data.Removal = removal
	}

	return data, nil
}

func parseRemoval(s string) (*RemovalMarker, error) {
	parts := strings.Split(s, "|")

	const removalFields = 3
	if len(parts) != removalFields {
		return nil, fmt.Errorf("%w: removal marker %q", ErrMalformedRecord, s)
	}

	at, err := parseRef(parts[0])
	if err != nil {
		return nil, err
	}

	first, err := parseRef(parts[1])
	if err != nil {
		return nil, err
	}

	count, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: removal count %q", ErrMalformedRecord, parts[2])
	}

	return &RemovalMarker{
		Rev:          at.Rev,
		Path:         at.Path,
		Lineno:       at.Lineno,
		FirstRemoved: first,
		NumRemoved:   count,
	}, nil
}

// IntroducedHere builds the provisional record for a line first seen at the
// given revision: introduced at this path (compressed), this line.
func IntroducedHere(rev string, lineno int) *LineData {
	return &LineData{Introduced: TokenRef{Rev: rev, Path: PathUnchanged, Lineno: lineno}}
}
