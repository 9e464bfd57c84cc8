// Package hunks turns a blob-pair diff into unchanged-line correspondences
// plus contextualized token add/remove events. Each line of a tokenized blob
// is "<context> <token>", context being the enclosing scope's pretty symbol
// path with "%" for no scope.
package hunks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOffsetMismatch reports a defect in the diff/offset bookkeeping: an
// unchanged line whose old number does not equal its new number adjusted by
// the accumulated delta. The file's ingestion is aborted; the run continues.
var ErrOffsetMismatch = errors.New("unchanged line offset mismatch")

// Line origins, matching the diff stream characters.
const (
	OriginContext  byte = ' '
	OriginAddition byte = '+'
	OriginDeletion byte = '-'
)

// Line is one hunk line. Line numbers are 1-based; zero means the line has
// no number on that side.
type Line struct {
	Origin    byte
	OldLineno int
	NewLineno int
	Content   string
}

// LinePair maps a 0-based line index in the new revision to the 0-based
// index of the byte-identical line in the parent.
type LinePair struct {
	New int
	Old int
}

// TokenSink receives token events in file order.
type TokenSink interface {
	// Token reports a token addition or removal with its lexical context
	// and 1-based line number in the respective revision.
	Token(origin byte, lineno int, context, token string)
	// Unchanged reports an unchanged line between changes; it closes the
	// current run and permits single-token evolution inference.
	Unchanged()
	// FlushHunk reports the end of a hunk.
	FlushHunk()
}

// Ingest processes the hunks of one file's diff. It returns the ordered
// unchanged (new, old) pairs, including the implicit runs before, between
// and after hunks, and forwards token events to the sink. newLineCount is
// the total line count of the new blob.
func Ingest(hunks [][]Line, newLineCount int, sink TokenSink) ([]LinePair, error) {
	var unchanged []LinePair

	// latest is the 0-based new-line index up to which unchanged lines have
	// been emitted; delta maps new indices to old ones for lines no hunk
	// touched. The implicit run before a hunk uses the delta accumulated
	// before it, so it is emitted at hunk entry, not mid-hunk.
	latest := 0
	delta := 0

	for _, hunk := range hunks {
		if len(hunk) == 0 {
			continue
		}

		newStart := hunkNewStart(hunk[0], delta)
		for i := latest; i < newStart-1; i++ {
			unchanged = append(unchanged, LinePair{New: i, Old: i + delta})
		}

		if newStart-1 > latest {
			latest = newStart - 1
		}

		for _, line := range hunk {
			if line.NewLineno > latest {
				latest = line.NewLineno
			}

			switch line.Origin {
			case OriginAddition:
				if context, token, ok := splitContextToken(line.Content); ok {
					sink.Token(OriginAddition, line.NewLineno, context, token)
				}
			case OriginDeletion:
				if context, token, ok := splitContextToken(line.Content); ok {
					sink.Token(OriginDeletion, line.OldLineno, context, token)
				}
			case OriginContext:
				// Every unchanged line closes the current run, whether or not
				// it parses as a token.
				sink.Unchanged()
			}

			switch line.Origin {
			case OriginAddition:
				delta--
			case OriginDeletion:
				delta++
			case OriginContext:
				if line.OldLineno != line.NewLineno+delta {
					return nil, fmt.Errorf("%w: old %d, new %d, delta %d",
						ErrOffsetMismatch, line.OldLineno, line.NewLineno, delta)
				}

				unchanged = append(unchanged, LinePair{New: line.NewLineno - 1, Old: line.OldLineno - 1})
			}
		}

		sink.FlushHunk()
	}

	for i := latest; i < newLineCount; i++ {
		unchanged = append(unchanged, LinePair{New: i, Old: i + delta})
	}

	return unchanged, nil
}

// hunkNewStart locates the hunk's first line on the new side. A hunk opening
// with deletions has no new number on its first line; the position follows
// from the old number and the pre-hunk offset.
func hunkNewStart(first Line, delta int) int {
	if first.NewLineno > 0 {
		return first.NewLineno
	}

	return first.OldLineno - delta
}

// splitContextToken decomposes a tokenized line into its (context, token)
// pair. Lines without the separator carry no token event.
func splitContextToken(content string) (context, token string, ok bool) {
	trimmed := strings.TrimRight(content, "\n")

	context, token, ok = strings.Cut(trimmed, " ")
	if !ok || token == "" {
		return "", "", false
	}

	return context, token, true
}
