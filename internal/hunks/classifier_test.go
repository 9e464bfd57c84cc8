package hunks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink logs token events as compact strings.
type recordingSink struct {
	events []string
}

func (s *recordingSink) Token(origin byte, lineno int, context, token string) {
	s.events = append(s.events, fmt.Sprintf("%c:%d:%s:%s", origin, lineno, context, token))
}

func (s *recordingSink) Unchanged() {
	s.events = append(s.events, "unchanged")
}

func (s *recordingSink) FlushHunk() {
	s.events = append(s.events, "flush")
}

func TestIngestInsertion(t *testing.T) {
	t.Parallel()

	// Parent has 4 token lines; the child inserts one token at line 3.
	// New lines 1,2 pair with old 1,2; new 4,5 pair with old 3,4.
	hunk := []Line{
		{Origin: OriginContext, OldLineno: 2, NewLineno: 2, Content: "% beta"},
		{Origin: OriginAddition, NewLineno: 3, Content: "outer::scope gamma"},
		{Origin: OriginContext, OldLineno: 3, NewLineno: 4, Content: "% delta"},
	}

	sink := &recordingSink{}

	pairs, err := Ingest([][]Line{hunk}, 5, sink)
	require.NoError(t, err)

	assert.Equal(t, []LinePair{
		{New: 0, Old: 0},
		{New: 1, Old: 1},
		{New: 3, Old: 2},
		{New: 4, Old: 3},
	}, pairs)

	assert.Equal(t, []string{
		"unchanged",
		"+:3:outer::scope:gamma",
		"unchanged",
		"flush",
	}, sink.events)
}

func TestIngestDeletion(t *testing.T) {
	t.Parallel()

	hunk := []Line{
		{Origin: OriginContext, OldLineno: 1, NewLineno: 1, Content: "% alpha"},
		{Origin: OriginDeletion, OldLineno: 2, Content: "% beta"},
		{Origin: OriginContext, OldLineno: 3, NewLineno: 2, Content: "% gamma"},
	}

	sink := &recordingSink{}

	pairs, err := Ingest([][]Line{hunk}, 3, sink)
	require.NoError(t, err)

	assert.Equal(t, []LinePair{
		{New: 0, Old: 0},
		{New: 1, Old: 2},
		{New: 2, Old: 3},
	}, pairs)

	assert.Equal(t, []string{
		"unchanged",
		"-:2:%:beta",
		"unchanged",
		"flush",
	}, sink.events)
}

func TestIngestReplacementAcrossHunks(t *testing.T) {
	t.Parallel()

	// Two hunks: a replacement at line 2 and an addition at line 6. Implicit
	// unchanged lines between the hunks carry the accumulated offset.
	first := []Line{
		{Origin: OriginDeletion, OldLineno: 2, Content: "% old_name"},
		{Origin: OriginAddition, NewLineno: 2, Content: "% new_name"},
	}
	second := []Line{
		{Origin: OriginAddition, NewLineno: 6, Content: "% tail"},
	}

	sink := &recordingSink{}

	pairs, err := Ingest([][]Line{first, second}, 6, sink)
	require.NoError(t, err)

	// Replacement leaves the delta at zero, so lines 3..5 pair one to one.
	assert.Equal(t, []LinePair{
		{New: 0, Old: 0},
		{New: 2, Old: 2},
		{New: 3, Old: 3},
		{New: 4, Old: 4},
	}, pairs)

	assert.Equal(t, []string{
		"-:2:%:old_name",
		"+:2:%:new_name",
		"flush",
		"+:6:%:tail",
		"flush",
	}, sink.events)
}

func TestIngestOffsetMismatch(t *testing.T) {
	t.Parallel()

	hunk := []Line{
		{Origin: OriginDeletion, OldLineno: 1, Content: "% alpha"},
		{Origin: OriginContext, OldLineno: 5, NewLineno: 2, Content: "% beta"},
	}

	_, err := Ingest([][]Line{hunk}, 4, &recordingSink{})
	assert.ErrorIs(t, err, ErrOffsetMismatch)
}

func TestIngestLinesWithoutTokens(t *testing.T) {
	t.Parallel()

	// A line without the context separator produces no token event but still
	// participates in offset bookkeeping.
	hunk := []Line{
		{Origin: OriginAddition, NewLineno: 1, Content: "bareword"},
	}

	sink := &recordingSink{}

	pairs, err := Ingest([][]Line{hunk}, 1, sink)
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, []string{"flush"}, sink.events)
}

func TestIngestBarewordContextLineClosesRun(t *testing.T) {
	t.Parallel()

	// An unchanged line without the context separator still separates runs;
	// the additions around it must not merge.
	hunk := []Line{
		{Origin: OriginAddition, NewLineno: 1, Content: "% alpha"},
		{Origin: OriginContext, OldLineno: 1, NewLineno: 2, Content: "bareword"},
		{Origin: OriginAddition, NewLineno: 3, Content: "% beta"},
	}

	sink := &recordingSink{}

	pairs, err := Ingest([][]Line{hunk}, 3, sink)
	require.NoError(t, err)

	assert.Equal(t, []LinePair{{New: 1, Old: 0}}, pairs)
	assert.Equal(t, []string{
		"+:1:%:alpha",
		"unchanged",
		"+:3:%:beta",
		"flush",
	}, sink.events)
}
