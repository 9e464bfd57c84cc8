// Package blame builds the per-line provenance records for a modified file
// at a revision from its parents' persisted records, the unchanged-line
// correspondences and the revision's move/evolution edges.
package blame

import (
	"strings"

	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
	"github.com/Sumatoshi-tech/timelinetree/pkg/timeline"
)

// Source reads annotated blobs already committed for parent revisions.
type Source interface {
	// ReadAnnotated returns the annotated lines for path under the given
	// history commit. The second return is false when the path is absent
	// there, which is expected for files the parent did not have.
	ReadAnnotated(parent fastimport.Commitish, path string) ([]string, bool, error)
}

// Parent pairs a parent revision with its history-store commit.
type Parent struct {
	Rev   string
	Blame fastimport.Commitish
}

// PredecessorSplice sets a line's predecessor pointer from a move/evolution
// edge whose old side lives in the given parent.
type PredecessorSplice struct {
	NewLine   int // 1-based line in this file
	ParentIdx int
	OldPath   string
	OldLine   int
}

// MarkerSplice attaches a removal marker for a run of tokens deleted from
// the given parent without corresponding additions.
type MarkerSplice struct {
	ParentIdx    int
	OldPath      string
	FirstOldLine int
	Count        int
}

// FileInput is everything needed to propagate one file's provenance.
type FileInput struct {
	// SourceRev is the source revision being committed; provisional
	// records and removal markers reference it.
	SourceRev string
	Path      string
	LineCount int

	// Parents are the revision's parents in parent order, aligned with
	// the history commits holding their annotated blobs.
	Parents []Parent

	// MovedFrom is the path the file had in the (single) parent when the
	// file was renamed; empty otherwise.
	MovedFrom string

	// Unmodified returns the (new, old) unchanged-line pairs against the
	// given parent, or nil when the file has no comparable counterpart
	// there.
	Unmodified func(parentRev string) []hunks.LinePair

	Predecessors []PredecessorSplice
	Markers      []MarkerSplice

	Source Source
}

// Propagate returns the file's annotated blob content: one serialized record
// per line plus a trailing newline.
//
// A missing or malformed parent record never aborts the run; the affected
// line keeps its provisional "introduced here" record.
func Propagate(input FileInput) ([]byte, error) {
	lines := make([]string, input.LineCount)

	for i := range lines {
		record := timeline.IntroducedHere(input.SourceRev, i+1)

		serialized, err := record.Serialize()
		if err != nil {
			return nil, err
		}

		lines[i] = serialized
	}

	cache := newParentCache(input.Source)

	spliceErr := splicePredecessors(input, lines, cache)
	if spliceErr != nil {
		return nil, spliceErr
	}

	copyErr := copyUnmodified(input, lines, cache)
	if copyErr != nil {
		return nil, copyErr
	}

	markerErr := spliceMarkers(input, lines, cache)
	if markerErr != nil {
		return nil, markerErr
	}

	var sb strings.Builder

	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return []byte(sb.String()), nil
}

// splicePredecessors resolves each edge's old side against the parent's
// annotated blob and rewrites the target line's record. Edges target added
// lines, which no unmodified pair overwrites afterwards.
func splicePredecessors(input FileInput, lines []string, cache *parentCache) error {
	for _, splice := range input.Predecessors {
		if splice.NewLine < 1 || splice.NewLine > len(lines) {
			continue
		}

		ref, ok := cache.resolveRef(input.Parents[splice.ParentIdx].Blame, splice.OldPath, splice.OldLine)
		if !ok {
			continue // Degrade: the line stays independently introduced.
		}

		record := &timeline.LineData{
			Introduced:  timeline.TokenRef{Rev: input.SourceRev, Path: timeline.PathUnchanged, Lineno: splice.NewLine},
			Predecessor: &ref,
		}

		serialized, err := record.Serialize()
		if err != nil {
			return err
		}

		lines[splice.NewLine-1] = serialized
	}

	return nil
}

// copyUnmodified copies parents' records onto unchanged lines. Parents are
// processed in reverse order so the first parent is applied last and wins
// ties, matching merge-blame convention.
func copyUnmodified(input FileInput, lines []string, cache *parentCache) error {
	for parentIdx := len(input.Parents) - 1; parentIdx >= 0; parentIdx-- {
		parent := input.Parents[parentIdx]

		pairs := input.Unmodified(parent.Rev)
		if pairs == nil {
			continue
		}

		parentPath := input.Path
		if input.MovedFrom != "" {
			parentPath = input.MovedFrom
		}

		parentLines, ok := cache.annotated(parent.Blame, parentPath)
		if !ok {
			continue
		}

		pathUnchanged := parentPath == input.Path

		for _, pair := range pairs {
			if pair.New < 0 || pair.New >= len(lines) || pair.Old < 0 || pair.Old >= len(parentLines) {
				continue
			}

			if pathUnchanged {
				lines[pair.New] = parentLines[pair.Old]

				continue
			}

			rewritten, rewriteOK := rewritePath(parentLines[pair.Old], parentPath)
			if rewriteOK {
				lines[pair.New] = rewritten
			}
		}
	}

	return nil
}

// rewritePath materializes the path-compression sentinel when a record
// crosses a rename: a record that was marking "path unchanged since
// introduction" now needs the original path spelled out.
func rewritePath(serialized, parentPath string) (string, bool) {
	record, err := timeline.Parse(serialized)
	if err != nil {
		return "", false
	}

	if record.IsPathUnchanged() {
		record.Introduced.Path = parentPath
	}

	rewritten, err := record.Serialize()
	if err != nil {
		return "", false
	}

	return rewritten, true
}

// spliceMarkers merges removal markers into their anchor lines after parent
// copies, so the anchor keeps its inherited provenance. The anchor is the
// line whose parent counterpart immediately precedes the removed run; a run
// removed from the very top of a file has no anchor and is dropped.
func spliceMarkers(input FileInput, lines []string, cache *parentCache) error {
	for _, splice := range input.Markers {
		parent := input.Parents[splice.ParentIdx]

		anchor, ok := anchorLine(input, parent.Rev, splice.FirstOldLine)
		if !ok {
			continue
		}

		record, err := timeline.Parse(lines[anchor-1])
		if err != nil {
			continue
		}

		first, ok := cache.resolveRef(parent.Blame, splice.OldPath, splice.FirstOldLine)
		if !ok {
			continue
		}

		record.Removal = &timeline.RemovalMarker{
			Rev:          input.SourceRev,
			Path:         timeline.PathUnchanged,
			Lineno:       anchor,
			FirstRemoved: first,
			NumRemoved:   splice.Count,
		}

		serialized, err := record.Serialize()
		if err != nil {
			return err
		}

		lines[anchor-1] = serialized
	}

	return nil
}

// anchorLine maps the parent line preceding a removed run to its 1-based
// line in the new revision.
func anchorLine(input FileInput, parentRev string, firstOldLine int) (int, bool) {
	if firstOldLine <= 1 {
		return 0, false
	}

	for _, pair := range input.Unmodified(parentRev) {
		if pair.Old == firstOldLine-2 { // 0-based index of the preceding line
			return pair.New + 1, true
		}
	}

	return 0, false
}

// parentCache memoizes annotated blob reads within one file's propagation.
type parentCache struct {
	source Source
	blobs  map[string][]string
	misses map[string]bool
}

func newParentCache(source Source) *parentCache {
	return &parentCache{
		source: source,
		blobs:  make(map[string][]string),
		misses: make(map[string]bool),
	}
}

func (c *parentCache) annotated(parent fastimport.Commitish, path string) ([]string, bool) {
	key := parent.String() + "\x00" + path

	if lines, ok := c.blobs[key]; ok {
		return lines, true
	}

	if c.misses[key] {
		return nil, false
	}

	lines, ok, err := c.source.ReadAnnotated(parent, path)
	if err != nil || !ok {
		c.misses[key] = true

		return nil, false
	}

	c.blobs[key] = lines

	return lines, true
}

// resolveRef loads the parent's record at (path, line) and returns the
// canonical ref a predecessor or removal pointer should carry: the record's
// own predecessor when it has one (the sequentially earliest token in the
// chain), otherwise its introduced ref with the path sentinel materialized.
func (c *parentCache) resolveRef(parent fastimport.Commitish, path string, line int) (timeline.TokenRef, bool) {
	parentLines, ok := c.annotated(parent, path)
	if !ok || line < 1 || line > len(parentLines) {
		return timeline.TokenRef{}, false
	}

	record, err := timeline.Parse(parentLines[line-1])
	if err != nil {
		return timeline.TokenRef{}, false
	}

	if record.Predecessor != nil {
		ref := *record.Predecessor
		ref.Path = ref.ResolvePath(path)

		return ref, true
	}

	ref := record.Introduced
	ref.Path = ref.ResolvePath(path)

	return ref, true
}
