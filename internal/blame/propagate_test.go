package blame

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/timelinetree/internal/hunks"
	"github.com/Sumatoshi-tech/timelinetree/pkg/fastimport"
)

// fakeSource serves annotated blobs keyed by "commit\x00path".
type fakeSource struct {
	blobs map[string][]string
	errs  map[string]error
	reads int
}

func (s *fakeSource) ReadAnnotated(parent fastimport.Commitish, path string) ([]string, bool, error) {
	s.reads++

	key := parent.String() + "\x00" + path
	if err := s.errs[key]; err != nil {
		return nil, false, err
	}

	lines, ok := s.blobs[key]

	return lines, ok, nil
}

func pairsFor(pairs map[string][]hunks.LinePair) func(string) []hunks.LinePair {
	return func(parentRev string) []hunks.LinePair {
		return pairs[parentRev]
	}
}

func splitBlob(t *testing.T, blob []byte) []string {
	t.Helper()
	require.NotEmpty(t, blob)
	require.Equal(t, byte('\n'), blob[len(blob)-1])

	return strings.Split(strings.TrimSuffix(string(blob), "\n"), "\n")
}

func TestPropagateNewFile(t *testing.T) {
	t.Parallel()

	blob, err := Propagate(FileInput{
		SourceRev:  "r1",
		Path:       "src/new.rs",
		LineCount:  3,
		Unmodified: func(string) []hunks.LinePair { return nil },
		Source:     &fakeSource{},
	})
	require.NoError(t, err)

	lines := splitBlob(t, blob)
	assert.Equal(t, []string{"r1:%:1", "r1:%:2", "r1:%:3"}, lines)
}

func TestPropagateUnchangedLinesInherit(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00src/a.rs": {"r0:%:1", "r0:%:2|rX:old/p.rs:7", "r0:%:3"},
	}}

	// Line 2 inserted; lines 1 and 3 unchanged from parent lines 1 and 2.
	blob, err := Propagate(FileInput{
		SourceRev: "r1",
		Path:      "src/a.rs",
		LineCount: 3,
		Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
		Unmodified: pairsFor(map[string][]hunks.LinePair{
			"p0": {{New: 0, Old: 0}, {New: 2, Old: 1}},
		}),
		Source: source,
	})
	require.NoError(t, err)

	lines := splitBlob(t, blob)
	assert.Equal(t, "r0:%:1", lines[0])
	assert.Equal(t, "r1:%:2", lines[1])
	assert.Equal(t, "r0:%:2|rX:old/p.rs:7", lines[2])
}

func TestPropagateFirstParentWinsMerges(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blameA\x00src/a.rs": {"first:%:1"},
		"blameB\x00src/a.rs": {"second:%:1"},
	}}

	blob, err := Propagate(FileInput{
		SourceRev: "r1",
		Path:      "src/a.rs",
		LineCount: 1,
		Parents: []Parent{
			{Rev: "pA", Blame: fastimport.OID("blameA")},
			{Rev: "pB", Blame: fastimport.OID("blameB")},
		},
		Unmodified: pairsFor(map[string][]hunks.LinePair{
			"pA": {{New: 0, Old: 0}},
			"pB": {{New: 0, Old: 0}},
		}),
		Source: source,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"first:%:1"}, splitBlob(t, blob))
}

func TestPropagateRenameRewritesSentinel(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00old/name.rs": {"r0:%:1", "r0:explicit/origin.rs:2"},
	}}

	blob, err := Propagate(FileInput{
		SourceRev: "r1",
		Path:      "new/name.rs",
		LineCount: 2,
		Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
		MovedFrom: "old/name.rs",
		Unmodified: pairsFor(map[string][]hunks.LinePair{
			"p0": {{New: 0, Old: 0}, {New: 1, Old: 1}},
		}),
		Source: source,
	})
	require.NoError(t, err)

	lines := splitBlob(t, blob)
	// The sentinel is materialized into the old path; explicit paths pass
	// through untouched.
	assert.Equal(t, "r0:old/name.rs:1", lines[0])
	assert.Equal(t, "r0:explicit/origin.rs:2", lines[1])
}

func TestPropagatePredecessorSplice(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00src/donor.rs": {"r0:%:1", "rOld:%:2|rFirst:origin/a.rs:5"},
	}}

	blob, err := Propagate(FileInput{
		SourceRev:  "r1",
		Path:       "src/a.rs",
		LineCount:  2,
		Parents:    []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
		Unmodified: func(string) []hunks.LinePair { return nil },
		Predecessors: []PredecessorSplice{
			{NewLine: 1, ParentIdx: 0, OldPath: "src/donor.rs", OldLine: 1},
			{NewLine: 2, ParentIdx: 0, OldPath: "src/donor.rs", OldLine: 2},
		},
		Source: source,
	})
	require.NoError(t, err)

	lines := splitBlob(t, blob)
	// Line 1's donor has no predecessor: the donor's introduced ref becomes
	// the predecessor, sentinel resolved against the donor path.
	assert.Equal(t, "r1:%:1|r0:src/donor.rs:1", lines[0])
	// Line 2's donor already evolved once: the chain's earliest ref is
	// carried over, not the donor itself.
	assert.Equal(t, "r1:%:2|rFirst:origin/a.rs:5", lines[1])
}

func TestPropagateMarkerSplice(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00src/a.rs": {"r0:%:1", "r0:%:2", "r0:%:3", "r0:%:4"},
	}}

	// Parent lines 2..3 removed; new file keeps parent lines 1 and 4.
	blob, err := Propagate(FileInput{
		SourceRev: "r1",
		Path:      "src/a.rs",
		LineCount: 2,
		Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
		Unmodified: pairsFor(map[string][]hunks.LinePair{
			"p0": {{New: 0, Old: 0}, {New: 1, Old: 3}},
		}),
		Markers: []MarkerSplice{
			{ParentIdx: 0, OldPath: "src/a.rs", FirstOldLine: 2, Count: 2},
		},
		Source: source,
	})
	require.NoError(t, err)

	lines := splitBlob(t, blob)
	// The anchor keeps its inherited provenance and gains the marker.
	assert.Equal(t, "r0:%:1#r1:%:1|r0:src/a.rs:2|2", lines[0])
	assert.Equal(t, "r0:%:4", lines[1])
}

func TestPropagateMarkerAtTopOfFileDropped(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00src/a.rs": {"r0:%:1", "r0:%:2"},
	}}

	blob, err := Propagate(FileInput{
		SourceRev: "r1",
		Path:      "src/a.rs",
		LineCount: 1,
		Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
		Unmodified: pairsFor(map[string][]hunks.LinePair{
			"p0": {{New: 0, Old: 1}},
		}),
		Markers: []MarkerSplice{
			{ParentIdx: 0, OldPath: "src/a.rs", FirstOldLine: 1, Count: 1},
		},
		Source: source,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"r0:%:2"}, splitBlob(t, blob))
}

func TestPropagateDegradesOnMissingOrMalformedParent(t *testing.T) {
	t.Parallel()

	t.Run("missing_blob", func(t *testing.T) {
		t.Parallel()

		blob, err := Propagate(FileInput{
			SourceRev: "r1",
			Path:      "src/a.rs",
			LineCount: 1,
			Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
			Unmodified: pairsFor(map[string][]hunks.LinePair{
				"p0": {{New: 0, Old: 0}},
			}),
			Source: &fakeSource{},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"r1:%:1"}, splitBlob(t, blob))
	})

	t.Run("read_error_degrades", func(t *testing.T) {
		t.Parallel()

		source := &fakeSource{errs: map[string]error{
			"blame1\x00src/a.rs": errors.New("session lost"),
		}}

		blob, err := Propagate(FileInput{
			SourceRev: "r1",
			Path:      "src/a.rs",
			LineCount: 1,
			Parents:   []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
			Unmodified: pairsFor(map[string][]hunks.LinePair{
				"p0": {{New: 0, Old: 0}},
			}),
			Source: source,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"r1:%:1"}, splitBlob(t, blob))
	})

	t.Run("malformed_donor_record", func(t *testing.T) {
		t.Parallel()

		source := &fakeSource{blobs: map[string][]string{
			"blame1\x00src/donor.rs": {"garbage without separators"},
		}}

		blob, err := Propagate(FileInput{
			SourceRev:  "r1",
			Path:       "src/a.rs",
			LineCount:  1,
			Parents:    []Parent{{Rev: "p0", Blame: fastimport.OID("blame1")}},
			Unmodified: func(string) []hunks.LinePair { return nil },
			Predecessors: []PredecessorSplice{
				{NewLine: 1, ParentIdx: 0, OldPath: "src/donor.rs", OldLine: 1},
			},
			Source: source,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"r1:%:1"}, splitBlob(t, blob))
	})
}

func TestParentCacheMemoizesReads(t *testing.T) {
	t.Parallel()

	source := &fakeSource{blobs: map[string][]string{
		"blame1\x00src/a.rs": {"r0:%:1", "r0:%:2"},
	}}
	cache := newParentCache(source)

	for range 3 {
		_, ok := cache.annotated(fastimport.OID("blame1"), "src/a.rs")
		assert.True(t, ok)
	}

	for range 3 {
		_, ok := cache.annotated(fastimport.OID("blame1"), "src/missing.rs")
		assert.False(t, ok)
	}

	assert.Equal(t, 2, source.reads)
}
