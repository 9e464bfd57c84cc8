package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineDataRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("introduced_only", func(t *testing.T) {
		t.Parallel()

		data := IntroducedHere("abc123", 7)

		line, err := data.Serialize()
		require.NoError(t, err)
		assert.Equal(t, "abc123:%:7", line)

		parsed, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, data, parsed)
	})

	t.Run("with_predecessor", func(t *testing.T) {
		t.Parallel()

		data := &LineData{
			Introduced:  TokenRef{Rev: "abc123", Path: "src/lib.rs", Lineno: 12},
			Predecessor: &TokenRef{Rev: "def456", Path: "%", Lineno: 3},
		}

		line, err := data.Serialize()
		require.NoError(t, err)
		assert.Equal(t, "abc123:src/lib.rs:12|def456:%:3", line)

		parsed, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, data, parsed)
	})

	t.Run("with_removal_marker", func(t *testing.T) {
		t.Parallel()

		data := &LineData{
			Introduced: TokenRef{Rev: "abc123", Path: "%", Lineno: 4},
			Removal: &RemovalMarker{
				Rev:          "abc122",
				Path:         "src/old.rs",
				Lineno:       9,
				FirstRemoved: TokenRef{Rev: "abc100", Path: "%", Lineno: 9},
				NumRemoved:   3,
			},
		}

		line, err := data.Serialize()
		require.NoError(t, err)
		assert.Equal(t, "abc123:%:4#abc122:src/old.rs:9|abc100:%:9|3", line)

		parsed, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, data, parsed)
	})

	t.Run("full_record", func(t *testing.T) {
		t.Parallel()

		data := &LineData{
			Introduced:  TokenRef{Rev: "r3", Path: "%", Lineno: 1},
			Predecessor: &TokenRef{Rev: "r1", Path: "a/b.c", Lineno: 5},
			Removal: &RemovalMarker{
				Rev:          "r2",
				Path:         "%",
				Lineno:       1,
				FirstRemoved: TokenRef{Rev: "r1", Path: "%", Lineno: 2},
				NumRemoved:   1,
			},
		}

		line, err := data.Serialize()
		require.NoError(t, err)

		parsed, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, data, parsed)
	})
}

func TestLineDataPathsWithColons(t *testing.T) {
	t.Parallel()

	// Colons in a path are legal; the rev sits before the first colon and
	// the lineno after the last one.
	data := &LineData{
		Introduced: TokenRef{Rev: "abc", Path: "weird:path:name.rs", Lineno: 42},
	}

	line, err := data.Serialize()
	require.NoError(t, err)

	parsed, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "weird:path:name.rs", parsed.Introduced.Path)
	assert.Equal(t, 42, parsed.Introduced.Lineno)
}

func TestLineDataUnencodablePath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"pipe|path", "hash#path", "multi\nline"} {
		data := &LineData{Introduced: TokenRef{Rev: "abc", Path: path, Lineno: 1}}

		_, err := data.Serialize()
		assert.ErrorIs(t, err, ErrUnencodablePath, "path %q", path)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"no-separators",
		"rev:only-one",
		"rev:path:not-a-number",
		"rev:path:1#bad-removal",
		"rev:path:1#a:b:1|c:d:2",
		"rev:path:1#a:b:1|c:d:2|x",
	} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrMalformedRecord, "line %q", line)
	}
}

func TestTokenRefResolvePath(t *testing.T) {
	t.Parallel()

	unchanged := TokenRef{Rev: "r", Path: PathUnchanged, Lineno: 1}
	assert.Equal(t, "current/file.rs", unchanged.ResolvePath("current/file.rs"))

	moved := TokenRef{Rev: "r", Path: "old/file.rs", Lineno: 1}
	assert.Equal(t, "old/file.rs", moved.ResolvePath("current/file.rs"))
}
