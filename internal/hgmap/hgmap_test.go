package hgmap

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestNoneResolver(t *testing.T) {
	t.Parallel()

	resolver := None()

	hgRev, ok, err := resolver.Resolve("abc123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, hgRev)
	require.NoError(t, resolver.Close())
}

func TestCinnabarResolve(t *testing.T) {
	t.Parallel()

	t.Run("mapped_revision", func(t *testing.T) {
		t.Parallel()

		var sent bytes.Buffer

		resolver := New(nopWriteCloser{&sent}, strings.NewReader("hg111222\n"))

		hgRev, ok, err := resolver.Resolve("git111222")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hg111222", hgRev)
		assert.Equal(t, "git111222\n", sent.String())
	})

	t.Run("null_answer_means_unmapped", func(t *testing.T) {
		t.Parallel()

		var sent bytes.Buffer

		resolver := New(nopWriteCloser{&sent},
			strings.NewReader("0000000000000000000000000000000000000000\n"))

		_, ok, err := resolver.Resolve("gitcafe")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("answers_cached", func(t *testing.T) {
		t.Parallel()

		var sent bytes.Buffer

		resolver := New(nopWriteCloser{&sent}, strings.NewReader("hgaaa\n"))

		for range 3 {
			hgRev, ok, err := resolver.Resolve("gitaaa")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "hgaaa", hgRev)
		}

		// Only the first lookup reaches the process.
		assert.Equal(t, "gitaaa\n", sent.String())
	})

	t.Run("exhausted_stream_errors", func(t *testing.T) {
		t.Parallel()

		var sent bytes.Buffer

		resolver := New(nopWriteCloser{&sent}, strings.NewReader(""))

		_, _, err := resolver.Resolve("gitaaa")
		assert.Error(t, err)
	})

	t.Run("resolve_after_close", func(t *testing.T) {
		t.Parallel()

		var sent bytes.Buffer

		resolver := New(nopWriteCloser{&sent}, strings.NewReader(""))
		require.NoError(t, resolver.Close())

		_, _, err := resolver.Resolve("gitaaa")
		assert.ErrorIs(t, err, ErrResolverClosed)
	})
}
