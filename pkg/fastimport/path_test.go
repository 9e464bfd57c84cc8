package fastimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain", "src/main.rs", "src/main.rs"},
		{"spaces_verbatim", "dir with spaces/file", "dir with spaces/file"},
		{"leading_quote", `"quoted".rs`, `"\"quoted\".rs"`},
		{"embedded_newline", "bad\nname", `"bad\nname"`},
		{"backslash_only_verbatim", `dir\file`, `dir\file`},
		{"quote_and_backslash", `"a\b`, `"\"a\\b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, QuotePath(tt.path))
		})
	}
}

func TestCommitish(t *testing.T) {
	t.Parallel()

	byOID := OID("abc123")
	assert.Equal(t, "abc123", byOID.String())
	assert.Equal(t, "abc123", byOID.ObjectID())
	assert.False(t, byOID.IsZero())

	_, isMark := byOID.MarkID()
	assert.False(t, isMark)

	byMark := Mark(42)
	assert.Equal(t, ":42", byMark.String())

	id, isMark := byMark.MarkID()
	assert.True(t, isMark)
	assert.Equal(t, 42, id)

	assert.True(t, Commitish{}.IsZero())
}
