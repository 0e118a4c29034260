package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "a.txt_chunk_0", ChunkID("a.txt", 0))
	assert.Equal(t, "docs/b.md_chunk_12", ChunkID("docs/b.md", 12))
}

func TestParseChunkID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantKey string
		wantOrd int
		wantOK  bool
	}{
		{name: "simple", id: "a.txt_chunk_0", wantKey: "a.txt", wantOrd: 0, wantOK: true},
		{name: "nested path", id: "x/y/z.md_chunk_7", wantKey: "x/y/z.md", wantOrd: 7, wantOK: true},
		{name: "separator inside key", id: "my_chunk_notes.txt_chunk_3", wantKey: "my_chunk_notes.txt", wantOrd: 3, wantOK: true},
		{name: "missing separator", id: "a.txt", wantOK: false},
		{name: "empty key", id: "_chunk_1", wantOK: false},
		{name: "non numeric ordinal", id: "a.txt_chunk_x", wantOK: false},
		{name: "negative ordinal", id: "a.txt_chunk_-1", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ord, ok := ParseChunkID(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantKey, key)
				assert.Equal(t, tt.wantOrd, ord)
			}
		})
	}
}

func TestNewChunk_Validate(t *testing.T) {
	c := NewChunk("notes.md", 2, "héllo")
	require.NoError(t, c.Validate())
	assert.Equal(t, "notes.md_chunk_2", c.ID)
	assert.Equal(t, 5, c.Length())

	c.ID = "other"
	assert.ErrorIs(t, c.Validate(), ErrChunkIDMismatch)

	empty := NewChunk("notes.md", 0, "")
	assert.ErrorIs(t, empty.Validate(), ErrEmptyContent)

	noKey := NewChunk("", 0, "text")
	assert.ErrorIs(t, noKey.Validate(), ErrEmptySourceKey)
}

func TestSourceFile_SameContent(t *testing.T) {
	a := SourceFile{Key: "a", Fingerprint: "abc"}
	b := SourceFile{Key: "a", Fingerprint: "abc", SizeBytes: 10}
	c := SourceFile{Key: "a", Fingerprint: "def"}

	assert.True(t, a.SameContent(b))
	assert.False(t, a.SameContent(c))
	assert.False(t, SourceFile{}.SameContent(SourceFile{}))
}

func TestKeyForAndHidden(t *testing.T) {
	key, err := KeyFor("/root/docs", "/root/docs/sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "sub/file.txt", key)

	assert.True(t, IsHidden(".git/config"))
	assert.True(t, IsHidden("a/.cache/b.txt"))
	assert.False(t, IsHidden("a/b.txt"))
}

func TestRecordFromChunk(t *testing.T) {
	c := NewChunk("a.txt", 1, "text")
	rec := RecordFromChunk(c, []float32{1, 2})
	require.NoError(t, rec.Validate())
	assert.Equal(t, "a.txt", rec.Metadata.Source)
	assert.Equal(t, c.ID, rec.ID)

	rec.Vector = nil
	assert.ErrorIs(t, rec.Validate(), ErrEmptyVector)
}
