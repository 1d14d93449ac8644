package chunkstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), false, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Write("doc.pdf", 0, []byte("first chunk")))
	require.NoError(t, s.Write("doc.pdf", 1, []byte{}))

	data, err := s.Read("doc.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("first chunk"), data)

	data, err = s.Read("doc.pdf", 1)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = os.Stat(filepath.Join(s.Dir(), "doc.pdf_chunk_0.bin"))
	assert.NoError(t, err)
}

func TestWriteOverwrites(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Write("b", 0, []byte("old")))
	require.NoError(t, s.Write("b", 0, []byte("new content")))

	data, err := s.Read("b", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("new content"), data)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Read("nope", 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChunkNotFound, errors.GetCode(err))
}

func TestReadRejectsCorruptedFile(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Write("b", 2, []byte("payload bytes")))

	path := filepath.Join(s.Dir(), FileName("b", 2))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[3] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Read("b", 2)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChecksumFailed, errors.GetCode(err))

	require.NoError(t, os.WriteFile(path, []byte{1, 2}, 0o644))
	_, err = s.Read("b", 2)
	assert.Equal(t, errors.ErrCodeCorruptedData, errors.GetCode(err))
}

func TestExistsAndDelete(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Write("b", 0, []byte("x")))

	ok, err := s.Exists("b", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := s.Delete("b", 0)
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err = s.Exists("b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = s.Delete("b", 0)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInventoryListsExactlyPresentChunks(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Write("a", 2, []byte("a2")))
	require.NoError(t, s.Write("a", 0, []byte("a0")))
	require.NoError(t, s.Write("a", 10, []byte("a10")))
	require.NoError(t, s.Write("x_chunk_y", 1, []byte("odd id")))
	require.NoError(t, s.Write("gone", 0, []byte("g")))
	_, err := s.Delete("gone", 0)
	require.NoError(t, err)

	// Files that are not chunks are ignored
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "a_chunk_x.bin"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "d_chunk_1.bin"), 0o755))

	inv, err := s.Inventory()
	require.NoError(t, err)
	assert.Equal(t, api.Inventory{
		"a":         {0, 2, 10},
		"x_chunk_y": {1},
	}, inv)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalChunks)
	// Each file is payload plus a 4 byte trailer
	assert.Equal(t, int64(2+2+3+6+4*4), st.TotalBytes)
	assert.InDelta(t, float64(st.TotalBytes)/(1024*1024), st.StorageUsedMB(), 1e-12)
}

func TestOpenRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-123.partial"), []byte("partial"), 0o644))

	s, err := Open(dir, true, zap.NewNop())
	require.NoError(t, err)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenKeepsChunksOfDotPrefixedBlobs(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Write(".tmp-report", 0, []byte("kept")))

	inv, err := s.Inventory()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, inv[".tmp-report"])

	reopened, err := Open(dir, false, zap.NewNop())
	require.NoError(t, err)
	data, err := reopened.Read(".tmp-report", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name   string
		blobID string
		index  int
		ok     bool
	}{
		{"doc_chunk_0.bin", "doc", 0, true},
		{"a_chunk_b_chunk_12.bin", "a_chunk_b", 12, true},
		{"_chunk_1.bin", "", 0, false},
		{"doc_chunk_.bin", "", 0, false},
		{"doc_chunk_-1.bin", "", 0, false},
		{"doc_chunk_1.tmp", "", 0, false},
		{"doc_chunk_1.bin.partial", "", 0, false},
		{".tmp-doc_chunk_1.bin", ".tmp-doc", 1, true},
		{"doc_chunk_007.bin", "", 0, false},
		{"doc_chunk_00.bin", "", 0, false},
		{"doc_chunk_10.bin", "doc", 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobID, idx, ok := ParseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.blobID, blobID)
				assert.Equal(t, tt.index, idx)
				assert.Equal(t, tt.name, FileName(blobID, idx))
			}
		})
	}
}

func TestConcurrentWritesSameChunk(t *testing.T) {
	s := openStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Write("hot", 0, []byte("same payload")))
		}()
	}
	wg.Wait()

	data, err := s.Read("hot", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("same payload"), data)
}
