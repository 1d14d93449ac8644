// Package chunkstore keeps chunks as individual files named
// <blobId>_chunk_<N>.bin, each carrying a CRC32 trailer.
package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/pkg/api"
	"github.com/devrev/pairfs/storage-node/internal/errors"
	"github.com/devrev/pairfs/storage-node/internal/util"
)

const (
	chunkMarker = "_chunk_"
	chunkSuffix = ".bin"
	tempSuffix  = ".partial"
)

// Stats summarizes what a store holds on disk.
type Stats struct {
	TotalChunks int
	TotalBytes  int64
}

// StorageUsedMB reports TotalBytes in mebibytes.
func (s Stats) StorageUsedMB() float64 {
	return float64(s.TotalBytes) / (1024.0 * 1024.0)
}

// Store is a directory of chunk files.
type Store struct {
	dir        string
	syncWrites bool
	logger     *zap.Logger
}

// Open prepares dir for chunk storage and removes temp files left by an
// interrupted write.
func Open(dir string, syncWrites bool, logger *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{dir: abs, syncWrites: syncWrites, logger: logger}
	s.removeTempFiles()
	return s, nil
}

// Dir returns the absolute data directory.
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the file name used for a chunk.
func FileName(blobID string, chunkIndex int) string {
	return blobID + chunkMarker + strconv.Itoa(chunkIndex) + chunkSuffix
}

// ParseFileName is the inverse of FileName. Blob ids may themselves contain
// the chunk marker, so the last occurrence delimits the index.
func ParseFileName(name string) (blobID string, chunkIndex int, ok bool) {
	if !strings.HasSuffix(name, chunkSuffix) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, chunkSuffix)
	pos := strings.LastIndex(stem, chunkMarker)
	if pos <= 0 {
		return "", 0, false
	}
	digits := stem[pos+len(chunkMarker):]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return "", 0, false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return "", 0, false
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return "", 0, false
	}
	return stem[:pos], idx, true
}

func (s *Store) path(blobID string, chunkIndex int) string {
	return filepath.Join(s.dir, FileName(blobID, chunkIndex))
}

// Write stores data for the chunk, replacing any previous content. The file
// appears under its final name only once fully written.
func (s *Store) Write(blobID string, chunkIndex int, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "chunk-*"+tempSuffix)
	if err != nil {
		return errors.InternalError("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(util.AppendChecksum(data)); err != nil {
		tmp.Close()
		return errors.InternalError("failed to write chunk", err)
	}
	if s.syncWrites {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return errors.InternalError("failed to sync chunk", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.InternalError("failed to close chunk file", err)
	}
	if err := os.Rename(tmpName, s.path(blobID, chunkIndex)); err != nil {
		return errors.InternalError("failed to rename chunk file", err)
	}
	tmpName = ""
	return nil
}

// Read returns the chunk's data after verifying its checksum.
func (s *Store) Read(blobID string, chunkIndex int) ([]byte, error) {
	framed, err := os.ReadFile(s.path(blobID, chunkIndex))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ChunkNotFound(blobID, chunkIndex)
		}
		return nil, errors.InternalError("failed to read chunk", err)
	}

	data, stored, actual, ok := util.SplitChecksum(framed)
	if !ok {
		return nil, errors.CorruptedData(fmt.Sprintf("chunk %s/%d is truncated", blobID, chunkIndex), nil)
	}
	if stored != actual {
		return nil, errors.ChecksumFailed(blobID, chunkIndex, stored, actual)
	}
	return data, nil
}

// Exists reports whether the chunk file is present.
func (s *Store) Exists(blobID string, chunkIndex int) (bool, error) {
	_, err := os.Stat(s.path(blobID, chunkIndex))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.InternalError("failed to stat chunk", err)
}

// Delete removes the chunk. It reports whether a file was removed; deleting
// an absent chunk is not an error.
func (s *Store) Delete(blobID string, chunkIndex int) (bool, error) {
	err := os.Remove(s.path(blobID, chunkIndex))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.InternalError("failed to delete chunk", err)
}

// Inventory lists the chunk indices present per blob, sorted ascending.
func (s *Store) Inventory() (api.Inventory, error) {
	inv := api.Inventory{}
	err := s.walk(func(blobID string, chunkIndex int, _ os.DirEntry) {
		inv[blobID] = append(inv[blobID], chunkIndex)
	})
	if err != nil {
		return nil, err
	}
	for _, idx := range inv {
		sort.Ints(idx)
	}
	return inv, nil
}

// Stats counts chunk files and their size on disk.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.walk(func(_ string, _ int, entry os.DirEntry) {
		st.TotalChunks++
		if info, err := entry.Info(); err == nil {
			st.TotalBytes += info.Size()
		}
	})
	return st, err
}

func (s *Store) walk(fn func(blobID string, chunkIndex int, entry os.DirEntry)) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.InternalError("failed to list data directory", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		blobID, idx, ok := ParseFileName(entry.Name())
		if !ok {
			continue
		}
		fn(blobID, idx, entry)
	}
	return nil
}

func (s *Store) removeTempFiles() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), tempSuffix) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				s.logger.Info("Removed incomplete chunk write", zap.String("file", entry.Name()))
			}
		}
	}
}
