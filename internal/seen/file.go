package seen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the seen-set file inside the config directory.
const DefaultFileName = "processed.txt"

// FileStore keeps one identity per line in a flat text file.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file. A missing file is an empty set.
func (f *FileStore) Load(_ context.Context) (*Set, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seen file: %w", err)
	}
	defer func() { _ = file.Close() }()

	s := NewSet()
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			s.Add(id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seen file: %w", err)
	}
	return s, nil
}

// Persist rewrites the whole file through a synced temp file and a rename,
// so a crash leaves either the old or the new contents.
func (f *FileStore) Persist(_ context.Context, s *Set) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create seen dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := bufio.NewWriter(tmp)
	for _, id := range s.IDs() {
		if _, err := w.WriteString(id + "\n"); err != nil {
			cleanup()
			return fmt.Errorf("write seen file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush seen file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync seen file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close seen file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace seen file: %w", err)
	}
	return nil
}

// Reset deletes the file.
func (f *FileStore) Reset(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove seen file: %w", err)
	}
	return nil
}

// Size returns the file size in bytes, zero when absent.
func (f *FileStore) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}
