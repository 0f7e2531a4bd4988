package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileTooLarge is returned by FileStore.Save when the upload exceeds the
// configured maximum size.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// FileStore keeps submitted files on local disk under a single directory.
type FileStore struct {
	dir     string
	maxSize int64
}

// NewFileStore creates the upload directory if needed. maxSize <= 0 disables
// the size check.
func NewFileStore(dir string, maxSize int64) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	return &FileStore{dir: abs, maxSize: maxSize}, nil
}

// Dir returns the absolute upload directory
func (f *FileStore) Dir() string {
	return f.dir
}

// Save writes r to a file named after id, keeping a safe extension from the
// original file name, and returns the stored path.
func (f *FileStore) Save(id, originalName string, r io.Reader) (string, error) {
	path := filepath.Join(f.dir, id+safeExt(originalName))

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if f.maxSize > 0 {
		// Read one byte past the limit to detect oversize input.
		src = io.LimitReader(r, f.maxSize+1)
	}
	n, err := io.Copy(out, src)
	closeErr := out.Close()
	if err == nil && f.maxSize > 0 && n > f.maxSize {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}

// Open opens a stored file. Paths outside the upload directory are refused.
func (f *FileStore) Open(path string) (*os.File, error) {
	if !f.contains(path) {
		return nil, fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (f *FileStore) Remove(path string) error {
	if path == "" || !f.contains(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func (f *FileStore) contains(path string) bool {
	rel, err := filepath.Rel(f.dir, filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// safeExt returns the lowercased extension of name when it is short and
// alphanumeric, otherwise "".
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
