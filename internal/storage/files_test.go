package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveOpenRemove(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "uploads"), 1024)
	require.NoError(t, err)

	path, err := fs.Save("sub-1", "Homework 1.PDF", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.Dir(), "sub-1.pdf"), path)

	f, err := fs.Open(path)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, "%PDF-1.4 body", string(body))

	// Same ID twice must not overwrite.
	_, err = fs.Save("sub-1", "again.pdf", strings.NewReader("x"))
	assert.Error(t, err)

	require.NoError(t, fs.Remove(path))
	_, err = fs.Open(path)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, fs.Remove(path))
}

func TestFileStore_TooLarge(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = fs.Save("big", "big.txt", strings.NewReader("12345"))
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	_, statErr := os.Stat(filepath.Join(fs.Dir(), "big.txt"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = fs.Save("fits", "fits.txt", strings.NewReader("1234"))
	assert.NoError(t, err)
}

func TestFileStore_RefusesOutsidePaths(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStore(filepath.Join(root, "uploads"), 0)
	require.NoError(t, err)

	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0600))

	_, err = fs.Open(outside)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = fs.Open(filepath.Join(fs.Dir(), "..", "secret.txt"))
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, fs.Remove(outside))
	assert.FileExists(t, outside)
}

func TestSafeExt(t *testing.T) {
	assert.Equal(t, ".pdf", safeExt("report.PDF"))
	assert.Equal(t, ".tar", safeExt("../../etc/x.tar"))
	assert.Equal(t, "", safeExt("noext"))
	assert.Equal(t, "", safeExt("weird.p$f"))
	assert.Equal(t, "", safeExt("file."))
	assert.Equal(t, "", safeExt("x.verylongextension"))
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("", 0)
	assert.Error(t, err)
}
