package quarantine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveWritesRawBytes(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	raw := []byte("From: jane@example.com\r\n\r\nbroken body")
	path, err := store.Save("1042", raw)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "message-err-1042.eml"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestSaveOverwritesSameID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("7", []byte("first"))
	require.NoError(t, err)
	path, err := store.Save("7", []byte("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestSaveSanitizesHostileIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path, err := store.Save("../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.Equal(t, "message-err-.._.._etc_passwd.eml", filepath.Base(path))
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "quarantine")
	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewStoreRequiresDirectory(t *testing.T) {
	_, err := NewStore("")
	require.Error(t, err)
}
