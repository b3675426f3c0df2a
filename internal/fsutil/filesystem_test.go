package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem(t *testing.T) {
	fsys := NewMemoryFileSystem()

	t.Run("write and read", func(t *testing.T) {
		require.NoError(t, fsys.WriteFile("a.csv", []byte("hello"), 0644))

		data, err := fsys.ReadFile("a.csv")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
		assert.True(t, fsys.Exists("a.csv"))
	})

	t.Run("open streams the contents", func(t *testing.T) {
		require.NoError(t, fsys.WriteFile("b.csv", []byte("stream me"), 0644))

		f, err := fsys.Open("b.csv")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "stream me", string(data))
	})

	t.Run("create buffers until close", func(t *testing.T) {
		w, err := fsys.Create("c.csv")
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)
		assert.False(t, fsys.Exists("c.csv"))

		require.NoError(t, w.Close())
		assert.True(t, fsys.Exists("c.csv"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := fsys.Open("nope.csv")
		assert.Error(t, err)
		_, err = fsys.ReadFile("nope.csv")
		assert.Error(t, err)
		assert.False(t, fsys.Exists("nope.csv"))
	})

	t.Run("glob", func(t *testing.T) {
		require.NoError(t, fsys.WriteFile("hh1.csv", nil, 0644))
		require.NoError(t, fsys.WriteFile("hh2.csv", nil, 0644))
		require.NoError(t, fsys.WriteFile("notes.txt", nil, 0644))

		matches, err := fsys.Glob("hh*.csv")
		require.NoError(t, err)
		assert.Equal(t, []string{"hh1.csv", "hh2.csv"}, matches)
	})

	t.Run("mkdirall marks parents", func(t *testing.T) {
		require.NoError(t, fsys.MkdirAll("out/sub", 0755))
		assert.True(t, fsys.Exists("out"))
		assert.True(t, fsys.Exists("out/sub"))
	})
}

func TestOSFileSystem(t *testing.T) {
	fsys := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "a.csv")

	require.NoError(t, fsys.WriteFile(path, []byte("hello"), 0644))
	assert.True(t, fsys.Exists(path))

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	sub := filepath.Join(dir, "x", "y")
	require.NoError(t, fsys.MkdirAll(sub, 0755))
	info, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	w, err := fsys.Create(filepath.Join(dir, "b.csv"))
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	matches, err := fsys.Glob(filepath.Join(dir, "*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
