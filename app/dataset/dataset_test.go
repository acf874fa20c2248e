package dataset

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFor(t *testing.T) {
	tests := []struct {
		archive, dest, want string
	}{
		{"catset.zip", "datasets", filepath.Join("datasets", "catset")},
		{"/tmp/upload/catset.zip", "datasets", filepath.Join("datasets", "catset")},
		{"/tmp/upload/cat.set.zip", "/data", filepath.Join("/data", "cat.set")},
		{"noext", "out", filepath.Join("out", "noext")},
		{".zip", "out", filepath.Join("out", ".zip")},
		{"..a.zip", "out", filepath.Join("out", "..a")},
		{"catset.zip", "", "catset"},
	}
	for _, tt := range tests {
		t.Run(tt.archive, func(t *testing.T) {
			assert.Equal(t, tt.want, PathFor(tt.archive, tt.dest))
		})
	}
}

func TestExtractor_Extract(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{
		"a.png":         "png-data",
		"sub/":          "",
		"sub/b.txt":     "caption b",
		"deep/er/c.txt": "caption c",
	})
	dest := filepath.Join(tmpDir, "datasets")

	e := New(2)
	res, err := e.Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "catset"), res)

	assert.Equal(t, []string{"a.png", "deep/er/c.txt", "sub/b.txt"}, listFiles(t, res))
	data, err := os.ReadFile(filepath.Join(res, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "caption b", string(data))
}

func TestExtractor_ExtractIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "png", "x/y.txt": "y"})
	dest := filepath.Join(tmpDir, "datasets")

	e := &Extractor{}
	first, err := e.Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	filesFirst := listFiles(t, first)

	second, err := e.Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, filesFirst, listFiles(t, second))
}

func TestExtractor_ExtractExistingEmptyDir(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "png"})
	dest := filepath.Join(tmpDir, "datasets")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "catset"), 0o750))

	res, err := (&Extractor{}).Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, listFiles(t, res))
}

func TestExtractor_ExtractConflict(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "png"})
	dest := filepath.Join(tmpDir, "datasets")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "catset"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "catset", "unrelated.txt"), []byte("keep me"), 0o600))

	_, err := (&Extractor{}).Extract(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict), err.Error())

	// nothing merged in
	assert.Equal(t, []string{"unrelated.txt"}, listFiles(t, filepath.Join(dest, "catset")))
}

func TestExtractor_ExtractInvalidArchive(t *testing.T) {
	tmpDir := t.TempDir()
	bad := filepath.Join(tmpDir, "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("this is not a zip file"), 0o600))
	dest := filepath.Join(tmpDir, "datasets")

	_, err := (&Extractor{}).Extract(context.Background(), bad, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveFormat), err.Error())
	_, statErr := os.Stat(filepath.Join(dest, "bad"))
	assert.True(t, os.IsNotExist(statErr), "no directory for invalid archive")
}

func TestExtractor_ExtractMissingArchive(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := (&Extractor{}).Extract(context.Background(), filepath.Join(tmpDir, "nope.zip"), tmpDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesystem), err.Error())
}

func TestExtractor_ExtractZipSlip(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "evil.zip"), map[string]string{"../../escape.txt": "boo"})

	_, err := (&Extractor{}).Extract(context.Background(), archive, filepath.Join(tmpDir, "datasets"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveFormat), err.Error())
	_, statErr := os.Stat(filepath.Join(tmpDir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractor_ExtractDuplicateEntries(t *testing.T) {
	tmpDir := t.TempDir()
	archive := filepath.Join(tmpDir, "dups.zip")
	fh, err := os.Create(archive) //nolint:gosec // test file
	require.NoError(t, err)
	zw := zip.NewWriter(fh)
	for i, content := range []string{"first", "second", "third"} {
		w, err := zw.Create("caption.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
		w, err = zw.Create(fmt.Sprintf("img%d.png", i))
		require.NoError(t, err)
		_, err = w.Write([]byte("png"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fh.Close())

	for range 10 {
		dest := filepath.Join(t.TempDir(), "datasets")
		res, err := New(4).Extract(context.Background(), archive, dest)
		require.NoError(t, err)
		assert.Equal(t, []string{"caption.txt", "img0.png", "img1.png", "img2.png"}, listFiles(t, res))
		data, err := os.ReadFile(filepath.Join(res, "caption.txt"))
		require.NoError(t, err)
		assert.Equal(t, "third", string(data), "last entry with the same name wins")
	}
}

func TestExtractor_ExtractDestNotWritable(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "png"})
	dest := filepath.Join(tmpDir, "file-not-dir")
	require.NoError(t, os.WriteFile(dest, []byte("x"), 0o600))

	_, err := (&Extractor{}).Extract(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesystem), err.Error())
}

func TestExtractor_ExtractNoSpace(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "0123456789"})

	e := &Extractor{FreeSpace: func(string) (uint64, error) { return 5, nil }}
	_, err := e.Extract(context.Background(), archive, filepath.Join(tmpDir, "datasets"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesystem))
	assert.Contains(t, err.Error(), "not enough space")

	// failed space check is not fatal
	e = &Extractor{FreeSpace: func(string) (uint64, error) { return 0, errors.New("no stats") }}
	_, err = e.Extract(context.Background(), archive, filepath.Join(tmpDir, "datasets"))
	require.NoError(t, err)
}

func TestExtractor_Remove(t *testing.T) {
	tmpDir := t.TempDir()
	archive := makeZip(t, filepath.Join(tmpDir, "catset.zip"), map[string]string{"a.png": "png", "s/b": "b"})
	e := &Extractor{}
	res, err := e.Extract(context.Background(), archive, filepath.Join(tmpDir, "datasets"))
	require.NoError(t, err)

	require.NoError(t, e.Remove(res))
	_, err = os.Stat(res)
	assert.True(t, os.IsNotExist(err))

	// removing missing dir is fine
	require.NoError(t, e.Remove(res))
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, free)
}

// makeZip writes zip archive with given entries, names ending with "/" are directories
func makeZip(t *testing.T, fname string, entries map[string]string) string {
	t.Helper()
	fh, err := os.Create(fname) //nolint:gosec // test file
	require.NoError(t, err)
	zw := zip.NewWriter(fh)

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if entries[name] != "" {
			_, err = w.Write([]byte(entries[name]))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fh.Close())
	return fname
}

// listFiles returns sorted slash-separated paths of regular files under root
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var res []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		res = append(res, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(res)
	return res
}
