package quarantine

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gr.Close()

	var lines []string
	sc := bufio.NewScanner(gr)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestWriteAppendsGzippedJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Directory: dir}, logrus.New())
	require.NoError(t, err)

	require.NoError(t, w.Write(Entry{Timestamp: time.Now(), Stage: "zip_import", RunID: 1, ErrorCode: "ZIP_PASSWORD", Message: "bad password"}))
	require.NoError(t, w.Write(Entry{Timestamp: time.Now(), Stage: "zip_import", RunID: 1, ErrorCode: "ZIP_OPEN", Message: "corrupt"}))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	lines := readAllLines(t, filepath.Join(dir, entries[0].Name()))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ZIP_PASSWORD")
	assert.Contains(t, lines[1], "ZIP_OPEN")
}

func TestWriteRotatesWhenMaxFileSizeExceeded(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Directory: dir, MaxFileSize: 1}, logrus.New())
	require.NoError(t, err)

	require.NoError(t, w.Write(Entry{Stage: "zip_import", ErrorCode: "A"}))
	require.NoError(t, w.Write(Entry{Stage: "zip_import", ErrorCode: "B"}))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNewCreatesDirectoryIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "quarantine")
	w, err := New(Config{Directory: dir}, logrus.New())
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
