package zipprobe

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestProbeNotFound(t *testing.T) {
	r := Probe(filepath.Join(t.TempDir(), "missing.zip"))
	assert.False(t, r.OK)
	assert.Equal(t, "not_found", r.Note)
}

func TestProbeDirectoryIsNotAFile(t *testing.T) {
	dir := t.TempDir()
	r := Probe(dir)
	assert.False(t, r.OK)
	assert.Equal(t, "not_a_file", r.Note)
}

func TestProbeBadZipFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	r := Probe(path)
	assert.False(t, r.OK)
	assert.Contains(t, r.Note, "bad_zip_file")
}

func TestProbeCountsXMLEntriesCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exam.zip")
	writeZip(t, path, map[string]string{
		"0001/DATA/exam1.xml": "<root/>",
		"0001/DATA/exam2.XML": "<root/>",
		"0001/readme.txt":     "notes",
	})

	r := Probe(path)
	assert.True(t, r.OK)
	assert.True(t, r.HasXML)
	assert.Equal(t, 2, r.XMLCount)
	assert.Equal(t, "ok", r.Note)
}

func TestProbeNoXMLEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.zip")
	writeZip(t, path, map[string]string{"readme.txt": "notes"})

	r := Probe(path)
	assert.True(t, r.OK)
	assert.False(t, r.HasXML)
	assert.Equal(t, 0, r.XMLCount)
}
