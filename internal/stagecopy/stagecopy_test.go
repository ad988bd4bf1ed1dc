package stagecopy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyPreservingMtimeCopiesContentAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.xml")
	require.NoError(t, os.WriteFile(src, []byte("<root/>"), 0o644))

	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, want, want))

	dst := filepath.Join(dir, "nested", "dst.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, copyPreservingMtime(src, dst, want))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "<root/>", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.WithinDuration(t, want, info.ModTime(), time.Second)
}

func TestCopyPreservingMtimeMissingSourceErrors(t *testing.T) {
	dir := t.TempDir()
	err := copyPreservingMtime(filepath.Join(dir, "nope.xml"), filepath.Join(dir, "dst.xml"), time.Now())
	assert.Error(t, err)
}

func TestCopyPreservingMtimeOverwritesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.xml")
	dst := filepath.Join(dir, "dst.xml")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("stale-content-longer-than-new"), 0o644))

	require.NoError(t, copyPreservingMtime(src, dst, time.Now()))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
