package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathHashIsDeterministic(t *testing.T) {
	a := PathHash("/share/facility1/exam.zip")
	b := PathHash("/share/facility1/exam.zip")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, PathHash("/share/facility1/other.zip"))
	assert.Len(t, a, 40) // hex-encoded SHA-1
}

func TestNormalizeInnerPath(t *testing.T) {
	cases := map[string]string{
		"DATA\\exam.xml":   "DATA/exam.xml",
		"/DATA/exam.xml":   "DATA/exam.xml",
		"DATA/exam.xml":    "DATA/exam.xml",
		"\\DATA\\exam.xml": "DATA/exam.xml",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeInnerPath(in), "input %q", in)
	}
}

func TestSHA256HexAndBytesAgree(t *testing.T) {
	s := "DATA/exam.xml"
	assert.Equal(t, SHA256Hex(s), SHA256Bytes([]byte(s)))
}

func TestSHA256File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.xml")
	content := []byte("<ClinicalDocument/>")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, SHA256Bytes(content), sum)
}

func TestSHA256FileMissing(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
