package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToSeverityError(t *testing.T) {
	e := New(CodeZipOpen, "zipimport", "extractZip", "could not open archive")
	assert.Equal(t, SeverityError, e.Severity)
	assert.False(t, e.IsCritical())
	assert.False(t, e.IsWarning())
}

func TestNewWarningAndCritical(t *testing.T) {
	w := NewWarning(CodeXMLParse, "xmlextract", "parse", "non-fatal")
	assert.True(t, w.IsWarning())

	c := NewCritical(CodeLedgerUpsert, "xmlextract", "upsert", "fatal")
	assert.True(t, c.IsCritical())
}

func TestErrorStringIncludesCauseWhenWrapped(t *testing.T) {
	cause := stderrors.New("bad password")
	e := New(CodeZipPassword, "zipimport", "extractZip", "all candidates exhausted").Wrap(cause)
	assert.Contains(t, e.Error(), "ZIP_PASSWORD")
	assert.Contains(t, e.Error(), "bad password")

	e2 := New(CodeXMLParse, "xmlextract", "parse", "malformed xml")
	assert.NotContains(t, e2.Error(), "<nil>")
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := stderrors.New("root cause")
	e := New(CodeZipOpen, "zipimport", "open", "failed").Wrap(cause)
	assert.Equal(t, cause, e.Unwrap())
	assert.True(t, stderrors.Is(e, cause))
}

func TestWithMetadataAndToMap(t *testing.T) {
	e := New(CodeStructZeroXML, "zipimport", "classifyStructure", "no xml members").
		WithMetadata("zip_sha256", "abc123")
	m := e.ToMap()
	assert.Equal(t, "STRUCT_ZERO_XML", m["code"])
	assert.Equal(t, "abc123", m["zip_sha256"])
	assert.Equal(t, "error", m["severity"])
}

func TestAsExtractsAppError(t *testing.T) {
	var err error = New(CodeRowKeyMissing, "db", "upsert", "missing key column")
	ae, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, CodeRowKeyMissing, ae.Code)

	_, ok = As(stderrors.New("plain error"))
	assert.False(t, ok)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "hello", Shorten("hello", 10))
	assert.Equal(t, "hel...(truncated)", Shorten("hello world", 3))
}
