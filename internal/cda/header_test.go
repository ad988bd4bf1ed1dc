package cda

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIDWithRootAndExtension(t *testing.T) {
	root, err := Parse(strings.NewReader(`<doc><id root="1.2.3" extension="99"/></doc>`))
	require.NoError(t, err)
	id, nullFlavor, ok := DocumentID(root)
	assert.True(t, ok)
	assert.False(t, nullFlavor)
	assert.Equal(t, "1.2.3|99", id)
}

func TestDocumentIDWithRootOnly(t *testing.T) {
	root, err := Parse(strings.NewReader(`<doc><id root="1.2.3"/></doc>`))
	require.NoError(t, err)
	id, nullFlavor, ok := DocumentID(root)
	assert.True(t, ok)
	assert.False(t, nullFlavor)
	assert.Equal(t, "1.2.3", id)
}

func TestDocumentIDWithNullFlavor(t *testing.T) {
	root, err := Parse(strings.NewReader(`<doc><id nullFlavor="NA"/></doc>`))
	require.NoError(t, err)
	_, nullFlavor, ok := DocumentID(root)
	assert.True(t, ok)
	assert.True(t, nullFlavor)
}

func TestDocumentIDNeitherRootNorNullFlavorIsError(t *testing.T) {
	root, err := Parse(strings.NewReader(`<doc><id/></doc>`))
	require.NoError(t, err)
	_, _, ok := DocumentID(root)
	assert.False(t, ok)
}

func TestDocumentIDMissingElement(t *testing.T) {
	root, err := Parse(strings.NewReader(`<doc></doc>`))
	require.NoError(t, err)
	_, _, ok := DocumentID(root)
	assert.False(t, ok)
}

func TestIDByRootFindsMatchingOID(t *testing.T) {
	root, err := Parse(strings.NewReader(
		`<patientRole><id root="1.2.392.200119.6.204" extension="SYM1"/><id root="1.2.392.200119.6.205" extension="NUM1"/></patientRole>`))
	require.NoError(t, err)
	sym, ok := IDByRoot(root, OIDInsuranceSymbol)
	assert.True(t, ok)
	assert.Equal(t, "SYM1", sym)

	_, ok = IDByRoot(root, OIDFacilityCode)
	assert.False(t, ok)
}

func TestParseHL7Date(t *testing.T) {
	d, ok := ParseHL7Date("20230415")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC), d)

	d, ok = ParseHL7Date("20230415103000")
	require.True(t, ok)
	assert.Equal(t, 2023, d.Year())

	_, ok = ParseHL7Date("2023")
	assert.False(t, ok)

	_, ok = ParseHL7Date("notadate")
	assert.False(t, ok)
}

func TestJoinAddressPartsSkipsEmpties(t *testing.T) {
	assert.Equal(t, "Tokyo Shibuya 1-2-3", JoinAddressParts("Tokyo", "", "Shibuya", "  ", "1-2-3"))
	assert.Equal(t, "", JoinAddressParts("", "  "))
}
