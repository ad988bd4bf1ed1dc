package itemextract

import (
	"strings"
	"testing"

	"kenshin-ingest/internal/cda"
	"kenshin-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseValueNode(t *testing.T, xmlStr string) *cda.Node {
	t.Helper()
	root, err := cda.Parse(strings.NewReader(xmlStr))
	require.NoError(t, err)
	return root
}

func TestExtractValueDefaultMethodPrefersAttrOverText(t *testing.T) {
	v := parseValueNode(t, `<value value="120" unit="mmHg">ignored</value>`)
	assert.Equal(t, "120", extractValue(v, nil))
}

func TestExtractValueDefaultMethodFallsBackToText(t *testing.T) {
	v := parseValueNode(t, `<value>raw text</value>`)
	assert.Equal(t, "raw text", extractValue(v, nil))
}

func TestExtractValueTextMethod(t *testing.T) {
	v := parseValueNode(t, `<value>outer<sub>inner</sub></value>`)
	master := &model.ItemMaster{ValueMethod: "text()"}
	assert.Equal(t, "outer", extractValue(v, master))
}

func TestExtractValueStringMethod(t *testing.T) {
	v := parseValueNode(t, `<value>outer<sub>inner</sub></value>`)
	master := &model.ItemMaster{ValueMethod: "string()"}
	assert.Equal(t, "outerinner", extractValue(v, master))
}

func TestExtractValueAttrMethod(t *testing.T) {
	v := parseValueNode(t, `<value code="X1" displayName="foo"/>`)
	master := &model.ItemMaster{ValueMethod: "@code"}
	assert.Equal(t, "X1", extractValue(v, master))
}

func TestExtractValueNilNode(t *testing.T) {
	assert.Equal(t, "", extractValue(nil, nil))
}

func TestResolveValueTypePrefersMasterDeclaredType(t *testing.T) {
	v := parseValueNode(t, `<value xsi:type="CD"/>`)
	master := &model.ItemMaster{XMLValueType: "PQ"}
	assert.Equal(t, "PQ", resolveValueType(v, master, "120"))
}

func TestResolveValueTypeFallsBackToXsiType(t *testing.T) {
	v := parseValueNode(t, `<value xsi:type="CD"/>`)
	assert.Equal(t, "CD", resolveValueType(v, nil, "01"))
}

func TestResolveValueTypeDefaultsToSTWhenValuePresent(t *testing.T) {
	v := parseValueNode(t, `<value/>`)
	assert.Equal(t, "ST", resolveValueType(v, nil, "some text"))
}

func TestResolveValueTypeEmptyWhenNothingResolves(t *testing.T) {
	v := parseValueNode(t, `<value/>`)
	assert.Equal(t, "", resolveValueType(v, nil, ""))
}

func TestFillCodeAttrsPrefersValueNodeOverCodeNode(t *testing.T) {
	valueNode := parseValueNode(t, `<value unit="mmHg" codeSystem="1.2.3" code="X" displayName="Value Display"/>`)
	codeNode := parseValueNode(t, `<code codeSystem="9.9.9" code="Y" displayName="Code Display"/>`)
	v := &model.XmlItemValue{}
	fillCodeAttrs(v, valueNode, codeNode)
	assert.Equal(t, "mmHg", v.Unit)
	assert.Equal(t, "1.2.3", v.CodeSystem)
	assert.Equal(t, "X", v.CodeValue)
	assert.Equal(t, "Value Display", v.CodeDisplay)
}

func TestFillCodeAttrsFallsBackToCodeNode(t *testing.T) {
	valueNode := parseValueNode(t, `<value/>`)
	codeNode := parseValueNode(t, `<code codeSystem="9.9.9" code="Y" displayName="Code Display"/>`)
	v := &model.XmlItemValue{}
	fillCodeAttrs(v, valueNode, codeNode)
	assert.Equal(t, "9.9.9", v.CodeSystem)
	assert.Equal(t, "Y", v.CodeValue)
	assert.Equal(t, "Code Display", v.CodeDisplay)
}
