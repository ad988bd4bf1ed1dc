package cda

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3">
  <id root="1.2.392.200119.6.101" extension="99999"/>
  <recordTarget>
    <patientRole>
      <id root="1.2.392.200119.6.204" extension="ABC123"/>
      <patient>
        <name>ヤマダ タロウ<given>タロウ</given></name>
      </patient>
    </patientRole>
  </recordTarget>
  <component>
    <structuredBody>
      <component>
        <section>
          <entry>
            <observation>
              <code code="009020" codeSystem="1.2.392.200119.6.202"/>
              <value xsi:type="PQ" value="120" unit="mmHg"/>
            </observation>
          </entry>
          <entry>
            <observation>
              <code code="009021"/>
              <value xsi:type="PQ" value="80" unit="mmHg"/>
            </observation>
          </entry>
        </section>
      </component>
    </structuredBody>
  </component>
</ClinicalDocument>`

func TestParseBuildsTreeWithStrippedNamespace(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "ClinicalDocument", root.Local)
}

func TestAttrIgnoresMissingAndNilReceiver(t *testing.T) {
	var n *Node
	_, ok := n.Attr("root")
	assert.False(t, ok)

	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	idNode := root.Child("id")
	require.NotNil(t, idNode)
	root2, ok := idNode.Attr("root")
	assert.True(t, ok)
	assert.Equal(t, "1.2.392.200119.6.101", root2)

	_, ok = idNode.Attr("nullFlavor")
	assert.False(t, ok)
}

func TestFindAllDescendsAllDepths(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	observations := root.FindAll("observation")
	assert.Len(t, observations, 2)
	code, ok := observations[0].Child("code").Attr("code")
	assert.True(t, ok)
	assert.Equal(t, "009020", code)
}

func TestStringValueConcatenatesDescendants(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	name := root.Find("recordTarget", "patientRole", "patient", "name")
	require.NotNil(t, name)
	assert.Contains(t, name.StringValue(), "タロウ")
}

func TestDirectTextExcludesChildElementText(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	name := root.Find("recordTarget", "patientRole", "patient", "name")
	require.NotNil(t, name)
	assert.Equal(t, "ヤマダ タロウ", name.DirectText())
}

func TestFindReturnsNilOnMissingSegment(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	assert.Nil(t, root.Find("recordTarget", "nonexistent"))
}

func TestParseEmptyReaderErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)
}
