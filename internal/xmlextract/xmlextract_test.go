package xmlextract

import (
	"strings"
	"testing"

	"kenshin-ingest/internal/cda"
	"kenshin-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCDA = `<ClinicalDocument xmlns="urn:hl7-org:v3">
  <code code="01" />
  <recordTarget>
    <patientRole>
      <id root="1.2.392.200119.6.204" extension="SYM1"/>
      <id root="1.2.392.200119.6.205" extension="NUM1"/>
      <id root="1.2.392.200119.6.211" extension="BR1"/>
      <id root="1.2.392.200119.6.101" extension="INSURER1"/>
      <addr>
        <postalCode>123-4567</postalCode>
        <state>Tokyo</state>
        <city>Chiyoda</city>
        <streetAddressLine>1-1-1</streetAddressLine>
      </addr>
      <patient>
        <name>Taro Yamada</name>
        <administrativeGenderCode code="M"/>
        <birthTime value="19800101"/>
      </patient>
    </patientRole>
  </recordTarget>
  <author>
    <time value="20240301"/>
    <assignedAuthor>
      <representedOrganization>
        <id root="1.2.392.200119.6.102" extension="FAC1"/>
        <name>Sample Clinic</name>
      </representedOrganization>
    </assignedAuthor>
  </author>
</ClinicalDocument>`

func parseSample(t *testing.T) *cda.Node {
	t.Helper()
	root, err := cda.Parse(strings.NewReader(sampleCDA))
	require.NoError(t, err)
	return root
}

func TestExtractHeaderPullsAllFields(t *testing.T) {
	root := parseSample(t)
	l := extractHeader(root, "zipsha", "innersha", model.TriTrue)

	assert.Equal(t, "zipsha", l.ZipSHA256)
	assert.Equal(t, "innersha", l.ZipInnerPathSHA256)
	assert.Equal(t, model.TriTrue, l.XsdValid)
	assert.Equal(t, "SYM1", l.InsuranceSymbol)
	assert.Equal(t, "NUM1", l.InsuranceNumber)
	assert.Equal(t, "BR1", l.InsuranceBranch)
	assert.Equal(t, "INSURER1", l.InsurerNumber)
	assert.Equal(t, "123-4567", l.PostalCode)
	assert.Equal(t, "Tokyo Chiyoda 1-1-1", l.Address)
	require.NotNil(t, l.BirthDate)
	assert.Equal(t, 1980, l.BirthDate.Year())
	assert.Equal(t, "M", l.GenderCode)
	assert.Equal(t, "Taro Yamada", l.PatientName)
	require.NotNil(t, l.ExamDate)
	assert.Equal(t, 2024, l.ExamDate.Year())
	assert.Equal(t, "FAC1", l.FacilityCode)
	assert.Equal(t, "Sample Clinic", l.FacilityName)
	assert.Equal(t, "01", l.CategoryCode)
}

func TestExtractHeaderFallsBackToCustodianOrg(t *testing.T) {
	doc := `<ClinicalDocument xmlns="urn:hl7-org:v3">
		<recordTarget><patientRole><patient/></patientRole></recordTarget>
		<custodian><assignedCustodian><representedCustodianOrganization>
			<id root="1.2.392.200119.6.102" extension="FAC2"/>
			<name>Custodian Clinic</name>
		</representedCustodianOrganization></assignedCustodian></custodian>
	</ClinicalDocument>`
	root, err := cda.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	l := extractHeader(root, "z", "i", model.TriUnknown)
	assert.Equal(t, "FAC2", l.FacilityCode)
	assert.Equal(t, "Custodian Clinic", l.FacilityName)
}

func TestExtractHeaderMissingPatientRoleLeavesFieldsEmpty(t *testing.T) {
	root, err := cda.Parse(strings.NewReader(`<ClinicalDocument xmlns="urn:hl7-org:v3"/>`))
	require.NoError(t, err)

	l := extractHeader(root, "z", "i", model.TriUnknown)
	assert.Empty(t, l.InsuranceSymbol)
	assert.Empty(t, l.Address)
	assert.Nil(t, l.BirthDate)
	assert.Nil(t, l.ExamDate)
}
