package zipimport

import (
	stderrors "errors"
	"testing"

	"kenshin-ingest/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestSplitFacilityFolderWithCode(t *testing.T) {
	code, name := splitFacilityFolder("0001_クリニック")
	assert.Equal(t, "0001", code)
	assert.Equal(t, "クリニック", name)
}

func TestSplitFacilityFolderWithoutCode(t *testing.T) {
	code, name := splitFacilityFolder("no-underscore-folder")
	assert.Equal(t, "", code)
	assert.Equal(t, "no-underscore-folder", name)
}

func TestClassifyStructureEmptyIsZipEmptyContent(t *testing.T) {
	receipt := &model.ZipReceipt{}
	classifyStructure(nil, false, receipt)
	assert.Equal(t, model.StructureError, receipt.StructureStatus)
	assert.Equal(t, "ZIP_EMPTY_CONTENT", receipt.ErrorCode)
}

func TestClassifyStructureFilesButNoXMLIsZeroXMLNotEmptyContent(t *testing.T) {
	receipt := &model.ZipReceipt{}
	classifyStructure(nil, true, receipt)
	assert.Equal(t, model.StructureError, receipt.StructureStatus)
	assert.Contains(t, receipt.ErrorCode, "STRUCT_ZERO_XML")
	assert.NotContains(t, receipt.ErrorCode, "ZIP_EMPTY_CONTENT")
}

func TestClassifyStructureNoDataDirFallsBackToAllMembers(t *testing.T) {
	members := []member{{innerPath: "exam1.xml"}, {innerPath: "exam2.xml"}}
	receipt := &model.ZipReceipt{}
	classifyStructure(members, true, receipt)
	assert.Equal(t, model.StructureOK, receipt.StructureStatus)
	assert.Equal(t, 2, receipt.DataXMLCount)
	assert.Equal(t, 0, receipt.DataDirCount)
	assert.Contains(t, receipt.ErrorCode, "STRUCT_NO_DATA_DIR")
}

func TestClassifyStructureSingleDataDirOK(t *testing.T) {
	members := []member{
		{innerPath: "0001/DATA/exam1.xml"},
		{innerPath: "0001/DATA/exam2.xml"},
		{innerPath: "0001/readme.txt"},
	}
	receipt := &model.ZipReceipt{}
	classifyStructure(members, true, receipt)
	assert.Equal(t, model.StructureOK, receipt.StructureStatus)
	assert.Equal(t, 1, receipt.DataDirCount)
	assert.Equal(t, 2, receipt.DataXMLCount)
	assert.Empty(t, receipt.ErrorCode)
}

func TestClassifyStructureMultipleDataDirsWarnsButStillOK(t *testing.T) {
	members := []member{
		{innerPath: "facility1/DATA/exam1.xml"},
		{innerPath: "facility2/DATA/exam2.xml"},
	}
	receipt := &model.ZipReceipt{}
	classifyStructure(members, true, receipt)
	assert.Equal(t, model.StructureOK, receipt.StructureStatus)
	assert.Equal(t, 2, receipt.DataDirCount)
	assert.Contains(t, receipt.ErrorCode, "STRUCT_MULTI_DATA_DIR")
}

func TestClassifyStructureDataDirWithNoXMLIsZero(t *testing.T) {
	members := []member{{innerPath: "0001/DATA/readme.txt"}}
	receipt := &model.ZipReceipt{}
	classifyStructure(members, true, receipt)
	assert.Equal(t, model.StructureError, receipt.StructureStatus)
	assert.Contains(t, receipt.ErrorCode, "STRUCT_ZERO_XML")
}

func TestClassifyZipErr(t *testing.T) {
	assert.Equal(t, catFatal, classifyZipErr(stderrors.New("file name too long")))
	assert.Equal(t, catFatal, classifyZipErr(stderrors.New("open: no such file or directory")))
	assert.Equal(t, catRetry, classifyZipErr(stderrors.New("invalid password")))
}

func TestIsLongPathErr(t *testing.T) {
	assert.True(t, isLongPathErr(stderrors.New("File name too long")))
	assert.False(t, isLongPathErr(stderrors.New("permission denied")))
}

func TestParseWellformedAcceptsValidXML(t *testing.T) {
	ok, err := parseWellformed([]byte(`<root><child/></root>`))
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestParseWellformedRejectsTruncatedXML(t *testing.T) {
	_, err := parseWellformed([]byte(`<root><child>`))
	assert.Error(t, err)
}
