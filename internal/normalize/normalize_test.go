package normalize

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStage() *Stage {
	return NewStage(nil, nil, 0, logrus.New())
}

func TestNormalizeOneSTPassesRawThrough(t *testing.T) {
	s := newTestStage()
	v, err := s.normalizeOne(context.Background(), "ST", "  some text  ", "")
	require.NoError(t, err)
	assert.Equal(t, "  some text  ", v)
}

func TestNormalizeOneSTRejectsEmpty(t *testing.T) {
	s := newTestStage()
	_, err := s.normalizeOne(context.Background(), "ST", "", "")
	assert.Error(t, err)
}

func TestNormalizeOneEmptyTypeBehavesLikeST(t *testing.T) {
	s := newTestStage()
	v, err := s.normalizeOne(context.Background(), "", "value", "")
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestNormalizeOnePQTrimsAndValidatesNumber(t *testing.T) {
	s := newTestStage()
	v, err := s.normalizeOne(context.Background(), "PQ", "  120.5  ", "")
	require.NoError(t, err)
	assert.Equal(t, "120.5", v)
}

func TestNormalizeOnePQRejectsNonNumeric(t *testing.T) {
	s := newTestStage()
	_, err := s.normalizeOne(context.Background(), "PQ", "not-a-number", "")
	assert.Error(t, err)
}

func TestNormalizeOnePQRejectsEmpty(t *testing.T) {
	s := newTestStage()
	_, err := s.normalizeOne(context.Background(), "PQ", "   ", "")
	assert.Error(t, err)
}

func TestNormalizeOneCDRequiresResultCodeOID(t *testing.T) {
	s := newTestStage()
	_, err := s.normalizeOne(context.Background(), "CD", "01", "")
	assert.Error(t, err)
}

func TestNormalizeOneUnsupportedType(t *testing.T) {
	s := newTestStage()
	_, err := s.normalizeOne(context.Background(), "BOGUS", "x", "")
	assert.Error(t, err)
}
