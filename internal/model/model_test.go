package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopePriorityOrdersZipSHA256First(t *testing.T) {
	assert.Less(t, ScopePriority(ScopeZipSHA256), ScopePriority(ScopeZipName))
	assert.Less(t, ScopePriority(ScopeZipName), ScopePriority(ScopeFacility))
}

func TestScopePriorityUnknownScopeSortsLast(t *testing.T) {
	assert.Greater(t, ScopePriority(PasswordScope("BOGUS")), ScopePriority(ScopeFacility))
}

func TestTriFromBool(t *testing.T) {
	assert.Equal(t, TriTrue, TriFromBool(true))
	assert.Equal(t, TriFalse, TriFromBool(false))
}
