package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, NormalizeLevel("TRACE"))
	assert.Equal(t, LevelInfo, NormalizeLevel("inf"))
	assert.Equal(t, LevelWarn, NormalizeLevel("Warning"))
	assert.Equal(t, LevelError, NormalizeLevel("FATAL"))

	// Unknown spellings are stored as info rather than rejected
	assert.Equal(t, LevelInfo, NormalizeLevel("verbose"))
	assert.Equal(t, LevelInfo, NormalizeLevel(""))
}
