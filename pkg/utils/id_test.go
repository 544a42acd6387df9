package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateClientID(t *testing.T) {
	a := GenerateClientID()
	b := GenerateClientID()

	assert.True(t, strings.HasPrefix(a, "c-"))
	assert.NotEqual(t, a, b)
}

func TestGenerateRoomTag(t *testing.T) {
	tag := GenerateRoomTag()
	assert.True(t, strings.HasPrefix(tag, "room-"))
}
