package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReaction(t *testing.T) {
	assert.NoError(t, ValidateReaction("👍"))
	assert.NoError(t, ValidateReaction(":party_parrot:"))
	assert.ErrorIs(t, ValidateReaction("👍👍"), ErrInvalidReaction)
	assert.ErrorIs(t, ValidateReaction("ok"), ErrInvalidReaction)
	assert.ErrorIs(t, ValidateReaction(":a:"), ErrInvalidReaction)
}

func TestNormalizeEmojiName(t *testing.T) {
	assert.Equal(t, "party", NormalizeEmojiName(" :Party: "))
	assert.Empty(t, NormalizeEmojiName("has space"))
}
