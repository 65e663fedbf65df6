package core

import (
	"errors"
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

// ErrInvalidReaction is returned when a reaction is neither a single emoji nor a
// custom emoji shortcode.
var ErrInvalidReaction = errors.New("reaction must be a single emoji or a :custom: emoji")

var customEmojiName = regexp.MustCompile(`^[a-z0-9_+-]{2,32}$`)

// IsSingleEmoji reports whether s consists of exactly one emoji and nothing else.
func IsSingleEmoji(s string) bool {
	if len(gomoji.RemoveEmojis(s)) > 0 {
		return false
	}
	return len(gomoji.FindAll(s)) == 1
}

// NormalizeEmojiName strips the surrounding colons of a custom emoji shortcode and
// lower cases it. It returns an empty string if the name is not a valid shortcode.
func NormalizeEmojiName(name string) string {
	name = strings.ToLower(strings.Trim(strings.TrimSpace(name), ":"))
	if !customEmojiName.MatchString(name) {
		return ""
	}
	return name
}

// ValidateReaction checks that a reaction is a single unicode emoji or a
// :shortcode: referring to a custom emoji.
func ValidateReaction(reaction string) error {
	if IsSingleEmoji(reaction) {
		return nil
	}
	if strings.HasPrefix(reaction, ":") && strings.HasSuffix(reaction, ":") &&
		NormalizeEmojiName(reaction) != "" {
		return nil
	}
	return ErrInvalidReaction
}
