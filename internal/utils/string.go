package utils

import (
	"strings"
	"unicode/utf8"
)

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// Truncate returns valid UTF-8 of at most maxBytes bytes. Invalid sequences
// are dropped and the cut never splits a character.
func Truncate(s string, maxBytes int) string {
	s = strings.ToValidUTF8(s, "")
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
