package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID(" <abc@example.com> "))
}

func TestSyntheticMessageID_IsStable(t *testing.T) {
	a := SyntheticMessageID("example.com", "acc_1", "INBOX", 7, 42)
	b := SyntheticMessageID("example.com", "acc_1", "INBOX", 7, 42)
	c := SyntheticMessageID("example.com", "acc_1", "INBOX", 7, 43)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasSuffix(a, "@example.com"))
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("acc", 12)
	assert.True(t, strings.HasPrefix(id, "acc_"))
	assert.Len(t, id, len("acc_")+12)
}

func TestUniqueEmails(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, UniqueEmails([]string{"a@x.io", "A@x.io", "b@x.io"}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcé rest", 4))
	assert.Equal(t, "abcé", Truncate("abcé rest", 5))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ab", Truncate("a\xffb", 0))

	cut := Truncate(strings.Repeat("日本語", 100), 1000)
	assert.True(t, utf8.ValidString(cut))
	assert.LessOrEqual(t, len(cut), 1000)
}
