package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreferences_Defaults(t *testing.T) {
	p := Preferences{
		PreferenceFetchBatchSize: "25",
		PreferenceIdleTimeout:    "garbage",
		PreferenceStopTimeout:    "-1s",
		PreferenceSearchIndexing: "false",
	}

	assert.Equal(t, 25, p.Int(PreferenceFetchBatchSize, 50))
	assert.Equal(t, 5*time.Minute, p.Duration(PreferenceIdleTimeout, 5*time.Minute))
	assert.Equal(t, 10*time.Second, p.Duration(PreferenceStopTimeout, 10*time.Second))
	assert.False(t, p.Bool(PreferenceSearchIndexing, true))
	assert.Equal(t, "x", p.String("missing", "x"))
}

func TestPreferences_NilIsUsable(t *testing.T) {
	var p Preferences
	assert.Equal(t, 3, p.Int(PreferenceFetchBatchSize, 3))
	assert.True(t, p.Bool(PreferenceSearchIndexing, true))
}

func TestAccount_Domain(t *testing.T) {
	a := &Account{Host: "imap.example.com", Port: 993}
	assert.Equal(t, "imap.example.com", a.Domain())
	assert.Equal(t, "imap.example.com:993", a.Address())

	a.EmailAddress = "Jane@Example.org"
	assert.Equal(t, "example.org", a.Domain())
}
