package models

import (
	"strconv"
	"time"
)

const (
	PreferenceFetchBatchSize        = "sync.fetch_batch_size"
	PreferenceIdleTimeout           = "sync.idle_timeout"
	PreferenceConnectTimeout        = "sync.connect_timeout"
	PreferenceStopTimeout           = "sync.stop_timeout"
	PreferenceReconnectInitialDelay = "sync.reconnect_initial_delay"
	PreferenceReconnectMaxDelay     = "sync.reconnect_max_delay"
	PreferenceSearchIndexing        = "search.indexing_enabled"
)

// Preference is one key of the root preferences node.
type Preference struct {
	Key       string    `gorm:"column:key;type:varchar(255);primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Preference) TableName() string {
	return "preferences"
}

// Preferences is a read-only snapshot of the root preferences. Missing or
// malformed values fall back to the supplied default.
type Preferences map[string]string

func (p Preferences) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

func (p Preferences) Int(key string, def int) int {
	v, err := strconv.Atoi(p[key])
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (p Preferences) Bool(key string, def bool) bool {
	v, err := strconv.ParseBool(p[key])
	if err != nil {
		return def
	}
	return v
}

func (p Preferences) Duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(p[key])
	if err != nil || v <= 0 {
		return def
	}
	return v
}
