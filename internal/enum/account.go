package enum

type SocketType string

const (
	SocketSSL      SocketType = "ssl"
	SocketStartTLS SocketType = "starttls"
	SocketPlain    SocketType = "plain"
)

func (t SocketType) String() string {
	return string(t)
}

func (t SocketType) IsValid() bool {
	switch t {
	case SocketSSL, SocketStartTLS, SocketPlain:
		return true
	}
	return false
}

// SyncStatus is the persisted summary of an account's synchronizer.
type SyncStatus string

const (
	SyncStatusIdle       SyncStatus = "idle"
	SyncStatusConnecting SyncStatus = "connecting"
	SyncStatusSyncing    SyncStatus = "syncing"
	SyncStatusWaiting    SyncStatus = "waiting"
	SyncStatusStopping   SyncStatus = "stopping"
	SyncStatusStopped    SyncStatus = "stopped"
	SyncStatusFailed     SyncStatus = "failed"
)

func (s SyncStatus) String() string {
	return string(s)
}
