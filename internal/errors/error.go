package errors

import "github.com/pkg/errors"

var (
	// session errors
	ErrConnection        = errors.New("connection error")
	ErrAuthentication    = errors.New("authentication failed")
	ErrConnectionTimeout = errors.New("connection timeout")

	// storage errors
	ErrStorageNotReady = errors.New("storage session not available")
	ErrAccountNotFound = errors.New("account not found")

	// message errors
	ErrMessageParse    = errors.New("message could not be parsed")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidFlags    = errors.New("invalid flag update")

	// sync errors
	ErrDuplicateSynchronizer = errors.New("synchronizer already registered for account")
	ErrUnknownAccount        = errors.New("no synchronizer registered for account")
	ErrManagerNotRunning     = errors.New("synchronization manager is not running")

	// search errors
	ErrIndexClosed = errors.New("search index is closed")
)

// IsFatalSessionError reports whether reconnecting cannot help.
func IsFatalSessionError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsConnectionError reports whether err came from the transport rather than
// from a single message or command.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrConnectionTimeout)
}
