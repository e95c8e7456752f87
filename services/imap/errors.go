package imap

import (
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
)

// isConnectionError checks if an error is related to connectivity
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	errorMsg := err.Error()
	return strings.Contains(errorMsg, "connection closed") ||
		strings.Contains(errorMsg, "i/o timeout") ||
		strings.Contains(errorMsg, "EOF") ||
		strings.Contains(errorMsg, "connection reset") ||
		strings.Contains(errorMsg, "broken pipe") ||
		strings.Contains(errorMsg, "Not logged in") ||
		strings.Contains(errorMsg, "logged out")
}

// wrapErr marks transport failures with ErrConnection so callers can tell
// them from per-message failures.
func wrapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return errors.Wrapf(mserrors.ErrConnection, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}
