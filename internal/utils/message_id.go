package utils

import (
	"crypto/sha256"
	"fmt"
)

// SyntheticMessageID derives a stable RFC 5322 message id for messages that
// arrive without one, so re-fetching the same UID yields the same id.
func SyntheticMessageID(domain, accountID, folder string, uidValidity, uid uint32) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s/%s/%d/%d", accountID, folder, uidValidity, uid)))
	if domain == "" {
		domain = "mailsync.local"
	}
	return fmt.Sprintf("%x.%d@%s", hash[:8], uid, domain)
}
