package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

// MessageFactory turns fetched bytes into a storable message. It performs no
// I/O; a returned error marks the message as unparseable.
type MessageFactory interface {
	Build(ctx context.Context, raw *RawMessage) (*models.Message, error)
}

type SearchField string

const (
	SearchFieldAny     SearchField = "any"
	SearchFieldSubject SearchField = "subject"
	SearchFieldBody    SearchField = "body"
	SearchFieldFrom    SearchField = "from"
)

type SearchQuery struct {
	AccountID string
	Text      string
	Field     SearchField
	Limit     int
}

// MessageSearchIndex buffers added messages until Commit. Commit is
// idempotent and safe to call concurrently with AddMessage.
type MessageSearchIndex interface {
	AddMessage(ctx context.Context, message *models.Message) error
	Commit(ctx context.Context) error
	Search(ctx context.Context, query SearchQuery) ([]models.SearchDocument, error)
	// RemoveMessage and RemoveFolder drop pending and committed documents.
	RemoveMessage(ctx context.Context, accountID, folder string, uid uint32) error
	RemoveFolder(ctx context.Context, accountID, folder string) error
	Close() error
}

type VerificationResult struct {
	Verified bool
	Signer   string
}

type CryptoAgent interface {
	NeedsVerification(message *models.Message) bool
	Verify(ctx context.Context, message *models.Message) (*VerificationResult, error)
}

// RawArchive keeps the original bytes of fetched messages outside the
// database, keyed by account, folder, UIDVALIDITY and UID.
type RawArchive interface {
	Store(ctx context.Context, raw *RawMessage) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	DeleteFolder(ctx context.Context, accountID, folder string) error
}
