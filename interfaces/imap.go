package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/models"
)

// RawMessage is a message as fetched from the server, before parsing.
type RawMessage struct {
	AccountID    string
	Folder       string
	UID          uint32
	UIDValidity  uint32
	Flags        flags.Set
	InternalDate time.Time
	Size         uint32
	Body         []byte
}

// FolderListing is one look at a folder: UIDs above the cursor in ascending
// order, and the current flags of the messages at or below it.
type FolderListing struct {
	UIDValidity uint32
	NewUIDs     []uint32
	Flags       map[uint32]flags.Set
	ObservedAt  time.Time
}

// Session is an authenticated connection to one account's server.
// Implementations wrap transport failures in ErrConnection and rejected
// credentials in ErrAuthentication.
type Session interface {
	ListFolders(ctx context.Context) ([]string, error)
	ListMessages(ctx context.Context, folder string, sinceUID uint32) (*FolderListing, error)
	Fetch(ctx context.Context, folder string, uid uint32) (*RawMessage, error)
	StoreFlags(ctx context.Context, folder string, uid uint32, add, remove flags.Set) error
	// Wait blocks until the server reports a change, the timeout expires or
	// ctx is done.
	Wait(ctx context.Context, folder string, timeout time.Duration) error
	Close() error
}

type SessionDialer interface {
	Dial(ctx context.Context, account *models.Account) (Session, error)
}
