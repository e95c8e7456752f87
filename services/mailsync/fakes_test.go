package mailsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

type fakeMessage struct {
	body     []byte
	flags    flags.Set
	fetchErr error
}

type fakeFolder struct {
	uidValidity uint32
	messages    map[uint32]*fakeMessage
}

// fakeServer stands in for the remote mailbox of every account it dials.
type fakeServer struct {
	mu       sync.Mutex
	folders  map[string]*fakeFolder
	dialErrs []error
	dials    int
	sessions []*fakeSession
	// hangOnWait makes Wait ignore cancellation until the session is closed
	hangOnWait bool
	changed    chan struct{}
	// gates hold Fetch of a UID until the channel is closed
	gates map[uint32]chan struct{}
	gated chan uint32
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		folders: map[string]*fakeFolder{"INBOX": {uidValidity: 1, messages: map[uint32]*fakeMessage{}}},
		changed: make(chan struct{}, 1),
	}
}

func mail(subject string) []byte {
	return []byte(fmt.Sprintf("From: Jane <jane@example.com>\r\nTo: bob@example.org\r\nSubject: %s\r\nMessage-ID: <%s@example.com>\r\n\r\nbody of %s\r\n", subject, subject, subject))
}

func (f *fakeServer) put(folder string, uid uint32, m *fakeMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[folder].messages[uid] = m
}

// gate makes the next Fetch of uid block until the returned func is called.
func (f *fakeServer) gate(uid uint32) (reached <-chan uint32, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[uint32]chan struct{})
	}
	ch := make(chan struct{})
	f.gates[uid] = ch
	f.gated = make(chan uint32, 1)
	var once sync.Once
	return f.gated, func() { once.Do(func() { close(ch) }) }
}

func (f *fakeServer) setFlags(folder string, uid uint32, s flags.Set) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[folder].messages[uid].flags = s
}

func (f *fakeServer) flagsOf(folder string, uid uint32) flags.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folders[folder].messages[uid].flags
}

func (f *fakeServer) notify() {
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

func (f *fakeServer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeServer) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if !s.isClosed() {
			return false
		}
	}
	return true
}

func (f *fakeServer) Dial(ctx context.Context, account *models.Account) (interfaces.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeSession{server: f, accountID: account.ID, closedCh: make(chan struct{})}
	f.sessions = append(f.sessions, s)
	return s, nil
}

type fakeSession struct {
	server    *fakeServer
	accountID string
	closeOnce sync.Once
	closedCh  chan struct{}
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

func (s *fakeSession) ListFolders(ctx context.Context) ([]string, error) {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	var out []string
	for name := range s.server.folders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeSession) ListMessages(ctx context.Context, folder string, sinceUID uint32) (*interfaces.FolderListing, error) {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	f := s.server.folders[folder]
	listing := &interfaces.FolderListing{UIDValidity: f.uidValidity, Flags: map[uint32]flags.Set{}, ObservedAt: utils.Now()}
	for uid, m := range f.messages {
		if uid > sinceUID {
			listing.NewUIDs = append(listing.NewUIDs, uid)
		} else {
			listing.Flags[uid] = m.flags
		}
	}
	sort.Slice(listing.NewUIDs, func(i, j int) bool { return listing.NewUIDs[i] < listing.NewUIDs[j] })
	return listing, nil
}

func (s *fakeSession) Fetch(ctx context.Context, folder string, uid uint32) (*interfaces.RawMessage, error) {
	s.server.mu.Lock()
	gate, gated := s.server.gates[uid], s.server.gated
	delete(s.server.gates, uid)
	s.server.mu.Unlock()
	if gate != nil {
		gated <- uid
		<-gate
	}

	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	f := s.server.folders[folder]
	m, ok := f.messages[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d not found", uid)
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return &interfaces.RawMessage{
		AccountID:   s.accountID,
		Folder:      folder,
		UID:         uid,
		UIDValidity: f.uidValidity,
		Flags:       m.flags,
		Body:        m.body,
	}, nil
}

func (s *fakeSession) StoreFlags(ctx context.Context, folder string, uid uint32, add, remove flags.Set) error {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	m := s.server.folders[folder].messages[uid]
	m.flags = (m.flags | add) &^ remove
	return nil
}

func (s *fakeSession) Wait(ctx context.Context, folder string, timeout time.Duration) error {
	if s.server.hangOnWait {
		<-s.closedCh
		return fmt.Errorf("connection closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.server.changed:
		return nil
	case <-s.closedCh:
		return fmt.Errorf("connection closed")
	case <-time.After(timeout):
		return nil
	}
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closedCh) })
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []dto.AccountStatusChanged
}

func (n *fakeNotifier) PublishAccountStatus(ctx context.Context, event dto.AccountStatusChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) authFailures() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.AuthFailed {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) Close() error { return nil }

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (a *fakeArchive) Store(ctx context.Context, raw *interfaces.RawMessage) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	key := fmt.Sprintf("%s/%s/%d/%d", raw.AccountID, raw.Folder, raw.UIDValidity, raw.UID)
	a.objects[key] = raw.Body
	return key, nil
}

func (a *fakeArchive) Load(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (a *fakeArchive) DeleteFolder(ctx context.Context, accountID, folder string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, accountID+"/"+folder)
	return nil
}

func (a *fakeArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}
