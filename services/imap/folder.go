package imap

import (
	"context"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// ListFolders returns the selectable folders, sorted by name.
func (s *session) ListFolders(ctx context.Context) ([]string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPSession.ListFolders")
	defer span.Finish()
	tracing.TagAccount(span, s.accountID)

	s.client.Timeout = defaultCommandTimeout
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		if hasAttribute(m.Attributes, imap.NoSelectAttr) {
			continue
		}
		folders = append(folders, m.Name)
	}
	s.client.Timeout = 0

	if err := <-done; err != nil {
		err = wrapErr(err, "failed to list folders")
		tracing.TraceErr(span, err)
		return nil, err
	}

	sort.Strings(folders)
	span.SetTag("folders.count", len(folders))
	return folders, nil
}

func (s *session) ListMessages(ctx context.Context, folder string, sinceUID uint32) (*interfaces.FolderListing, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPSession.ListMessages")
	defer span.Finish()
	tracing.TagAccount(span, s.accountID)
	tracing.TagFolder(span, folder)
	span.SetTag("since_uid", sinceUID)

	uidValidity, err := s.selectFolder(folder)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	listing := &interfaces.FolderListing{
		UIDValidity: uidValidity,
		Flags:       make(map[uint32]flags.Set),
		ObservedAt:  utils.Now(),
	}

	// n:* always matches the highest UID, so results need filtering
	criteria := imap.NewSearchCriteria()
	uidRange := new(imap.SeqSet)
	uidRange.AddRange(sinceUID+1, 0)
	criteria.Uid = uidRange

	s.client.Timeout = defaultCommandTimeout
	uids, err := s.client.UidSearch(criteria)
	s.client.Timeout = 0
	if err != nil {
		err = wrapErr(err, "error searching for new messages")
		tracing.TraceErr(span, err)
		return nil, err
	}
	for _, uid := range uids {
		if uid > sinceUID {
			listing.NewUIDs = append(listing.NewUIDs, uid)
		}
	}
	sort.Slice(listing.NewUIDs, func(i, j int) bool { return listing.NewUIDs[i] < listing.NewUIDs[j] })

	if sinceUID > 0 {
		known := new(imap.SeqSet)
		known.AddRange(1, sinceUID)
		if err := s.fetchFlags(known, listing.Flags); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	span.SetTag("uid_validity", uidValidity)
	span.SetTag("new_uids", len(listing.NewUIDs))
	return listing, nil
}

func (s *session) fetchFlags(seqSet *imap.SeqSet, out map[uint32]flags.Set) error {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	s.client.Timeout = defaultFetchTimeout
	go func() {
		done <- s.client.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchFlags}, messages)
	}()
	for msg := range messages {
		if msg.Uid != 0 {
			out[msg.Uid] = flags.FromIMAP(msg.Flags)
		}
	}
	s.client.Timeout = 0

	return wrapErr(<-done, "error fetching flags")
}

func hasAttribute(attrs []string, attr string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}
