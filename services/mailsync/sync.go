package mailsync

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// syncAll runs one pass over every folder. Transport and storage errors end
// the pass; anything else is logged and the next folder is tried.
func (s *AccountSynchronizer) syncAll(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "AccountSynchronizer.syncAll")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)
	accountID := s.accountID()
	tracing.TagAccount(span, accountID)

	started := time.Now()
	prefs := s.loadPreferences(ctx)

	session := s.currentSession()
	if session == nil {
		return context.Canceled
	}

	folders, err := session.ListFolders(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.mu.Lock()
	s.idleFolder = pickIdleFolder(folders)
	s.mu.Unlock()

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncFolder(ctx, session, folder, prefs); err != nil {
			if ctx.Err() != nil || mserrors.IsConnectionError(err) || errors.Is(err, mserrors.ErrStorageNotReady) {
				tracing.TraceErr(span, err)
				return err
			}
			s.log.Errorf("[%s][%s] Folder sync failed: %v", accountID, folder, err)
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
		}
	}

	metricPassDuration.Observe(time.Since(started).Seconds())
	span.SetTag("folders.count", len(folders))
	return nil
}

func pickIdleFolder(folders []string) string {
	for _, f := range folders {
		if f == "INBOX" {
			return f
		}
	}
	if len(folders) > 0 {
		return folders[0]
	}
	return ""
}

func (s *AccountSynchronizer) syncFolder(ctx context.Context, session interfaces.Session, folder string, prefs models.Preferences) error {
	span, ctx := tracing.StartTracerSpan(ctx, "AccountSynchronizer.syncFolder")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)
	accountID := s.accountID()
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	repos := s.deps.Repositories
	cursor, err := repos.FolderCursorRepository.GetCursor(ctx, accountID, folder)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if cursor == nil {
		cursor = &models.FolderCursor{AccountID: accountID, FolderName: folder}
	}
	previousListing := cursor.ListedAt

	listing, err := session.ListMessages(ctx, folder, cursor.LastUID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if cursor.UIDValidity != 0 && cursor.UIDValidity != listing.UIDValidity {
		s.log.Warnf("[%s][%s] UIDVALIDITY changed from %d to %d, resyncing folder",
			accountID, folder, cursor.UIDValidity, listing.UIDValidity)
		span.LogKV("uid_validity.old", cursor.UIDValidity, "uid_validity.new", listing.UIDValidity)

		if err := repos.MessageRepository.DeleteFolder(ctx, accountID, folder); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		s.dropPending(folder)
		if s.deps.Index != nil {
			if err := s.deps.Index.RemoveFolder(ctx, accountID, folder); err != nil {
				s.log.Warnf("[%s][%s] Could not clear search documents: %v", accountID, folder, err)
			}
		}
		if s.deps.Archive != nil {
			if err := s.deps.Archive.DeleteFolder(ctx, accountID, folder); err != nil {
				s.log.Warnf("[%s][%s] Could not clear archived messages: %v", accountID, folder, err)
			}
		}
		cursor.LastUID = 0
		previousListing = time.Time{}
		if listing, err = session.ListMessages(ctx, folder, 0); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	cursor.UIDValidity = listing.UIDValidity

	if err := s.reconcileFlags(ctx, session, folder, listing, previousListing); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	cursor.ListedAt = listing.ObservedAt
	if cursor.ListedAt.IsZero() {
		cursor.ListedAt = utils.Now()
	}

	if err := s.fetchNew(ctx, session, folder, listing, cursor, prefs); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := repos.FolderCursorRepository.SaveCursor(context.WithoutCancel(ctx), cursor); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("last_uid", cursor.LastUID)
	return nil
}

// fetchNew downloads new UIDs in batches. Each batch holds one pool slot;
// cancellation is checked between messages, never during a fetch.
func (s *AccountSynchronizer) fetchNew(ctx context.Context, session interfaces.Session, folder string, listing *interfaces.FolderListing, cursor *models.FolderCursor, prefs models.Preferences) error {
	batchSize := prefs.Int(models.PreferenceFetchBatchSize, s.deps.Config.FetchBatchSize)
	if batchSize <= 0 {
		batchSize = 50
	}
	indexing := prefs.Bool(models.PreferenceSearchIndexing, s.deps.Indexing) && s.deps.Index != nil

	uids := listing.NewUIDs
	for start := 0; start < len(uids); start += batchSize {
		end := min(start+batchSize, len(uids))
		batch := uids[start:end]

		err := s.deps.Pool.Do(ctx, func() error {
			for _, uid := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := s.processMessage(ctx, session, folder, uid, cursor, indexing); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// processMessage fetches, stores and indexes one message, then moves the
// cursor past it. A message that cannot be fetched or parsed is skipped
// but still moves the cursor.
func (s *AccountSynchronizer) processMessage(ctx context.Context, session interfaces.Session, folder string, uid uint32, cursor *models.FolderCursor, indexing bool) error {
	// once a fetch has begun the message is carried through to storage
	ctx = context.WithoutCancel(ctx)
	accountID := cursor.AccountID

	raw, err := session.Fetch(ctx, folder, uid)
	if err != nil {
		if mserrors.IsConnectionError(err) {
			return err
		}
		return s.skipPoison(ctx, folder, uid, cursor, err)
	}

	message, err := s.deps.Factory.Build(ctx, raw)
	if err != nil {
		return s.skipPoison(ctx, folder, uid, cursor, err)
	}
	s.verify(ctx, message)
	s.archive(ctx, raw, message)

	if err := s.deps.Repositories.MessageRepository.SaveMessage(ctx, message); err != nil {
		return errors.Wrapf(err, "failed to store message %d", uid)
	}

	if indexing {
		if err := s.deps.Index.AddMessage(ctx, message); err != nil {
			s.log.Warnf("[%s][%s] Could not index message %d: %v", accountID, folder, uid, err)
		}
	}

	if err := s.advanceCursor(ctx, cursor, uid); err != nil {
		return err
	}
	metricMessagesSynced.Inc()
	return nil
}

func (s *AccountSynchronizer) skipPoison(ctx context.Context, folder string, uid uint32, cursor *models.FolderCursor, cause error) error {
	s.log.Errorf("[%s][%s] Skipping message %d: %v", cursor.AccountID, folder, uid, cause)
	metricPoisonMessages.Inc()
	return s.advanceCursor(ctx, cursor, uid)
}

func (s *AccountSynchronizer) advanceCursor(ctx context.Context, cursor *models.FolderCursor, uid uint32) error {
	if uid <= cursor.LastUID {
		return nil
	}
	previous := cursor.LastUID
	cursor.LastUID = uid
	if err := s.deps.Repositories.FolderCursorRepository.SaveCursor(ctx, cursor); err != nil {
		cursor.LastUID = previous
		return errors.Wrap(err, "failed to save folder cursor")
	}
	return nil
}

// archive keeps the raw bytes when an archive is configured. The message is
// stored either way.
func (s *AccountSynchronizer) archive(ctx context.Context, raw *interfaces.RawMessage, message *models.Message) {
	if s.deps.Archive == nil {
		return
	}
	key, err := s.deps.Archive.Store(ctx, raw)
	if err != nil {
		s.log.Warnf("[%s][%s] Could not archive message %d: %v", raw.AccountID, raw.Folder, raw.UID, err)
		return
	}
	message.RawKey = key
}

// verify records the signature check on the message. Failures leave the
// message unverified but do not stop it from being stored.
func (s *AccountSynchronizer) verify(ctx context.Context, message *models.Message) {
	if s.deps.Crypto == nil || !s.deps.Crypto.NeedsVerification(message) {
		return
	}
	result, err := s.deps.Crypto.Verify(ctx, message)
	if err != nil {
		s.log.Warnf("[%s][%s] Signature verification failed for message %d: %v", message.AccountID, message.Folder, message.UID, err)
		message.VerificationError = err.Error()
		return
	}
	message.Verified = result.Verified
	message.Signer = utils.Truncate(result.Signer, models.MaxAddressLength)
}

// reconcileFlags merges server flag changes seen in listing with local
// edits. serverChangedAfter is the earliest time a server change could have
// been made: when the folder was last listed, not when the cursor was last
// saved.
func (s *AccountSynchronizer) reconcileFlags(ctx context.Context, session interfaces.Session, folder string, listing *interfaces.FolderListing, serverChangedAfter time.Time) error {
	accountID := s.accountID()
	pending := s.takePending(folder)
	if len(listing.Flags) == 0 && len(pending) == 0 {
		return nil
	}

	repos := s.deps.Repositories
	stored, err := repos.MessageRepository.GetFolderFlags(ctx, accountID, folder)
	if err != nil {
		s.requeue(folder, pending)
		return err
	}

	for uid, current := range listing.Flags {
		known, ok := stored[uid]
		if !ok {
			continue
		}

		var local flags.Change
		if updates, ok := pending[uid]; ok {
			local = flags.Pending(updates)
		} else if known.Local != known.Server {
			// edits that survived a restart carry no time, so the server
			// wins every conflict on them
			local = flags.Observed(known.Server, known.Local, time.Time{})
		}
		remote := flags.Observed(known.Server, current, serverChangedAfter)
		if local.IsZero() && remote.IsZero() {
			continue
		}

		resolved, remoteWon := flags.Resolve(known.Server, local, remote)
		if remoteWon != 0 {
			s.log.Debugf("[%s][%s] Server won flags %s on message %d", accountID, folder, remoteWon, uid)
		}

		add, remove := resolved&^current, current&^resolved
		if add|remove != 0 {
			err := s.deps.Pool.Do(ctx, func() error {
				return session.StoreFlags(context.WithoutCancel(ctx), folder, uid, add, remove)
			})
			if err != nil {
				metricFlagPushes.WithLabelValues("error").Inc()
				if ctx.Err() != nil || mserrors.IsConnectionError(err) {
					s.requeue(folder, pending)
					return err
				}
				s.log.Warnf("[%s][%s] Could not store flags on message %d: %v", accountID, folder, uid, err)
				resolved = current
			} else {
				metricFlagPushes.WithLabelValues("ok").Inc()
			}
		}
		delete(pending, uid)

		err := repos.MessageRepository.UpdateFlags(ctx, accountID, folder, uid, interfaces.StoredFlags{Local: resolved, Server: resolved})
		if err != nil {
			s.requeue(folder, pending)
			return err
		}
	}

	for uid := range pending {
		s.log.Debugf("[%s][%s] Dropping flag update for message %d not on server", accountID, folder, uid)
	}
	return nil
}

func (s *AccountSynchronizer) takePending(folder string) map[uint32][]flags.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUID := s.pending[folder]
	delete(s.pending, folder)
	if byUID == nil {
		byUID = map[uint32][]flags.Update{}
	}
	return byUID
}

// requeue puts updates back in front of any queued since they were taken.
func (s *AccountSynchronizer) requeue(folder string, byUID map[uint32][]flags.Update) {
	if len(byUID) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pending[folder]
	if !ok {
		current = make(map[uint32][]flags.Update)
		s.pending[folder] = current
	}
	for uid, updates := range byUID {
		current[uid] = append(updates, current[uid]...)
	}
}

func (s *AccountSynchronizer) dropPending(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, folder)
}
