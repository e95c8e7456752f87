package mailsync

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// Deps are the collaborators shared by every synchronizer.
type Deps struct {
	Repositories *repository.Repositories
	Dialer       interfaces.SessionDialer
	Factory      interfaces.MessageFactory
	Index        interfaces.MessageSearchIndex
	Archive      interfaces.RawArchive
	Crypto       interfaces.CryptoAgent
	Notifier     interfaces.StatusNotifier
	Pool         *WorkerPool
	Config       *config.SyncConfig
	// Indexing is the default when the search.indexing_enabled preference
	// is not set.
	Indexing bool
	Log      logger.Logger
}

// AccountSynchronizer mirrors one account. It owns its session; nothing
// else talks to the server on the account's behalf.
type AccountSynchronizer struct {
	deps *Deps
	log  logger.Logger

	mu         sync.Mutex
	account    *models.Account
	state      enum.SyncStatus
	session    interfaces.Session
	lastSync   *time.Time
	lastErr    string
	authFailed bool
	prefs      models.Preferences
	idleFolder string
	pending    map[string]map[uint32][]flags.Update

	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

func NewAccountSynchronizer(account *models.Account, deps *Deps) *AccountSynchronizer {
	metricSynchronizers.WithLabelValues(string(enum.SyncStatusIdle)).Inc()
	return &AccountSynchronizer{
		deps:    deps,
		log:     deps.Log,
		account: account,
		state:   enum.SyncStatusIdle,
		pending: make(map[string]map[uint32][]flags.Update),
		wake:    make(chan struct{}, 1),
	}
}

func (s *AccountSynchronizer) Account() *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *AccountSynchronizer) setAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
}

func (s *AccountSynchronizer) State() enum.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AccountSynchronizer) Status() interfaces.AccountStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, byUID := range s.pending {
		for _, updates := range byUID {
			pending += len(updates)
		}
	}
	return interfaces.AccountStatus{
		AccountID:     s.account.ID,
		EmailAddress:  s.account.EmailAddress,
		AutomaticSync: s.account.AutomaticSync,
		State:         string(s.state),
		LastSync:      s.lastSync,
		LastError:     s.lastErr,
		AuthFailed:    s.authFailed,
		PendingFlags:  pending,
	}
}

// Start launches the sync loop and returns at once. It does nothing while a
// loop is already active; a loop waiting out a reconnect delay is woken.
func (s *AccountSynchronizer) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopRunningLocked() {
		if s.state == enum.SyncStatusFailed {
			s.signal()
		}
		return false
	}
	switch s.state {
	case enum.SyncStatusIdle, enum.SyncStatusStopped, enum.SyncStatusFailed:
	default:
		return false
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.authFailed = false
	s.lastErr = ""
	s.setStateLocked(enum.SyncStatusConnecting)

	go s.run(loopCtx, s.done)
	return true
}

// Stop cancels the loop and waits for it to close the session. If the loop
// does not finish within the stop timeout the connection is torn down.
func (s *AccountSynchronizer) Stop() {
	s.mu.Lock()
	if s.done == nil || (!s.loopRunningLocked() && s.state == enum.SyncStatusStopped) {
		s.mu.Unlock()
		return
	}
	done, cancel := s.done, s.cancel
	if !s.loopRunningLocked() {
		// the loop already gave up, nothing to wait for
		cancel()
		s.setStateLocked(enum.SyncStatusStopped)
		s.mu.Unlock()
		s.report(context.Background(), enum.SyncStatusStopped, "", false)
		return
	}
	s.setStateLocked(enum.SyncStatusStopping)
	timeout := s.prefs.Duration(models.PreferenceStopTimeout, s.deps.Config.StopTimeout)
	s.mu.Unlock()

	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warnf("[%s] Synchronizer did not stop within %v, closing connection", s.accountID(), timeout)
		s.closeSession()
		<-done
	}

	s.mu.Lock()
	if s.done != done {
		// started again while this stop was waiting
		s.mu.Unlock()
		return
	}
	s.setStateLocked(enum.SyncStatusStopped)
	s.mu.Unlock()
	s.report(context.Background(), enum.SyncStatusStopped, "", false)
}

// QueueFlagUpdate records a local flag edit. It is pushed to the server on
// the next pass, which is started right away if the loop is idling.
func (s *AccountSynchronizer) QueueFlagUpdate(update flags.Update) error {
	if update.Folder == "" || update.UID == 0 || update.Add&update.Remove != 0 || update.Add|update.Remove == 0 {
		return mserrors.ErrInvalidFlags
	}
	if update.At.IsZero() {
		update.At = utils.Now()
	}

	s.mu.Lock()
	byUID, ok := s.pending[update.Folder]
	if !ok {
		byUID = make(map[uint32][]flags.Update)
		s.pending[update.Folder] = byUID
	}
	byUID[update.UID] = append(byUID[update.UID], update)
	s.mu.Unlock()

	s.signal()
	return nil
}

func (s *AccountSynchronizer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *AccountSynchronizer) loopRunningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// setStateLocked refuses every transition out of Stopping except Stopped.
func (s *AccountSynchronizer) setStateLocked(state enum.SyncStatus) bool {
	if s.state == state {
		return true
	}
	if s.state == enum.SyncStatusStopping && state != enum.SyncStatusStopped {
		return false
	}
	metricSynchronizers.WithLabelValues(string(s.state)).Dec()
	metricSynchronizers.WithLabelValues(string(state)).Inc()
	s.state = state
	return true
}

func (s *AccountSynchronizer) transition(state enum.SyncStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(state)
}

func (s *AccountSynchronizer) accountID() string {
	return s.Account().ID
}

func (s *AccountSynchronizer) currentSession() interfaces.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *AccountSynchronizer) closeSession() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			s.log.Warnf("[%s] Error closing session: %v", s.accountID(), err)
		}
	}
}

func (s *AccountSynchronizer) newBackOff() *backoff.ExponentialBackOff {
	s.mu.Lock()
	prefs := s.prefs
	s.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = prefs.Duration(models.PreferenceReconnectInitialDelay, s.deps.Config.ReconnectInitialDelay)
	b.MaxInterval = prefs.Duration(models.PreferenceReconnectMaxDelay, s.deps.Config.ReconnectMaxDelay)
	b.Multiplier = 1.5
	b.Reset()
	return b
}

func (s *AccountSynchronizer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.closeSession()
	defer tracing.RecoverAndLogToJaeger(s.log)

	s.loadPreferences(ctx)
	b := s.newBackOff()

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connect(ctx)
		if err == nil {
			b.Reset()
			err = s.syncLoop(ctx)
		}
		s.closeSession()

		if ctx.Err() != nil {
			return
		}
		if mserrors.IsFatalSessionError(err) {
			s.fail(ctx, err, true)
			return
		}
		s.fail(ctx, err, false)

		delay := b.NextBackOff()
		s.log.Infof("[%s] Will retry in %v", s.accountID(), delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
		if !s.transition(enum.SyncStatusConnecting) {
			return
		}
	}
}

func (s *AccountSynchronizer) connect(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "AccountSynchronizer.connect")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)
	account := s.Account()
	tracing.TagAccount(span, account.ID)

	s.mu.Lock()
	timeout := s.prefs.Duration(models.PreferenceConnectTimeout, s.deps.Config.ConnectTimeout)
	s.mu.Unlock()

	var session interfaces.Session
	err := s.deps.Pool.Do(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var dialErr error
		session, dialErr = s.deps.Dialer.Dial(dialCtx, account)
		return dialErr
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.state == enum.SyncStatusStopping {
		s.mu.Unlock()
		_ = session.Close()
		return context.Canceled
	}
	s.session = session
	s.setStateLocked(enum.SyncStatusSyncing)
	s.mu.Unlock()

	s.log.Infof("[%s] Session established", account.ID)
	return nil
}

func (s *AccountSynchronizer) syncLoop(ctx context.Context) error {
	for {
		if err := s.syncAll(ctx); err != nil {
			return err
		}

		now := utils.Now()
		s.mu.Lock()
		s.lastSync = &now
		s.lastErr = ""
		ok := s.setStateLocked(enum.SyncStatusWaiting)
		s.mu.Unlock()
		if !ok {
			return context.Canceled
		}
		s.report(ctx, enum.SyncStatusWaiting, "", false)

		if err := s.waitForChanges(ctx); err != nil {
			return err
		}
		if !s.transition(enum.SyncStatusSyncing) {
			return context.Canceled
		}
	}
}

// waitForChanges idles until the server reports activity, a flag update is
// queued, the idle timeout passes or the loop is cancelled.
func (s *AccountSynchronizer) waitForChanges(ctx context.Context) error {
	session := s.currentSession()
	if session == nil {
		return context.Canceled
	}

	s.mu.Lock()
	folder := s.idleFolder
	timeout := s.prefs.Duration(models.PreferenceIdleTimeout, s.deps.Config.IdleTimeout)
	s.mu.Unlock()
	if folder == "" {
		folder = "INBOX"
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.wake:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	err := session.Wait(waitCtx, folder, timeout)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *AccountSynchronizer) loadPreferences(ctx context.Context) models.Preferences {
	prefs, err := s.deps.Repositories.PreferencesRepository.RootPreferences(ctx)
	if err != nil {
		s.log.Warnf("[%s] Using default sync settings: %v", s.accountID(), err)
		prefs = models.Preferences{}
	}
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
	return prefs
}

func (s *AccountSynchronizer) fail(ctx context.Context, err error, fatal bool) {
	if err == nil {
		err = errors.New("sync loop ended")
	}

	s.mu.Lock()
	s.lastErr = err.Error()
	s.authFailed = fatal
	s.setStateLocked(enum.SyncStatusFailed)
	s.mu.Unlock()

	kind := "other"
	switch {
	case fatal:
		kind = "auth"
		s.log.Errorf("[%s] Authentication failed, not retrying: %v", s.accountID(), err)
	case mserrors.IsConnectionError(err):
		kind = "connection"
		s.log.Warnf("[%s] Connection error: %v", s.accountID(), err)
	case errors.Is(err, mserrors.ErrStorageNotReady):
		kind = "storage"
		s.log.Warnf("[%s] Storage unavailable: %v", s.accountID(), err)
	default:
		s.log.Errorf("[%s] Sync failed: %v", s.accountID(), err)
	}
	metricSyncFailures.WithLabelValues(kind).Inc()

	s.report(ctx, enum.SyncStatusFailed, err.Error(), fatal)
}

// report persists the status and tells the notifier. Both are best effort.
func (s *AccountSynchronizer) report(ctx context.Context, status enum.SyncStatus, errMsg string, authFailed bool) {
	ctx = context.WithoutCancel(ctx)
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountSynchronizer.report")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)
	account := s.Account()
	tracing.TagAccount(span, account.ID)
	span.SetTag("status", string(status))

	if err := s.deps.Repositories.AccountRepository.UpdateSyncStatus(ctx, account.ID, status, errMsg); err != nil {
		tracing.TraceErr(span, err)
		s.log.Debugf("[%s] Could not persist sync status: %v", account.ID, err)
	}

	if s.deps.Notifier == nil {
		return
	}
	event := dto.AccountStatusChanged{
		AccountID:    account.ID,
		EmailAddress: account.EmailAddress,
		Status:       status,
		Error:        errMsg,
		AuthFailed:   authFailed,
		At:           utils.Now(),
	}
	if err := s.deps.Notifier.PublishAccountStatus(ctx, event); err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("[%s] Could not publish status change: %v", account.ID, err)
	}
}
