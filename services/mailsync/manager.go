package mailsync

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

var (
	_ interfaces.SynchronizationManager = (*Manager)(nil)
	_ interfaces.SessionListener        = (*Manager)(nil)
)

// Manager owns the registry and drives start and stop across all
// synchronizers. Its lock is always taken before the registry's.
type Manager struct {
	mu        sync.Mutex
	isRunning bool

	registry *Registry
	deps     *Deps
	bus      interfaces.LifecycleBus
	log      logger.Logger
}

func NewManager(deps *Deps, bus interfaces.LifecycleBus) *Manager {
	m := &Manager{
		deps: deps,
		bus:  bus,
		log:  deps.Log,
	}
	m.registry = NewRegistry(func(account *models.Account) *AccountSynchronizer {
		return NewAccountSynchronizer(account, deps)
	})
	return m
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Activate subscribes to storage lifecycle events. Calling it twice has no
// further effect.
func (m *Manager) Activate() {
	m.bus.Subscribe(m)
}

func (m *Manager) Deactivate() {
	m.bus.Unsubscribe(m)
}

func (m *Manager) OnSessionAvailable(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil {
		m.log.Errorf("Failed to refresh accounts after storage became available: %v", err)
	}
}

// Refresh registers a synchronizer for every known account. Without storage
// it quietly does nothing.
func (m *Manager) Refresh(ctx context.Context) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SynchronizationManager.Refresh")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)

	accounts, err := m.deps.Repositories.AccountRepository.ListKnownAccounts(ctx)
	if errors.Is(err, mserrors.ErrStorageNotReady) {
		m.log.Debug("Storage not ready, skipping account refresh")
		return nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to list accounts")
	}

	created := 0
	for _, account := range accounts {
		if _, isNew := m.registry.Ensure(account); isNew {
			created++
		}
	}
	span.LogKV("accounts", len(accounts), "created", created)
	if created > 0 {
		m.log.Infof("Registered %d new account(s), %d total", created, m.registry.Len())
	}
	return nil
}

// Start refreshes the registry and starts every account with automatic
// sync. It returns without waiting for any connection.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return nil
	}

	span, ctx := tracing.StartTracerSpan(ctx, "SynchronizationManager.Start")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)

	if err := m.Refresh(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	started := 0
	for _, s := range m.registry.Snapshot() {
		if !s.Account().AutomaticSync {
			continue
		}
		if s.Start(ctx) {
			started++
		}
	}
	m.isRunning = true

	span.LogKV("started", started)
	m.log.Infof("Synchronization started for %d account(s)", started)
	return nil
}

// Stop stops every synchronizer, including ones started by hand, and waits
// for all of them.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return
	}

	var g errgroup.Group
	for _, s := range m.registry.Snapshot() {
		g.Go(func() error {
			s.Stop()
			return nil
		})
	}
	_ = g.Wait()

	m.isRunning = false
	m.log.Info("Synchronization stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// StartAccount starts one account regardless of its automatic sync flag.
// Accounts added since the last refresh are picked up here.
func (m *Manager) StartAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return mserrors.ErrManagerNotRunning
	}

	s, ok := m.registry.Get(accountID)
	if !ok {
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		if s, ok = m.registry.Get(accountID); !ok {
			return errors.Wrap(mserrors.ErrUnknownAccount, accountID)
		}
	}
	s.Start(ctx)
	return nil
}

func (m *Manager) StopAccount(accountID string) error {
	s, ok := m.registry.Get(accountID)
	if !ok {
		return errors.Wrap(mserrors.ErrUnknownAccount, accountID)
	}
	s.Stop()
	return nil
}

// QueueFlagUpdate applies a flag edit to the local copy and hands it to the
// account's synchronizer for pushing.
func (m *Manager) QueueFlagUpdate(ctx context.Context, accountID string, update flags.Update) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SynchronizationManager.QueueFlagUpdate")
	defer span.Finish()
	tracing.TagComponentSynchronizer(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, update.Folder)
	span.SetTag("uid", update.UID)

	s, ok := m.registry.Get(accountID)
	if !ok {
		return errors.Wrap(mserrors.ErrUnknownAccount, accountID)
	}
	if update.Add&update.Remove != 0 || update.Add|update.Remove == 0 {
		return mserrors.ErrInvalidFlags
	}

	repo := m.deps.Repositories.MessageRepository
	message, err := repo.GetMessage(ctx, accountID, update.Folder, update.UID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if message == nil {
		return errors.Wrapf(mserrors.ErrMessageNotFound, "%s uid %d", update.Folder, update.UID)
	}

	local := update.Change().Apply(message.Flags)
	err = repo.UpdateFlags(ctx, accountID, update.Folder, update.UID, interfaces.StoredFlags{Local: local, Server: message.ServerFlags})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return s.QueueFlagUpdate(update)
}

func (m *Manager) Status() map[string]interfaces.AccountStatus {
	snapshot := m.registry.Snapshot()
	out := make(map[string]interfaces.AccountStatus, len(snapshot))
	for _, s := range snapshot {
		status := s.Status()
		out[status.AccountID] = status
	}
	return out
}
