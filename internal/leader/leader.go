package leader

import (
	"context"
	"os"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailsync/internal/logger"
)

const (
	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	DefaultLockName = "mailsync-leader"
)

// Callbacks run on this pod while it holds the lease. OnStartedLeading gets a
// context that is canceled when leadership ends.
type Callbacks struct {
	OnStartedLeading func(ctx context.Context)
	OnStoppedLeading func()
}

// Elector makes sure only one replica synchronizes the shared accounts.
type Elector struct {
	k8s       kubernetes.Interface
	log       logger.Logger
	lockName  string
	callbacks Callbacks

	leaseDuration time.Duration
	renewDeadline time.Duration
	retryPeriod   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	leading bool
	// terms tracks lead goroutines so Stop can wait for OnStoppedLeading
	terms sync.WaitGroup
}

func NewElector(k8s kubernetes.Interface, lockName string, callbacks Callbacks, log logger.Logger) *Elector {
	if lockName == "" {
		lockName = DefaultLockName
	}
	return &Elector{
		k8s:           k8s,
		log:           log,
		lockName:      lockName,
		callbacks:     callbacks,
		leaseDuration: LeaseDuration,
		renewDeadline: RenewDeadline,
		retryPeriod:   RetryPeriod,
	}
}

// Start runs leader election in the background. Without a kubernetes client,
// or with LOCAL_DEV=true, this pod leads unconditionally. A lost lease is
// contested again until Stop is called.
func (e *Elector) Start(podName, namespace string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	if e.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		e.log.Info("Starting in local mode without leader election")
		go e.runLocal(ctx, done)
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      e.lockName,
			Namespace: namespace,
		},
		Client: e.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		ReleaseOnCancel: true,
		LeaseDuration:   e.leaseDuration,
		RenewDeadline:   e.renewDeadline,
		RetryPeriod:     e.retryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: e.lead,
			// lead reports the end of its own term
			OnStoppedLeading: func() {},
			OnNewLeader: func(identity string) {
				e.log.Infof("New leader elected: %s", identity)
			},
		},
	})
	if err != nil {
		e.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		go e.runLocal(ctx, done)
		return nil
	}

	go func() {
		defer close(done)
		for {
			le.Run(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.retryPeriod):
				e.log.Info("Contesting leadership again")
			}
		}
	}()
	return nil
}

func (e *Elector) runLocal(ctx context.Context, done chan struct{}) {
	defer close(done)
	e.lead(ctx)
}

// lead runs one term: OnStartedLeading, then OnStoppedLeading once ctx ends.
// Both happen on this goroutine so a term can never stop before it started.
func (e *Elector) lead(ctx context.Context) {
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.terms.Add(1)
	e.leading = true
	e.mu.Unlock()
	defer e.terms.Done()

	e.log.Info("Acquired leadership")
	if e.callbacks.OnStartedLeading != nil {
		e.callbacks.OnStartedLeading(ctx)
	}
	<-ctx.Done()
	e.stoppedLeading()
}

func (e *Elector) stoppedLeading() {
	e.mu.Lock()
	e.leading = false
	e.mu.Unlock()

	e.log.Info("Leadership lost")
	if e.callbacks.OnStoppedLeading != nil {
		e.callbacks.OnStoppedLeading()
	}
}

func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leading
}

// Stop releases the lease and waits for OnStoppedLeading to return.
func (e *Elector) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	if cancel != nil {
		cancel()
	}
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	<-done
	e.terms.Wait()
}
