package leader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/customeros/mailsync/internal/logger"
)

type recorder struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStartedLeading: func(ctx context.Context) { r.started.Add(1) },
		OnStoppedLeading: func() { r.stopped.Add(1) },
	}
}

func TestElector_LocalMode(t *testing.T) {
	rec := &recorder{}
	e := NewElector(nil, "", rec.callbacks(), logger.NewNopLogger())

	require.NoError(t, e.Start("pod-1", "default"))
	assert.Eventually(t, func() bool { return rec.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, e.IsLeader())

	e.Stop()
	e.Stop()
	assert.Equal(t, int32(1), rec.stopped.Load())
	assert.False(t, e.IsLeader())
}

func TestElector_AcquiresLease(t *testing.T) {
	t.Setenv("LOCAL_DEV", "")
	client := fake.NewSimpleClientset()
	rec := &recorder{}
	e := NewElector(client, "test-leader", rec.callbacks(), logger.NewNopLogger())

	require.NoError(t, e.Start("pod-1", "default"))
	require.Eventually(t, e.IsLeader, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), rec.started.Load())

	lease, err := client.CoordinationV1().Leases("default").Get(context.Background(), "test-leader", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, lease.Spec.HolderIdentity)
	assert.Equal(t, "pod-1", *lease.Spec.HolderIdentity)

	e.Stop()
	assert.Eventually(t, func() bool { return rec.stopped.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestElector_StartTwice(t *testing.T) {
	rec := &recorder{}
	e := NewElector(nil, "", rec.callbacks(), logger.NewNopLogger())

	require.NoError(t, e.Start("pod-1", "default"))
	require.NoError(t, e.Start("pod-1", "default"))
	assert.Eventually(t, e.IsLeader, time.Second, 10*time.Millisecond)
	e.Stop()

	assert.Equal(t, int32(1), rec.started.Load())
}

func TestElector_ContestsAgainAfterLosingLease(t *testing.T) {
	t.Setenv("LOCAL_DEV", "")
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	var apiDown atomic.Bool
	client.PrependReactor("update", "leases", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if apiDown.Load() {
			return true, nil, errors.New("apiserver unavailable")
		}
		return false, nil, nil
	})

	rec := &recorder{}
	e := NewElector(client, "test-leader", rec.callbacks(), logger.NewNopLogger())
	e.leaseDuration = time.Second
	e.renewDeadline = 500 * time.Millisecond
	e.retryPeriod = 100 * time.Millisecond

	require.NoError(t, e.Start("pod-1", "default"))
	t.Cleanup(e.Stop)
	require.Eventually(t, func() bool { return rec.started.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	// renewals fail until the deadline passes and the lease is lost
	apiDown.Store(true)
	require.Eventually(t, func() bool { return rec.stopped.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, e.IsLeader())

	apiDown.Store(false)
	require.Eventually(t, func() bool { return rec.started.Load() == 2 }, 10*time.Second, 20*time.Millisecond)
	assert.True(t, e.IsLeader())

	lease, err := client.CoordinationV1().Leases("default").Get(ctx, "test-leader", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pod-1", *lease.Spec.HolderIdentity)
}
