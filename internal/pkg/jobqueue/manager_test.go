package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
)

type fakeReconciler struct {
	calls  atomic.Int32
	mu     sync.Mutex
	minAge time.Duration
	maxAge time.Duration
	limit  int
	err    error
}

func (f *fakeReconciler) ReconcilePending(_ context.Context, minAge, maxAge time.Duration, limit int) (int, int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.minAge, f.maxAge, f.limit = minAge, maxAge, limit
	f.mu.Unlock()
	if f.err != nil {
		return 1, 0, f.err
	}
	return 3, 1, nil
}

func TestInitManagerSingleton(t *testing.T) {
	// Reset the singleton for testing
	globalManager = nil
	managerOnce = sync.Once{}

	m1 := InitManager(&fakeReconciler{}, config.Reconcile{})
	m2 := InitManager(&fakeReconciler{}, config.Reconcile{})
	assert.Same(t, m1, m2)
	assert.Same(t, m1, GetManager())
	assert.False(t, m1.IsRunning())
}

func TestRunOncePassesConfigAndRecordsStats(t *testing.T) {
	r := &fakeReconciler{}
	m := NewManager(r, config.Reconcile{Interval: time.Minute, MinAge: time.Minute, MaxAge: time.Hour, Batch: 7})

	stats := m.RunOnce(context.Background())
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Completed)
	assert.NoError(t, stats.Err)
	assert.Equal(t, 7, r.limit)
	assert.Equal(t, time.Minute, r.minAge)
	assert.Equal(t, time.Hour, r.maxAge)
	assert.Equal(t, stats, m.LastRun())

	r.err = errors.New("db down")
	stats = m.RunOnce(context.Background())
	assert.Error(t, stats.Err)
}

func TestManagerTicksUntilStopped(t *testing.T) {
	r := &fakeReconciler{}
	m := NewManager(r, config.Reconcile{Enabled: true, Interval: 10 * time.Millisecond, Batch: 1})

	m.Start()
	m.Start() // second start is a no-op
	assert.True(t, m.IsRunning())
	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())
	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())
}

func TestDisabledManagerDoesNotStart(t *testing.T) {
	m := NewManager(&fakeReconciler{}, config.Reconcile{Enabled: false})
	m.Start()
	assert.False(t, m.IsRunning())
	m.Stop()
}
