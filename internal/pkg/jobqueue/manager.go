package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
)

// PendingReconciler re-checks non-terminal payment orders against the gateway.
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, minAge, maxAge time.Duration, limit int) (checked, completed int, err error)
}

// RunStats describes the last reconcile sweep.
type RunStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Checked   int
	Completed int
	Err       error
}

// Manager runs the background tasks of the API process
type Manager struct {
	reconciler    PendingReconciler
	cfg           config.Reconcile
	reconcileTick *time.Ticker
	stopCh        chan struct{}
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
	last          RunStats
	sweepTimeout  time.Duration
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager creates a manager for reconciler using cfg.
func NewManager(reconciler PendingReconciler, cfg config.Reconcile) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Manager{
		reconciler:   reconciler,
		cfg:          cfg,
		stopCh:       make(chan struct{}),
		sweepTimeout: cfg.Interval,
	}
}

// InitManager sets up the global manager once.
func InitManager(reconciler PendingReconciler, cfg config.Reconcile) *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(reconciler, cfg)
	})
	return globalManager
}

// GetManager returns the global manager, or nil before InitManager
func GetManager() *Manager {
	return globalManager
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if !m.cfg.Enabled {
		log.Info("[JobQueue Manager] Pending order reconciliation disabled")
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.reconcileTick = time.NewTicker(m.cfg.Interval)
	m.wg.Add(1)
	go m.reconcileWorker(ctx, m.reconcileTick, m.stopCh)

	log.Infof("[JobQueue Manager] Started (reconcile every %s, batch %d)", m.cfg.Interval, m.cfg.Batch)
}

// Stop stops the background tasks and waits for a running sweep to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	log.Info("[JobQueue Manager] Stopping background tasks...")
	m.reconcileTick.Stop()
	close(m.stopCh)
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning reports whether the background tasks are active
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastRun returns the stats of the most recent sweep.
func (m *Manager) LastRun() RunStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) reconcileWorker(ctx context.Context, ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile sweep. Orders are only polled through
// the same idempotent status path clients use; nothing is cancelled here.
func (m *Manager) RunOnce(ctx context.Context) RunStats {
	ctx, cancel := context.WithTimeout(ctx, m.sweepTimeout)
	defer cancel()

	stats := RunStats{StartedAt: time.Now()}
	stats.Checked, stats.Completed, stats.Err = m.reconciler.ReconcilePending(ctx, m.cfg.MinAge, m.cfg.MaxAge, m.cfg.Batch)
	stats.Duration = time.Since(stats.StartedAt)

	switch {
	case stats.Err != nil:
		log.Errorf("[JobQueue Manager] Reconcile sweep failed after %d orders: %v", stats.Checked, stats.Err)
	case stats.Checked > 0:
		log.Infof("[JobQueue Manager] Reconciled %d pending orders, %d completed", stats.Checked, stats.Completed)
	default:
		log.Debug("[JobQueue Manager] No stale pending orders")
	}

	m.mu.Lock()
	m.last = stats
	m.mu.Unlock()
	return stats
}
