package core

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/coregx/pgquery/internal/logger"
)

// maxPingTimeout bounds a single health check ping; shorter intervals use
// the interval itself.
const maxPingTimeout = 5 * time.Second

// healthStatus is the outcome of the most recent ping.
type healthStatus struct {
	err       error
	checkedAt time.Time
	failures  int // consecutive failed pings
}

// healthChecker pings the pool on an interval. It logs when the database
// becomes unreachable and when it recovers, with the pool counters at that
// moment, and stays quiet while the state is unchanged.
type healthChecker struct {
	db       *sql.DB
	driver   string
	logger   logger.Logger
	interval time.Duration

	status atomic.Pointer[healthStatus]
	cancel context.CancelFunc
	done   chan struct{}
}

func newHealthChecker(db *sql.DB, driver string, log logger.Logger, interval time.Duration) *healthChecker {
	h := &healthChecker{
		db:       db,
		driver:   driver,
		logger:   log,
		interval: interval,
		done:     make(chan struct{}),
	}
	h.status.Store(&healthStatus{})
	return h
}

func (h *healthChecker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
}

func (h *healthChecker) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (h *healthChecker) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, min(h.interval, maxPingTimeout))
	defer cancel()

	err := h.db.PingContext(pingCtx)
	if ctx.Err() != nil {
		// stopped mid-ping
		return
	}

	prev := h.status.Load()
	next := &healthStatus{err: err, checkedAt: time.Now()}
	if err != nil {
		next.failures = prev.failures + 1
	}
	h.status.Store(next)

	switch {
	case err != nil && prev.failures == 0:
		h.logger.Warn("database unreachable", h.fields("error", err)...)
	case err != nil:
		h.logger.Debug("database still unreachable", h.fields("error", err, "failures", next.failures)...)
	case prev.failures > 0:
		h.logger.Info("database reachable again", h.fields("failures", prev.failures)...)
	default:
		h.logger.Debug("health check passed", "driver", h.driver)
	}
}

// fields appends the driver and pool counters to kv.
func (h *healthChecker) fields(kv ...any) []any {
	s := h.db.Stats()
	return append(kv,
		"driver", h.driver,
		"open_connections", s.OpenConnections,
		"in_use", s.InUse,
		"idle", s.Idle,
		"wait_count", s.WaitCount,
	)
}

// shutdown stops the loop and waits for it to exit. It may be called more
// than once.
func (h *healthChecker) shutdown() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *healthChecker) isHealthy() bool {
	return h.status.Load().err == nil
}

func (h *healthChecker) lastError() error {
	return h.status.Load().err
}

func (h *healthChecker) lastCheck() time.Time {
	return h.status.Load().checkedAt
}
