// Package pool implements a bounded, keep-alive worker pool: at most
// max_threads live workers, admission blocks callers when saturated,
// and idle workers are reclaimed after thread_keepalive while
// min_threads stay warm.
//
// The blocking-notification path is a broadcast channel woken on every
// release; the free list itself is a mutex-guarded slice because reap()
// needs to inspect every idle worker's last-released timestamp,
// something a channel's FIFO cannot do without fully draining it.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Worker is one execution context, leased to serve exactly one request
// at a time.
type Worker struct {
	ID             string
	lastReleasedAt time.Time
}

// Pool leases Workers, bounded by MaxThreads.
type Pool struct {
	maxThreads      int32
	minThreads      int32
	threadKeepalive time.Duration
	log             *zap.Logger

	mu       sync.Mutex
	free     []*Worker // MRU at the end, per "pop most-recently-released"
	live     int32
	waitCh   chan struct{} // closed and replaced to broadcast a release
	stopReap chan struct{}
}

// New constructs a Pool and starts its background reaper.
func New(maxThreads, minThreads int, threadKeepalive time.Duration, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		maxThreads:      int32(maxThreads),
		minThreads:      int32(minThreads),
		threadKeepalive: threadKeepalive,
		log:             log,
		waitCh:          make(chan struct{}),
		stopReap:        make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// LiveWorkers reports the current count of live (leased + idle) workers.
func (p *Pool) LiveWorkers() int {
	return int(atomic.LoadInt32(&p.live))
}

// FreeLen reports the current free-list length.
func (p *Pool) FreeLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Acquire leases a Worker:
//
//	(a) if the free list is non-empty, pop most-recently-released;
//	(b) else if live_workers < max_threads, create a new worker;
//	(c) else block until a release notification.
//
// Because each SCGI connection already runs on its own goroutine, a
// blocking Acquire stalls only the calling connection, not the
// acceptor's ability to accept and read other connections. Acquire
// never fails under a background context; it is cancellable via ctx
// for callers that want a bounded wait.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	for {
		p.mu.Lock()
		if n := len(p.free); n > 0 {
			w := p.free[n-1]
			p.free = p.free[:n-1]
			p.mu.Unlock()
			p.log.Debug("acquired idle worker", zap.String("worker_id", w.ID))
			return w, nil
		}
		if p.live < p.maxThreads {
			p.live++
			p.mu.Unlock()
			w := &Worker{ID: uuid.NewString()}
			p.log.Debug("created worker", zap.String("worker_id", w.ID), zap.Int32("live", atomic.LoadInt32(&p.live)))
			return w, nil
		}
		wait := p.waitCh
		p.mu.Unlock()

		select {
		case <-wait:
			// A release happened; loop and retry the free list.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a Worker to the free list, stamps its release time,
// and wakes any Acquire callers blocked on saturation.
func (p *Pool) Release(w *Worker) {
	w.lastReleasedAt = time.Now()

	p.mu.Lock()
	p.free = append(p.free, w)
	old := p.waitCh
	p.waitCh = make(chan struct{})
	p.mu.Unlock()

	close(old)
	p.log.Debug("released worker", zap.String("worker_id", w.ID))

	p.reap()
}

// reap terminates free workers whose idle time exceeds ThreadKeepalive,
// while keeping at least MinThreads alive. It runs opportunistically
// after each release and from the background reapLoop.
func (p *Pool) reap() {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.free[:0:0]
	for _, w := range p.free {
		stale := now.Sub(w.lastReleasedAt) > p.threadKeepalive
		if stale && p.live > p.minThreads {
			p.live--
			p.log.Debug("reaped idle worker", zap.String("worker_id", w.ID), zap.Int32("live", p.live))
			continue
		}
		kept = append(kept, w)
	}
	p.free = kept
}

// reapLoop runs reap on a timer so idle workers are reclaimed even
// without further Acquire/Release churn.
func (p *Pool) reapLoop() {
	interval := p.threadKeepalive / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reap()
		case <-p.stopReap:
			return
		}
	}
}

// Close stops the background reaper. It does not close in-flight
// connections; callers are expected to have drained all requests first.
func (p *Pool) Close() {
	close(p.stopReap)
}
