// Package pool implements the fleet pool: an async object pool of browser
// handles bounded by size, idle age, and recycle count, grounded on
// spec.md §4.E and the channel-based acquire/release shape of
// internal/providers/browser/sandbox's sandbox pool, generalized to a
// FIFO wait queue with age- and recycle-based eviction.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/infrastructure/monitoring"
	"github.com/skarab42/pantin/internal/infrastructure/resilience"
	"github.com/skarab42/pantin/internal/process"
)

var (
	// ErrPoolClosed is returned by Acquire once Shutdown has been called.
	ErrPoolClosed = errors.New("pool is closed")
	// ErrAcquireTimeout is returned when no handle becomes available before
	// the caller's context is done.
	ErrAcquireTimeout = errors.New("acquire timeout")
)

// Config mirrors spec.md §3's PoolConfig.
type Config struct {
	MaxSize         int
	MaxAge          time.Duration
	MaxRecycleCount int
	BrowserProgram  string
}

// Outcome tells Release whether the leased handle is still usable.
type Outcome int

const (
	// Healthy returns the handle to idle for reuse.
	Healthy Outcome = iota
	// Broken discards the handle; a replacement is created lazily on the
	// next acquire.
	Broken
)

type idleEntry struct {
	handle     *browser.Handle
	returnedAt time.Time
}

// waiter is a wake signal, not a handle carrier: a woken acquirer
// re-enters the acquisition loop from the top rather than receiving a
// handle directly, so idle-push and capacity-free paths share one wake
// mechanism.
type waiter struct {
	ch chan struct{}
}

// Pool is the fleet pool described in spec.md §4.E. All bookkeeping
// (idle list, live count, wait queue) is guarded by mu; handle creation
// and disposal — the slow operations — run outside the lock.
type Pool struct {
	cfg     Config
	log     *zap.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker
	factory func(ctx context.Context) (*browser.Handle, error)

	mu        sync.Mutex
	idle      *list.List // of idleEntry
	liveCount int
	waiters   *list.List // of *waiter
	closed    bool
}

// New constructs an empty pool; handles are created lazily on first
// acquire, matching spec.md §4.E (no eager pre-warming is specified).
func New(cfg Config, log *zap.Logger, metrics *monitoring.Metrics) *Pool {
	return newWithFactory(cfg, log, metrics, func(ctx context.Context) (*browser.Handle, error) {
		return browser.Create(ctx, log, cfg.BrowserProgram)
	})
}

// newWithFactory builds a Pool around a caller-supplied handle factory,
// letting tests substitute a fake factory instead of spawning a real
// browser process while exercising the same acquire/release/evict logic.
func newWithFactory(cfg Config, log *zap.Logger, metrics *monitoring.Metrics, factory func(ctx context.Context) (*browser.Handle, error)) *Pool {
	breaker := resilience.New("browser-spawn", resilience.Settings{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Pool{
		cfg:     cfg,
		factory: factory,
		log:     log,
		metrics: metrics,
		breaker: breaker,
		idle:    list.New(),
		waiters: list.New(),
	}
}

// Acquire returns a leased handle, creating one if the pool has spare
// capacity or waiting in FIFO order if it is already at max_size.
func (p *Pool) Acquire(ctx context.Context) (*browser.Handle, error) {
	start := time.Now()
	handle, err := p.acquire(ctx)
	p.metrics.RecordAcquire(time.Since(start), errors.Is(err, ErrAcquireTimeout))
	return handle, err
}

func (p *Pool) acquire(ctx context.Context) (*browser.Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		p.evictAgedLocked()

		if elem := p.idle.Front(); elem != nil {
			entry := p.idle.Remove(elem).(idleEntry)
			p.publishSizeLocked()
			p.mu.Unlock()

			entry.handle.UseCount++
			if entry.handle.UseCount > p.cfg.MaxRecycleCount {
				p.retire(entry.handle, "recycle-count-exceeded")
				continue
			}
			if !entry.handle.Alive() {
				p.retire(entry.handle, "process-dead")
				continue
			}
			return entry.handle, nil
		}

		if p.liveCount < p.cfg.MaxSize {
			p.liveCount++
			p.mu.Unlock()

			handle, err := p.createHandle(ctx)
			if err != nil {
				p.mu.Lock()
				p.liveCount--
				p.publishSizeLocked()
				p.mu.Unlock()
				return nil, err
			}
			handle.UseCount = 1
			p.metrics.RecordHandleCreated()
			return handle, nil
		}

		w := &waiter{ch: make(chan struct{}, 1)}
		elem := p.waiters.PushBack(w)
		p.mu.Unlock()

		select {
		case <-w.ch:
			// Woken by a release; loop back to the top and re-check idle
			// and capacity under the lock.
		case <-ctx.Done():
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, ErrAcquireTimeout
		}
	}
}

// createHandle creates a new browser.Handle through the circuit breaker,
// so a run of spawn failures (e.g. the browser binary missing) stops
// hammering the OS with futile exec attempts. While the breaker is open,
// creation fails fast with an error wrapping process.ErrSpawnFailed.
func (p *Pool) createHandle(ctx context.Context) (*browser.Handle, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.factory(ctx)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", process.ErrSpawnFailed, err)
		}
		return nil, err
	}
	return result.(*browser.Handle), nil
}

// Release returns a leased handle per outcome, waking one FIFO waiter (if
// any) so it can re-enter Acquire and claim the freed idle slot or
// capacity.
func (p *Pool) Release(handle *browser.Handle, outcome Outcome) {
	if outcome == Broken {
		p.mu.Lock()
		p.liveCount--
		p.publishSizeLocked()
		w := p.popWaiterLocked()
		p.mu.Unlock()

		p.discard(handle, "broken")
		wake(w)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.liveCount--
		p.publishSizeLocked()
		p.mu.Unlock()
		p.discard(handle, "pool-closed")
		return
	}

	p.idle.PushBack(idleEntry{handle: handle, returnedAt: time.Now()})
	p.publishSizeLocked()
	w := p.popWaiterLocked()
	p.mu.Unlock()
	wake(w)
}

func wake(w *waiter) {
	if w == nil {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (p *Pool) popWaiterLocked() *waiter {
	elem := p.waiters.Front()
	if elem == nil {
		return nil
	}
	p.waiters.Remove(elem)
	return elem.Value.(*waiter)
}

// evictAgedLocked drops idle entries older than MaxAge from the front of
// the list, which is kept oldest-first by PushBack/PopFront ordering.
func (p *Pool) evictAgedLocked() {
	now := time.Now()
	for {
		elem := p.idle.Front()
		if elem == nil {
			return
		}
		entry := elem.Value.(idleEntry)
		if now.Sub(entry.returnedAt) <= p.cfg.MaxAge {
			return
		}
		p.idle.Remove(elem)
		p.liveCount--
		p.publishSizeLocked()
		go p.discard(entry.handle, "aged-out")
	}
}

func (p *Pool) publishSizeLocked() {
	p.metrics.SetPoolSize(p.liveCount, p.idle.Len())
}

// retire frees the capacity slot an idle handle pulled off the front of
// the queue was holding, then discards it. Without decrementing
// liveCount here, a handle retired for exceeding max_recycle_count or for
// a dead process would permanently shrink the pool's usable capacity,
// eventually starving every future acquire.
func (p *Pool) retire(handle *browser.Handle, reason string) {
	p.mu.Lock()
	p.liveCount--
	p.publishSizeLocked()
	p.mu.Unlock()

	p.discard(handle, reason)
}

func (p *Pool) discard(handle *browser.Handle, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), browser.PortReadyTimeout)
	defer cancel()
	handle.Close(ctx)
	p.metrics.RecordHandleDiscarded(reason)
	p.log.Debug("browser handle discarded", zap.String("id", handle.ID.String()), zap.String("reason", reason))
}

// Shutdown refuses new acquires, wakes every queued acquirer (which then
// fails with ErrPoolClosed) and closes every idle handle, passing ctx to
// each Close. It does not wait for leased handles to come back; a handle
// released after Shutdown is discarded by Release.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true

	var toClose []*browser.Handle
	for elem := p.idle.Front(); elem != nil; elem = elem.Next() {
		toClose = append(toClose, elem.Value.(idleEntry).handle)
	}
	p.idle.Init()

	for elem := p.waiters.Front(); elem != nil; elem = elem.Next() {
		wake(elem.Value.(*waiter))
	}
	p.waiters.Init()
	p.mu.Unlock()

	for _, handle := range toClose {
		handle.Close(ctx)
	}
}

// Stats reports the current pool occupancy, mirroring spec.md §8's
// live_count == idle + leased invariant (leased = live - idle).
func (p *Pool) Stats() (live, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveCount, p.idle.Len()
}
