// Package http implements pantin's HTTP surface (spec.md §6): /ping,
// /screenshot and the JSON error shape, as thin gin handlers over the
// browser fleet pool.
package http

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skarab42/pantin/internal/browser"
	"github.com/skarab42/pantin/internal/infrastructure/monitoring"
	"github.com/skarab42/pantin/internal/pool"
)

// HandlePool is the subset of *pool.Pool the HTTP layer depends on. Narrowing
// to an interface lets handler tests substitute a fake pool backed by a
// stubbed Marionette server instead of spawning a real browser.
type HandlePool interface {
	Acquire(ctx context.Context) (*browser.Handle, error)
	Release(handle *browser.Handle, outcome pool.Outcome)
	Stats() (live, idle int)
}

// Handlers holds the dependencies shared by every route.
type Handlers struct {
	pool           HandlePool
	metrics        *monitoring.Metrics
	log            *zap.Logger
	requestTimeout time.Duration
}

// New constructs the HTTP handler set.
func New(p HandlePool, metrics *monitoring.Metrics, log *zap.Logger, requestTimeout time.Duration) *Handlers {
	return &Handlers{pool: p, metrics: metrics, log: log, requestTimeout: requestTimeout}
}
