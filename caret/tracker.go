// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package caret implements the caret tracker (spec component F): a
// latest-wins coalescing sender for cursor/selection position, so a user
// dragging a selection does not flood the session with one caret_update per
// pixel of motion.
package caret

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inkwell/docsync/editortarget"
	"github.com/inkwell/docsync/rpc"
)

const (
	updateDelay = 250 * time.Millisecond
	maxIdleTime = time.Minute
)

// SessionSource resolves the session proxy to send caret_update through,
// re-fetched on every outer loop iteration so the tracker tolerates
// reconnection without needing its own retry logic.
type SessionSource interface {
	GetSessionProxy(ctx context.Context) (*rpc.Proxy, error)
}

type pendingUpdate struct {
	revNum int
	r      editortarget.Range
}

// Tracker accepts Update calls and forwards at most one caret_update per
// updateDelay, always the most recently reported position. A single worker
// goroutine runs while there is traffic and exits after maxIdleTime with
// nothing to send; the next Update restarts it.
type Tracker struct {
	session SessionSource
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	latest  *pendingUpdate
	running bool
}

// New creates a Tracker. logger may be nil, in which case slog.Default is
// used.
func New(session SessionSource, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		session: session,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(updateDelay), 1),
	}
}

// Update records the latest known selection at revNum, displacing any
// earlier pending one, and starts the worker if it is not already running.
func (t *Tracker) Update(revNum int, r editortarget.Range) {
	t.mu.Lock()
	t.latest = &pendingUpdate{revNum: revNum, r: r}
	start := !t.running
	if start {
		t.running = true
	}
	t.mu.Unlock()

	if start {
		go t.run(context.Background())
	}
}

func (t *Tracker) run(ctx context.Context) {
	idle := time.Duration(0)
	for {
		t.mu.Lock()
		u := t.latest
		t.latest = nil
		t.mu.Unlock()

		if u == nil {
			if idle >= maxIdleTime {
				t.mu.Lock()
				t.running = false
				t.mu.Unlock()
				return
			}
			time.Sleep(updateDelay)
			idle += updateDelay
			continue
		}
		idle = 0

		if err := t.limiter.Wait(ctx); err != nil {
			return
		}

		proxy, err := t.session.GetSessionProxy(ctx)
		if err != nil {
			t.logger.Warn("caret: session unavailable", "err", err)
			continue
		}
		if _, err := proxy.Call(ctx, "caret_update", u.revNum, u.r.Index, u.r.Length); err != nil {
			t.logger.Warn("caret: update failed", "err", err)
		}
	}
}
