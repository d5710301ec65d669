// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"sync"
)

// condition is a broadcastable boolean, backing shouldBeEnabled
// (spec.md §4.E "disabled-state signaling"). Waiters block on a channel
// that is closed (and replaced) every time the value flips, so any number
// of WaitFor callers observe each transition without polling.
type condition struct {
	mu  sync.Mutex
	val bool
	ch  chan struct{}
}

func newCondition(initial bool) *condition {
	return &condition{val: initial, ch: make(chan struct{})}
}

func (c *condition) set(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.val == v {
		return
	}
	c.val = v
	close(c.ch)
	c.ch = make(chan struct{})
}

func (c *condition) Value() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

// WaitFor blocks until the condition's value equals want, or ctx is done.
func (c *condition) WaitFor(ctx context.Context, want bool) error {
	for {
		c.mu.Lock()
		if c.val == want {
			c.mu.Unlock()
			return nil
		}
		ch := c.ch
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
