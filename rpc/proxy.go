// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package rpc implements the target proxy registry (spec component A): the
// mapping from string target ids to call-forwarding proxies that turn
// method invocations into outbound wire.Message sends.
package rpc

import (
	"context"
	"sync"

	"github.com/inkwell/docsync/wire"
)

// SendFunc is the transport-supplied closure a Proxy forwards calls
// through. It is injected rather than called directly against a concrete
// transport so this package has no dependency on the transport's wire
// format beyond wire.Functor.
type SendFunc func(ctx context.Context, targetID string, payload wire.Functor) (any, error)

// boundMethod is a method name closed over a Proxy's id and send func, so
// repeated calls to the same method name don't reallocate the closure.
type boundMethod func(ctx context.Context, args ...any) (any, error)

// Proxy forwards method invocations for one target id as outbound calls.
// There is no dynamic-proxy magic here (Go has no equivalent to a
// JavaScript Proxy trap): callers invoke Call(ctx, method, args...)
// explicitly, or fetch a cached Method(name) closure for a hot path.
type Proxy struct {
	id   string
	send SendFunc

	mu      sync.Mutex
	methods map[string]boundMethod
}

func newProxy(id string, send SendFunc) *Proxy {
	return &Proxy{id: id, send: send, methods: make(map[string]boundMethod)}
}

// ID returns the target id this proxy forwards calls to.
func (p *Proxy) ID() string { return p.id }

// Call invokes method name with args, producing send(id, Functor(name, args)).
func (p *Proxy) Call(ctx context.Context, name string, args ...any) (any, error) {
	return p.Method(name)(ctx, args...)
}

// Method returns a bound call closure for name, caching it so repeated
// calls to the same method name do not reallocate.
func (p *Proxy) Method(name string) boundMethod {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.methods[name]; ok {
		return m
	}
	m := func(ctx context.Context, args ...any) (any, error) {
		return p.send(ctx, p.id, wire.Functor{Name: name, Args: args})
	}
	p.methods[name] = m
	return m
}
