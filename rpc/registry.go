// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Registry maps target ids to Proxy instances. It is owned by the transport
// (directly) and the session façade (through the transport), per spec.md
// §4.A/§5.
type Registry struct {
	send SendFunc

	mu      sync.Mutex
	targets map[string]*Proxy
	set     map[*Proxy]struct{}
}

// NewRegistry creates an empty registry that forwards every proxy's calls
// through send.
func NewRegistry(send SendFunc) *Registry {
	return &Registry{
		send:    send,
		targets: make(map[string]*Proxy),
		set:     make(map[*Proxy]struct{}),
	}
}

// Add registers a new proxy for id. It is an error to add an id twice.
func (r *Registry) Add(id string) (*Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; ok {
		return nil, fmt.Errorf("rpc: target %q already bound", id)
	}
	p := newProxy(id, r.send)
	r.targets[id] = p
	r.set[p] = struct{}{}
	return p, nil
}

// AddOrGet returns the existing proxy for id, or registers and returns a
// new one.
func (r *Registry) AddOrGet(id string) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.targets[id]; ok {
		return p
	}
	p := newProxy(id, r.send)
	r.targets[id] = p
	r.set[p] = struct{}{}
	return p
}

// Get returns the proxy bound to id, or an error if none is registered.
func (r *Registry) Get(id string) (*Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.targets[id]
	if !ok {
		return nil, fmt.Errorf("rpc: target %q not bound", id)
	}
	return p, nil
}

// GetOrNil returns the proxy bound to id, or nil if none is registered.
func (r *Registry) GetOrNil(id string) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targets[id]
}

// Clear removes every registered target. Used on transport reset.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = make(map[string]*Proxy)
	r.set = make(map[*Proxy]struct{})
}

// Handles reports whether obj is a *Proxy currently registered in this
// registry, answered in O(1) via the companion set.
func (r *Registry) Handles(obj any) bool {
	p, ok := obj.(*Proxy)
	if !ok || p == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.set[p]
	return present
}

// bearerClaims is the minimal claim shape a bearer-token target id is
// encoded in: the token names the target id it denotes, and the server is
// the verifier of its signature, not the client, so AddBearer parses
// without a trusted key (grounded on the teacher's fake JWT issuance
// pattern in its auth test server).
type bearerClaims struct {
	jwt.RegisteredClaims
	TargetID string `json:"targetId"`
}

// AddBearer registers (or looks up) the proxy denoted by an opaque bearer
// token id, coercing the token to the target id it names. The docsync
// protocol treats bearer tokens purely as target-id carriers: the server,
// not this client, is responsible for rejecting a forged or expired token
// on the next call against the resulting proxy.
func (r *Registry) AddBearer(token string) (*Proxy, error) {
	var claims bearerClaims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("rpc: malformed bearer token: %w", err)
	}
	if claims.TargetID == "" {
		return nil, fmt.Errorf("rpc: bearer token names no target id")
	}
	return r.AddOrGet(claims.TargetID), nil
}
