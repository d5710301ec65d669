// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package property implements the property client (spec component G): a
// read-modify-write layer over a flat, server-held key/value map, with
// change notification via long-poll.
package property

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/inkwell/docsync/rpc"
	"github.com/inkwell/docsync/rpcerr"
	"github.com/inkwell/docsync/wire"
)

// SessionSource resolves the session proxy property_* calls are sent
// through.
type SessionSource interface {
	GetSessionProxy(ctx context.Context) (*rpc.Proxy, error)
}

// Snapshot is the property map at a revision.
type Snapshot struct {
	RevNum int            `json:"revNum"`
	Props  map[string]any `json:"props"`
}

// Delta is a single property mutation: a set of keys to assign and a set of
// keys to remove, applied together by property_update.
type Delta struct {
	Set    map[string]any `json:"set,omitempty"`
	Delete []string       `json:"delete,omitempty"`
}

// Client is the property client.
type Client struct {
	session SessionSource
}

// New creates a property Client.
func New(session SessionSource) *Client {
	return &Client{session: session}
}

func (c *Client) snapshot(ctx context.Context) (Snapshot, error) {
	proxy, err := c.session.GetSessionProxy(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	result, err := proxy.Call(ctx, "property_getSnapshot")
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := wire.DecodeResult(result, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) commit(ctx context.Context, revNum int, d Delta) error {
	proxy, err := c.session.GetSessionProxy(ctx)
	if err != nil {
		return err
	}
	_, err = proxy.Call(ctx, "property_update", revNum, d)
	return err
}

// Has reports whether name is present in the current property snapshot.
func (c *Client) Has(ctx context.Context, name string) (bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.Props[name]
	return ok, nil
}

// Get returns the current value of name, and whether it was present.
func (c *Client) Get(ctx context.Context, name string) (any, bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	v, ok := snap.Props[name]
	return v, ok, nil
}

// Set assigns name to value.
func (c *Client) Set(ctx context.Context, name string, value any) error {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	return c.commit(ctx, snap.RevNum, Delta{Set: map[string]any{name: value}})
}

// SetTyped validates value against schema before setting it, returning the
// validation error without committing anything if it fails. schema may be
// nil, in which case SetTyped behaves exactly like Set.
func (c *Client) SetTyped(ctx context.Context, name string, value any, schema *jsonschema.Schema) error {
	if schema != nil {
		resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return fmt.Errorf("property %q: resolving schema: %w", name, err)
		}
		if err := resolved.Validate(value); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
	}
	return c.Set(ctx, name, value)
}

// Delete removes name.
func (c *Client) Delete(ctx context.Context, name string) error {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	return c.commit(ctx, snap.RevNum, Delta{Delete: []string{name}})
}

// GetUpdate blocks until name's value differs from current (compared by
// deep equality, appropriate for plain data), or timeoutMs elapses, in
// which case it returns a rpcerr timedOut error. It polls
// property_getChangeAfter with a clamped remaining budget each round.
func (c *Client) GetUpdate(ctx context.Context, name string, current any, timeoutMs int) (any, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := snap.Props[name]; ok && !reflect.DeepEqual(v, current) {
		return v, nil
	}
	revNum := snap.RevNum

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, rpcerr.TimedOut(timeoutMs)
		}
		proxy, err := c.session.GetSessionProxy(ctx)
		if err != nil {
			return nil, err
		}
		result, err := proxy.Call(ctx, "property_getChangeAfter", revNum, remaining.Milliseconds())
		if err != nil {
			if rpcerr.IsTimedOut(err) {
				continue
			}
			return nil, err
		}
		var next Snapshot
		if err := wire.DecodeResult(result, &next); err != nil {
			return nil, err
		}
		revNum = next.RevNum
		if v, ok := next.Props[name]; ok && !reflect.DeepEqual(v, current) {
			return v, nil
		}
	}
}
