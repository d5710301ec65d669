// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package editortarget

import (
	"context"
	"sync"

	"github.com/inkwell/docsync/delta"
)

// event is the concrete ClientEvent node used by fakes and by a real editor
// binding. Each node's successor is set exactly once, then readyCh is
// closed, waking any blocked Next callers.
type event struct {
	kind   EventKind
	source Source

	textDelta delta.Delta
	oldText   delta.Delta

	selRange    Range
	oldSelRange Range

	mu      sync.Mutex
	next    ClientEvent
	readyCh chan struct{}
}

// NewTextChange creates a new chain-head event for a text change.
func NewTextChange(d, old delta.Delta, source Source) ClientEvent {
	return &event{kind: TextChange, textDelta: d, oldText: old, source: source, readyCh: make(chan struct{})}
}

// NewSelectionChange creates a new chain-head event for a selection change.
func NewSelectionChange(r, old Range, source Source) ClientEvent {
	return &event{kind: SelectionChange, selRange: r, oldSelRange: old, source: source, readyCh: make(chan struct{})}
}

func (e *event) Kind() EventKind             { return e.kind }
func (e *event) Source() Source              { return e.source }
func (e *event) TextChangeDelta() delta.Delta { return e.textDelta }
func (e *event) OldContents() delta.Delta     { return e.oldText }
func (e *event) SelectionRange() Range       { return e.selRange }
func (e *event) OldRange() Range             { return e.oldSelRange }

func (e *event) NextNow() (ClientEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next, e.next != nil
}

func (e *event) Next(ctx context.Context) (ClientEvent, error) {
	e.mu.Lock()
	if e.next != nil {
		n := e.next
		e.mu.Unlock()
		return n, nil
	}
	ch := e.readyCh
	e.mu.Unlock()

	select {
	case <-ch:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.next, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Append links e's successor and wakes any blocked Next callers. It is the
// producer-side counterpart to Next/NextNow and must be called at most
// once per event.
func (e *event) Append(next ClientEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next != nil {
		return
	}
	e.next = next
	close(e.readyCh)
}

// AppendTextChange is a convenience that builds and appends a text-change
// successor, returning it.
func AppendTextChange(tail ClientEvent, d, old delta.Delta, source Source) ClientEvent {
	n := NewTextChange(d, old, source)
	tail.(*event).Append(n)
	return n
}

// AppendSelectionChange is the selection-change analogue of AppendTextChange.
func AppendSelectionChange(tail ClientEvent, r, old Range, source Source) ClientEvent {
	n := NewSelectionChange(r, old, source)
	tail.(*event).Append(n)
	return n
}

// splicedHead is a synthesized chain head carrying its own payload (kind,
// delta, source) while delegating Next/NextNow to an existing tail node, so
// a consumer walking from this head sees the synthesized event exactly
// once and then rejoins the pre-existing chain as if it had always been
// there (spec.md §4.E merge step 5, §9 design note).
type splicedHead struct {
	payload ClientEvent
	tail    ClientEvent
}

// Splice returns a new chain head with payload's kind/contents but whose
// Next/NextNow delegate to tail.
func Splice(payload, tail ClientEvent) ClientEvent {
	return &splicedHead{payload: payload, tail: tail}
}

func (s *splicedHead) Kind() EventKind              { return s.payload.Kind() }
func (s *splicedHead) Source() Source               { return s.payload.Source() }
func (s *splicedHead) TextChangeDelta() delta.Delta { return s.payload.TextChangeDelta() }
func (s *splicedHead) OldContents() delta.Delta     { return s.payload.OldContents() }
func (s *splicedHead) SelectionRange() Range        { return s.payload.SelectionRange() }
func (s *splicedHead) OldRange() Range              { return s.payload.OldRange() }
func (s *splicedHead) NextNow() (ClientEvent, bool) { return s.tail.NextNow() }
func (s *splicedHead) Next(ctx context.Context) (ClientEvent, error) { return s.tail.Next(ctx) }
