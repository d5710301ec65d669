// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"errors"

	"github.com/inkwell/docsync/delta"
	"github.com/inkwell/docsync/editortarget"
	"github.com/inkwell/docsync/rpcerr"
	"github.com/inkwell/docsync/wire"
)

// handleWantInput implements idle/wantInput (spec.md §4.E "Steady-state
// polling"): it launches the local and server waits, each guarded so a
// second wantInput arriving before the first resolves does not duplicate
// the await.
func handleWantInput(ctx context.Context, m *Machine, ev Event) {
	baseRev := m.snapshot.RevNum

	if !m.pendingQuillAwait {
		m.pendingQuillAwait = true
		head := m.currentEvent
		go func() {
			next, err := head.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return // Run's context ended; the machine is shutting down.
				}
				// Unlike a failed RPC, a broken editor event chain isn't a
				// named method call that can simply be retried: treat it as
				// the machine's uncaught error(e) case.
				m.post(Event{Kind: EvError, Err: err})
				return
			}
			m.post(Event{Kind: EvGotQuillEvent, BaseRev: baseRev, QuillEvent: next})
		}()
	}

	if !m.pendingChangeAfter {
		m.pendingChangeAfter = true
		proxy := m.sessionProxy
		go func() {
			result, err := proxy.Call(ctx, "body_getChangeAfter", baseRev)
			if err != nil {
				if rpcerr.IsTimedOut(err) {
					m.post(Event{Kind: EvWantInputAfterDelay, Delay: m.tuning.PullDelay})
					return
				}
				m.post(Event{Kind: EvAPIError, Method: "body_getChangeAfter", Err: err})
				return
			}
			var ch delta.Change
			if err := wire.DecodeResult(result, &ch); err != nil {
				m.post(Event{Kind: EvAPIError, Method: "body_getChangeAfter", Err: err})
				return
			}
			m.post(Event{Kind: EvGotChangeAfter, BaseRev: baseRev, Change: &ch})
		}()
	}
}

// handleWantInputAfterDelay re-arms the polling loop after a benign
// re-entry (a timed-out body_getChangeAfter, or after incorporating a
// server change).
func handleWantInputAfterDelay(ctx context.Context, m *Machine, ev Event) {
	m.pendingChangeAfter = false
	m.postAfter(ev.Delay, Event{Kind: EvWantInput})
}

// handleGotChangeAfter implements idle/gotChangeAfter (spec.md §4.E
// "Incorporating a server change").
func handleGotChangeAfter(ctx context.Context, m *Machine, ev Event) {
	m.pendingChangeAfter = false

	if ev.BaseRev != m.snapshot.RevNum {
		m.post(Event{Kind: EvWantInput})
		return
	}
	if next, ok := m.currentEvent.NextNow(); ok && next.Kind() == editortarget.TextChange {
		m.post(Event{Kind: EvWantInput})
		return
	}

	m.snapshot = m.snapshot.Apply(*ev.Change)
	m.editor.HistoryCutoff()
	m.editor.UpdateContents(ev.Change.Delta, editortarget.SourceDocClient)
	m.editor.HistoryCutoff()

	m.post(Event{Kind: EvWantInputAfterDelay, Delay: m.tuning.pullAfterChange()})
}

// handleGotQuillEvent implements idle/gotQuillEvent (spec.md §4.E
// "Collecting local edits").
func handleGotQuillEvent(ctx context.Context, m *Machine, ev Event) {
	m.pendingQuillAwait = false

	next := ev.QuillEvent
	if next == nil {
		return
	}

	switch next.Kind() {
	case editortarget.TextChange:
		if next.Source() == editortarget.SourceDocClient {
			// Our own remote-apply reflected back; consume and keep polling.
			m.currentEvent = next
			m.post(Event{Kind: EvWantInput})
			return
		}
		m.transition(Collecting)
		m.postAfter(m.tuning.PushDelay, Event{Kind: EvWantToUpdate, BaseRev: ev.BaseRev})
	case editortarget.SelectionChange:
		m.currentEvent = next
		if m.onSelection != nil {
			m.onSelection(m.snapshot.RevNum, next.SelectionRange())
		}
		m.post(Event{Kind: EvWantInput})
	}
}
