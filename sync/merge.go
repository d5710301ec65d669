// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"

	"github.com/inkwell/docsync/delta"
	"github.com/inkwell/docsync/editortarget"
	"github.com/inkwell/docsync/wire"
)

// consumeUntilDocClient walks forward from currentEvent, composing every
// unconsumed textChange into a single delta and advancing currentEvent past
// each one consumed, stopping at (and not consuming) the first event tagged
// source == doc-client: that event is our own remote-apply echoed back, and
// whatever local edit produced it already landed after the baseRev this
// submission is based on.
func (m *Machine) consumeUntilDocClient() delta.Delta {
	var composed delta.Delta
	cur := m.currentEvent
	for {
		next, ok := cur.NextNow()
		if !ok {
			break
		}
		if next.Kind() == editortarget.TextChange && next.Source() == editortarget.SourceDocClient {
			break
		}
		if next.Kind() == editortarget.TextChange {
			composed = composeOpt(composed, next.TextChangeDelta())
		}
		cur = next
		m.currentEvent = cur
	}
	return composed
}

// consumeAllLocalEdits walks forward from currentEvent to its end,
// composing every textChange not tagged source == doc-client (those are our
// own remote-apply echoes, not local edits) and advancing currentEvent past
// everything, doc-client echoes included.
func (m *Machine) consumeAllLocalEdits() delta.Delta {
	var composed delta.Delta
	cur := m.currentEvent
	for {
		next, ok := cur.NextNow()
		if !ok {
			break
		}
		if next.Kind() == editortarget.TextChange && next.Source() != editortarget.SourceDocClient {
			composed = composeOpt(composed, next.TextChangeDelta())
		}
		cur = next
		m.currentEvent = cur
	}
	return composed
}

func composeOpt(a, b delta.Delta) delta.Delta {
	if a == nil {
		return b
	}
	return a.Compose(b)
}

// handleWantToUpdate implements collecting/wantToUpdate (spec.md §4.E
// "Submitting an update"). It uses ev.BaseRev, the revision captured when
// the triggering event was generated, not snapshot.RevNum, which may have
// advanced since.
func handleWantToUpdate(ctx context.Context, m *Machine, ev Event) {
	composed := m.consumeUntilDocClient()
	if composed == nil || composed.IsEmpty() {
		m.transition(Idle)
		m.post(Event{Kind: EvWantInput})
		return
	}

	baseRev := ev.BaseRev
	m.inFlightBaseRev = baseRev
	m.inFlightDelta = composed
	m.transition(Merging)

	proxy := m.sessionProxy
	go func() {
		result, err := proxy.Call(ctx, "body_update", baseRev, composed)
		if err != nil {
			m.post(Event{Kind: EvAPIError, Method: "body_update", Err: err})
			return
		}
		var corrected delta.Change
		if err := wire.DecodeResult(result, &corrected); err != nil {
			m.post(Event{Kind: EvAPIError, Method: "body_update", Err: err})
			return
		}
		m.post(Event{Kind: EvGotUpdate, UpdateDelta: composed, UpdateCorrection: &corrected})
	}()
}

// handleGotUpdate implements merging/gotUpdate (spec.md §4.E "Merging
// server response").
func handleGotUpdate(ctx context.Context, m *Machine, ev Event) {
	m.inFlightBaseRev = 0
	m.inFlightDelta = nil

	submitted := ev.UpdateDelta
	corrected := ev.UpdateCorrection
	vResult := corrected.RevNum
	dCorrection := corrected.Delta

	if dCorrection == nil || dCorrection.IsEmpty() {
		m.snapshot = m.snapshot.Apply(delta.Change{RevNum: vResult, Delta: submitted})
		m.transition(Idle)
		m.post(Event{Kind: EvWantInput})
		return
	}

	correctedDelta := submitted.Compose(dCorrection)
	dMore := m.consumeAllLocalEdits()

	if dMore == nil || dMore.IsEmpty() {
		m.snapshot = m.snapshot.Apply(delta.Change{RevNum: vResult, Delta: correctedDelta})
		m.editor.UpdateContents(dCorrection, editortarget.SourceDocClient)
		m.transition(Idle)
		m.post(Event{Kind: EvWantInput})
		return
	}

	// Concurrent local edits arrived during the round trip. dIntegratedCorrection
	// brings the editor to the server's state with dMore still on top;
	// dNewMore is the net of those local edits relative to the server state,
	// synthesized as a new event so the next idle/wantInput picks it up as if
	// freshly typed.
	dIntegratedCorrection := dMore.Transform(dCorrection, false)
	m.snapshot = m.snapshot.Apply(delta.Change{RevNum: vResult, Delta: correctedDelta})
	m.editor.UpdateContents(dIntegratedCorrection, editortarget.SourceDocClient)

	dNewMore := dCorrection.Transform(dMore, true)
	synthesized := editortarget.NewTextChange(dNewMore, delta.Empty, editortarget.SourceUser)
	m.currentEvent = editortarget.Splice(synthesized, m.currentEvent)

	m.transition(Idle)
	m.post(Event{Kind: EvWantInput})
}
