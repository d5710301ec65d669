// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import "context"

// handleNextState implements the generic nextState(name) event: a
// transition whose side effects already ran before it was posted (spec.md
// §4.E events list). Landing in idle kicks the polling loop, the one case
// where a bare transition needs a follow-up without re-running any other
// handler's setup.
func handleNextState(ctx context.Context, m *Machine, ev Event) {
	m.transition(ev.Next)
	if ev.Next == Idle {
		m.post(Event{Kind: EvWantInput})
	}
}

// handleStopGeneric implements stop for every state except collecting and
// merging, where an in-flight body_update/body_getChangeAfter must be
// allowed to land first (see handleStopInFlight), and errorWait, whose
// (errorWait,*) registration discards stop like any other event.
func handleStopGeneric(ctx context.Context, m *Machine, ev Event) {
	m.running = false
	m.disableEditor()
	m.transition(Detached)
}

// handleStopInFlight implements "Stop during in-flight operations" (spec.md
// §4.E): it publishes the disabled signal but deliberately leaves m.state
// as collecting/merging, so the in-flight call's eventual gotUpdate still
// finds its handler; it re-posts stop after STOP_POLL_DELAY until the
// operation completes naturally and handleStopGeneric can run from idle.
func handleStopInFlight(ctx context.Context, m *Machine, ev Event) {
	m.disableEditor()
	m.postAfter(m.tuning.StopPollDelay, Event{Kind: EvStop})
}
