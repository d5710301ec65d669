// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import "context"

type handlerFunc func(ctx context.Context, m *Machine, ev Event)

type dispatchKey struct {
	state State
	event EventKind
}

// table is the (state,event) dispatch table. Handlers are looked up with
// fallback, in order: (state,event), (state,*), (*,event), (*,*). The first
// tier with a registration is used, so where two registrations could both
// apply (errorWait's wildcard and (*,error), for one), the more specific
// one wins.
var table = map[dispatchKey]handlerFunc{}

func register(state State, event EventKind, h handlerFunc) {
	table[dispatchKey{state, event}] = h
}

func lookup(state State, event EventKind) handlerFunc {
	if h, ok := table[dispatchKey{state, event}]; ok {
		return h
	}
	if h, ok := table[dispatchKey{state, anyEvent}]; ok {
		return h
	}
	if h, ok := table[dispatchKey{anyState, event}]; ok {
		return h
	}
	if h, ok := table[dispatchKey{anyState, anyEvent}]; ok {
		return h
	}
	return nil
}

func init() {
	register(Detached, EvStart, handleStart)
	// handleAPIError's backoff path posts a delayed EvStart to retry from
	// errorWait; without this exact-tier registration it falls through to
	// the (ErrorWait,*) wildcard below and is discarded like any other
	// event, so the machine never actually recovers from a transient error.
	register(ErrorWait, EvStart, handleStart)

	register(Idle, EvWantInput, handleWantInput)
	register(Idle, EvWantInputAfterDelay, handleWantInputAfterDelay)
	register(Idle, EvGotChangeAfter, handleGotChangeAfter)
	register(Idle, EvGotQuillEvent, handleGotQuillEvent)

	register(Collecting, EvWantToUpdate, handleWantToUpdate)
	register(Collecting, EvStop, handleStopInFlight)

	register(Merging, EvGotUpdate, handleGotUpdate)
	register(Merging, EvStop, handleStopInFlight)

	register(ErrorWait, anyEvent, handleDiscardInErrorWait)

	register(anyState, EvAPIError, handleAPIError)
	register(anyState, EvNextState, handleNextState)
	register(anyState, EvStop, handleStopGeneric)
	register(anyState, EvError, handleUncaughtError)
}
