// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"time"

	"github.com/inkwell/docsync/delta"
	"github.com/inkwell/docsync/editortarget"
)

// EventKind names one of the typed events spec.md §4.E dispatches on.
type EventKind int

const (
	EvStart EventKind = iota
	EvStop
	EvAPIError
	EvGotChangeAfter
	EvGotUpdate
	EvGotQuillEvent
	EvWantInput
	EvWantInputAfterDelay
	EvWantToUpdate
	EvNextState
	EvError
)

// anyEvent matches a handler registered against every event kind.
const anyEvent EventKind = -1

// evCallback is an unexported event kind used to marshal the result of a
// background goroutine back onto the single dispatch goroutine, so fields
// like currentEvent/snapshot are only ever written from Run's loop. It
// never appears in the dispatch table and is never dispatched as a named
// spec event; handle intercepts it before the table lookup.
const evCallback EventKind = -2

func (k EventKind) String() string {
	switch k {
	case EvStart:
		return "start"
	case EvStop:
		return "stop"
	case EvAPIError:
		return "apiError"
	case EvGotChangeAfter:
		return "gotChangeAfter"
	case EvGotUpdate:
		return "gotUpdate"
	case EvGotQuillEvent:
		return "gotQuillEvent"
	case EvWantInput:
		return "wantInput"
	case EvWantInputAfterDelay:
		return "wantInputAfterDelay"
	case EvWantToUpdate:
		return "wantToUpdate"
	case EvNextState:
		return "nextState"
	case EvError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single message posted to the machine's dispatch loop. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Method string // apiError
	Err    error  // apiError, error

	BaseRev int // gotChangeAfter, gotQuillEvent, wantToUpdate, wantInputAfterDelay inherits from its source

	Change *delta.Change // gotChangeAfter: the server's change

	UpdateDelta        delta.Delta   // gotUpdate: the delta we originally submitted
	UpdateCorrection   *delta.Change // gotUpdate: the server's corrected change

	Delay time.Duration // wantInputAfterDelay

	Next State // nextState

	QuillEvent editortarget.ClientEvent // gotQuillEvent: the editor event the local wait observed

	fn func(context.Context, *Machine) // evCallback only
}
