// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwell/docsync/delta"
	"github.com/inkwell/docsync/editortarget"
	"github.com/inkwell/docsync/rpc"
)

// SessionSource is the narrow surface the machine needs from a document
// session (spec component D): a way to (re)acquire a live session proxy,
// and a place to report errors the session's own event stream should carry.
// Kept as an interface (rather than importing docsession directly) so the
// two packages don't form an import cycle.
type SessionSource interface {
	GetSessionProxy(ctx context.Context) (*rpc.Proxy, error)
	ReportError(err error)
}

// Machine is the editor-synchronization state machine (spec component E).
// Every state mutation happens on the single goroutine started by Run,
// matching the cooperative single-threaded model of spec.md §5: callers
// interact with it only by posting Events.
type Machine struct {
	session SessionSource
	editor  editortarget.Editor
	tuning  Tuning
	logger  *slog.Logger

	// manageEditorState, when true, makes becomeEnabled/becomeDisabled call
	// editor.Enable()/Disable() directly; when false the machine only
	// updates shouldBeEnabled and leaves enabling to the caller.
	manageEditorState bool

	events chan Event

	state              State
	running            bool
	snapshot           delta.Snapshot
	sessionProxy       *rpc.Proxy
	currentEvent       editortarget.ClientEvent
	pendingChangeAfter bool
	pendingQuillAwait  bool
	errorStamps        []time.Time

	inFlightBaseRev int
	inFlightDelta   delta.Delta

	shouldEnabled *condition
	onSelection   func(revNum int, r editortarget.Range)
}

// New creates a machine in the detached state. Call Run in its own
// goroutine, then Start to begin synchronizing.
func New(session SessionSource, editor editortarget.Editor, tuning Tuning, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		session:           session,
		editor:            editor,
		tuning:            tuning,
		logger:            logger,
		manageEditorState: true,
		events:            make(chan Event, 64),
		state:             Detached,
		shouldEnabled:     newCondition(false),
	}
}

// Start posts the start event, entering the startup sequence.
func (m *Machine) Start() { m.post(Event{Kind: EvStart}) }

// Stop posts the stop event.
func (m *Machine) Stop() { m.post(Event{Kind: EvStop}) }

// ShouldBeEnabled reports the machine's current published enabled signal.
func (m *Machine) ShouldBeEnabled() bool { return m.shouldEnabled.Value() }

// WhenShouldBeEnabled blocks until the machine publishes an enabled signal.
func (m *Machine) WhenShouldBeEnabled(ctx context.Context) error {
	return m.shouldEnabled.WaitFor(ctx, true)
}

// WhenShouldBeDisabled blocks until the machine publishes a disabled signal.
func (m *Machine) WhenShouldBeDisabled(ctx context.Context) error {
	return m.shouldEnabled.WaitFor(ctx, false)
}

// State returns the machine's current state, for diagnostics/tests.
func (m *Machine) State() State { return m.state }

// post enqueues ev without blocking the caller: events queued during a
// handler are processed strictly after the current handler returns,
// because Run drains the channel on a single goroutine (spec.md §5).
func (m *Machine) post(ev Event) {
	select {
	case m.events <- ev:
	default:
		go func() { m.events <- ev }()
	}
}

func (m *Machine) postAfter(d time.Duration, ev Event) {
	if d <= 0 {
		m.post(ev)
		return
	}
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		<-t.C
		m.post(ev)
	}()
}

// Run drains the event queue until ctx is done, dispatching each event
// through the (state,event) table with its wildcard fallbacks. It should be
// started in its own goroutine before Start is called.
func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case ev := <-m.events:
			m.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Machine) handle(ctx context.Context, ev Event) {
	if ev.Kind == evCallback {
		ev.fn(ctx, m)
		return
	}
	h := lookup(m.state, ev.Kind)
	if h == nil {
		m.logger.Warn("sync: unhandled event", "state", m.state, "event", ev.Kind)
		return
	}
	h(ctx, m, ev)
}

func (m *Machine) transition(to State) {
	m.logger.Debug("sync: transition", "from", m.state, "to", to)
	m.state = to
}

// runOnLoop schedules fn to run on the dispatch goroutine, the only place
// Machine's fields are mutated. Background goroutines (RPC calls, editor
// waits) use this instead of writing fields directly.
func (m *Machine) runOnLoop(fn func(context.Context, *Machine)) {
	m.post(Event{Kind: evCallback, fn: fn})
}

// enterBecomeEnabled transitions into becomeEnabled, publishing the enabled
// signal and, if this machine manages the editor's enabled state directly,
// enabling it (spec.md §4.E "disabled-state signaling").
func (m *Machine) enterBecomeEnabled() {
	m.transition(BecomeEnabled)
	m.shouldEnabled.set(true)
	if m.manageEditorState {
		m.editor.Enable()
	}
}

// disableEditor publishes the disabled signal and, if managed, disables the
// editor, without otherwise touching m.state. It is deliberately separate
// from a full becomeDisabled transition: collecting/merging call it while
// remaining in their state so an in-flight body_update's eventual gotUpdate
// still finds its handler (see handleStopInFlight).
func (m *Machine) disableEditor() {
	m.shouldEnabled.set(false)
	if m.manageEditorState {
		m.editor.Disable()
	}
}

// OnSelectionChange installs a hook invoked whenever the editor reports a
// selection change while idle, intended to be wired to a caret tracker's
// Update method (spec component F). It is optional; the zero Machine has
// none.
func (m *Machine) OnSelectionChange(fn func(revNum int, r editortarget.Range)) {
	m.onSelection = fn
}
