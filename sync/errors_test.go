// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwell/docsync/editortarget"
)

func newBareMachine(tuning Tuning) (*Machine, *fakeSession, *editortarget.FakeEditor) {
	editor := editortarget.NewFakeEditor()
	session := &fakeSession{}
	m := New(session, editor, tuning, nil)
	return m, session, editor
}

func TestHandleAPIError_BacksOffWithoutEscalating(t *testing.T) {
	tuning := testTuning()
	tuning.ErrorMaxPerMinute = 1000 // effectively disables escalation for a single error
	tuning.FirstRetryDelay = 5 * time.Millisecond
	m, session, editor := newBareMachine(tuning)
	editor.Enable()

	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "body_update", Err: errors.New("boom")})

	if m.State() != ErrorWait {
		t.Errorf("state = %v, want errorWait", m.State())
	}
	if editor.Enabled() {
		t.Error("editor still enabled after apiError backoff")
	}
	if len(session.reported) != 0 {
		t.Errorf("ReportError called %d times, want 0", len(session.reported))
	}

	select {
	case ev := <-m.events:
		if ev.Kind != EvStart {
			t.Errorf("posted event kind = %v, want EvStart", ev.Kind)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no retry event was posted after backoff delay")
	}
}

func TestHandleAPIError_EscalatesAfterSustainedRate(t *testing.T) {
	tuning := testTuning()
	tuning.ErrorMaxPerMinute = 1
	tuning.ErrorStateMinTime = 0
	tuning.ErrorWindow = time.Minute
	m, session, _ := newBareMachine(tuning)

	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "a", Err: errors.New("first")})
	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "a", Err: errors.New("second")})

	if m.State() != UnrecoverableError {
		t.Fatalf("state = %v, want unrecoverableError", m.State())
	}
	if len(session.reported) != 1 {
		t.Fatalf("ReportError called %d times, want 1", len(session.reported))
	}

	select {
	case ev := <-m.events:
		if ev.Kind != EvNextState || ev.Next != Detached {
			t.Errorf("posted event = %+v, want nextState(detached)", ev)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no nextState(detached) event was posted after escalation")
	}
}

// TestHandleAPIError_DefaultTuningEscalatesOnScenarioSix replays spec.md
// §8 scenario 6 literally: three apiError events at t=0s, t=20s, t=46s
// against DefaultTuning's own constants (3/min over a 45s minimum span)
// must escalate, since 3 errors over 46s is ~3.9/min >= 3.0/min. The two
// earlier errors are seeded directly into errorStamps (rather than slept
// through) so the test doesn't take 46 real seconds to run; only the
// third call actually exercises handleAPIError's rate arithmetic.
func TestHandleAPIError_DefaultTuningEscalatesOnScenarioSix(t *testing.T) {
	m, session, _ := newBareMachine(DefaultTuning())

	now := time.Now()
	m.errorStamps = []time.Time{now.Add(-46 * time.Second), now.Add(-26 * time.Second)}

	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "body_update", Err: errors.New("third")})

	if m.State() != UnrecoverableError {
		t.Fatalf("state = %v, want unrecoverableError (3 errors over 46s is ~3.9/min, >= DefaultTuning's 3/min)", m.State())
	}
	if len(session.reported) != 1 {
		t.Fatalf("ReportError called %d times, want 1", len(session.reported))
	}
}

// TestHandleAPIError_ClearsPendingChangeAfterOnMatchingMethod guards against
// a body_getChangeAfter failure (anything but a timeout, which takes the
// EvWantInputAfterDelay path instead) leaving pendingChangeAfter stuck true:
// handleWantInput's own guard never re-arms the server poll once that
// happens, and nothing else in the machine clears it on an error path.
func TestHandleAPIError_ClearsPendingChangeAfterOnMatchingMethod(t *testing.T) {
	tuning := testTuning()
	tuning.ErrorMaxPerMinute = 1000 // stay in apiError's backoff branch, not escalation
	m, _, _ := newBareMachine(tuning)
	m.pendingChangeAfter = true

	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "body_getChangeAfter", Err: errors.New("boom")})

	if m.pendingChangeAfter {
		t.Error("pendingChangeAfter still true after a body_getChangeAfter apiError, want false")
	}
}

// TestHandleAPIError_LeavesPendingChangeAfterForUnrelatedMethod checks the
// reset is scoped to the failing method: an apiError from body_update must
// not clear a pendingChangeAfter guard left by a genuinely still-outstanding
// body_getChangeAfter call.
func TestHandleAPIError_LeavesPendingChangeAfterForUnrelatedMethod(t *testing.T) {
	tuning := testTuning()
	tuning.ErrorMaxPerMinute = 1000
	m, _, _ := newBareMachine(tuning)
	m.pendingChangeAfter = true

	handleAPIError(context.Background(), m, Event{Kind: EvAPIError, Method: "body_update", Err: errors.New("boom")})

	if !m.pendingChangeAfter {
		t.Error("pendingChangeAfter cleared by an unrelated method's apiError, want still true")
	}
}

func TestHandleUncaughtError_EscalatesImmediately(t *testing.T) {
	m, session, editor := newBareMachine(testTuning())
	editor.Enable()

	handleUncaughtError(context.Background(), m, Event{Kind: EvError, Err: errors.New("editor chain broke")})

	if m.State() != UnrecoverableError {
		t.Errorf("state = %v, want unrecoverableError", m.State())
	}
	if len(session.reported) != 1 {
		t.Fatalf("ReportError called %d times, want 1", len(session.reported))
	}

	select {
	case ev := <-m.events:
		if ev.Kind != EvNextState || ev.Next != Detached {
			t.Errorf("posted event = %+v, want nextState(detached)", ev)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no nextState(detached) event was posted after an uncaught error")
	}
}

// TestHandleUncaughtError_ClearsPendingQuillAwait guards against the
// uncaught-error path leaving handleWantInput's local-wait guard stuck: the
// goroutine that posts EvError never posts gotQuillEvent, so if
// pendingQuillAwait stayed true, a restart after this escalation would find
// handleWantInput's "already awaiting" guard permanently tripped and never
// relaunch the local edit watch again.
func TestHandleUncaughtError_ClearsPendingQuillAwait(t *testing.T) {
	m, _, _ := newBareMachine(testTuning())
	m.pendingQuillAwait = true

	handleUncaughtError(context.Background(), m, Event{Kind: EvError, Err: errors.New("editor chain broke")})

	if m.pendingQuillAwait {
		t.Error("pendingQuillAwait still true after handleUncaughtError, want false")
	}
}

// TestDispatchTable_EvErrorHasAHandlerInEveryState checks that EvError never
// falls through to the "unhandled event" warning in any state. ErrorWait is
// expected to resolve to its own (state,*) discard handler rather than
// handleUncaughtError, since an error arriving while already unwinding from
// one should stay discarded, not trigger a second escalation.
func TestDispatchTable_EvErrorHasAHandlerInEveryState(t *testing.T) {
	for _, s := range []State{Detached, Idle, Collecting, Merging, ErrorWait, UnrecoverableError} {
		if h := lookup(s, EvError); h == nil {
			t.Errorf("lookup(%v, EvError) = nil, want a registered handler", s)
		}
	}
}

func TestHandleDiscardInErrorWait(t *testing.T) {
	m, _, _ := newBareMachine(testTuning())
	m.transition(ErrorWait)

	handleDiscardInErrorWait(context.Background(), m, Event{Kind: EvWantInput})

	select {
	case ev := <-m.events:
		t.Errorf("unexpected event posted while discarding: %+v", ev)
	default:
	}
	if m.State() != ErrorWait {
		t.Errorf("state = %v, want errorWait to remain unchanged", m.State())
	}
}

func TestDispatchTable_ErrorWaitDiscardsUnknownEvents(t *testing.T) {
	h := lookup(ErrorWait, EvWantInput)
	if h == nil {
		t.Fatal("lookup(errorWait, wantInput) = nil, want handleDiscardInErrorWait via the (state,*) tier")
	}
}

func TestDispatchTable_UnregisteredPairReturnsNil(t *testing.T) {
	if h := lookup(Collecting, EvGotChangeAfter); h != nil {
		t.Error("lookup(collecting, gotChangeAfter) should have no handler")
	}
}
