// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package sync

import (
	"context"
	"math"
	"time"

	"github.com/inkwell/docsync/rpcerr"
)

// handleAPIError implements the apiError(method, err) handling described in
// spec.md §4.E "Error handling and backoff", registered against every
// state except errorWait (whose wildcard discard handler takes this event;
// only start has its own registration there).
func handleAPIError(ctx context.Context, m *Machine, ev Event) {
	if rpcerr.IsConnectionError(ev.Err) {
		m.logger.Info("sync: connection error", "method", ev.Method, "err", ev.Err)
	} else {
		m.logger.Error("sync: api error", "method", ev.Method, "err", ev.Err)
	}

	// body_getChangeAfter's own await guard only gets cleared on success
	// (handleGotChangeAfter) or a timeout (handleWantInputAfterDelay); an
	// error on this round trip needs the same clearing, or handleWantInput's
	// "already awaiting" guard stays tripped forever and server polling
	// silently stops after the first failure.
	if ev.Method == "body_getChangeAfter" {
		m.pendingChangeAfter = false
	}

	now := time.Now()
	m.errorStamps = append(m.errorStamps, now)
	cutoff := now.Add(-m.tuning.ErrorWindow)
	drop := 0
	for drop < len(m.errorStamps) && m.errorStamps[drop].Before(cutoff) {
		drop++
	}
	m.errorStamps = m.errorStamps[drop:]

	count := len(m.errorStamps)
	span := now.Sub(m.errorStamps[0])
	rate := math.Inf(1)
	if span > 0 {
		rate = float64(count) / span.Minutes()
	}

	if count >= 2 && rate >= m.tuning.ErrorMaxPerMinute && span >= m.tuning.ErrorStateMinTime {
		m.session.ReportError(ev.Err)
		m.errorStamps = nil
		m.transition(UnrecoverableError)
		m.post(Event{Kind: EvNextState, Next: Detached})
		return
	}

	delay := m.tuning.SubsequentRetryDelay
	if count == 1 {
		delay = m.tuning.FirstRetryDelay
	}
	m.transition(BecomeDisabled)
	m.disableEditor()
	m.transition(ErrorWait)
	m.postAfter(delay, Event{Kind: EvStart})
}

// handleDiscardInErrorWait implements "events arriving in errorWait are
// discarded (logged)" (spec.md §4.E).
func handleDiscardInErrorWait(ctx context.Context, m *Machine, ev Event) {
	m.logger.Debug("sync: discarding event in errorWait", "event", ev.Kind)
}

// handleUncaughtError implements the machine's uncaught error(e) event
// (spec.md §4.E's event list). Unlike apiError, this never names a
// retryable RPC method - it's posted when something the machine's own
// bookkeeping didn't expect goes wrong (for instance, the editor's event
// chain itself failing in handleWantInput's local wait). That isn't
// assumed transient, so it escalates immediately rather than waiting on
// apiError's rate-over-a-window treatment.
func handleUncaughtError(ctx context.Context, m *Machine, ev Event) {
	m.logger.Error("sync: uncaught error", "err", ev.Err)
	m.session.ReportError(ev.Err)
	m.errorStamps = nil
	// The only current source of EvError is handleWantInput's local-wait
	// goroutine giving up without posting gotQuillEvent; clear the guard it
	// set so a later restart re-arms that wait instead of finding it stuck
	// permanently pending.
	m.pendingQuillAwait = false
	m.transition(UnrecoverableError)
	m.post(Event{Kind: EvNextState, Next: Detached})
}
