// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package sync implements the editor-synchronization state machine (spec
// component E): the named-state machine that polls, collects local edits,
// submits updates, rebases them over concurrent server changes, retries
// transient failures with bounded backoff, and drives the editor's
// enabled/disabled signal.
package sync

import (
	"time"

	"github.com/inkwell/docsync/internal/dbg"
)

// Tuning collects the machine's timing constants. The core takes no
// environment variables or config files directly (spec.md §6 excludes
// config loading from this module's scope), but DOCSYNCGODEBUG overrides
// are honored for integration testing, exactly as the teacher stack gates
// rare compatibility knobs behind MCPGODEBUG.
type Tuning struct {
	// PushDelay is how long collecting waits for more local edits before
	// submitting a body_update.
	PushDelay time.Duration
	// PullDelay is the minimum spacing between re-polls after a timed-out
	// body_getChangeAfter.
	PullDelay time.Duration
	// PullAfterChangeDelay is the minimum spacing enforced after
	// incorporating a server change before re-polling.
	PullAfterChangeDelay time.Duration
	// StopPollDelay is how often a pending stop re-checks whether an
	// in-flight collecting/merging operation has completed.
	StopPollDelay time.Duration

	// ErrorWindow is the rolling window apiError timestamps are kept
	// within.
	ErrorWindow time.Duration
	// ErrorMaxPerMinute is the rate (errors/minute) that, sustained for at
	// least ErrorStateMinTime with at least 2 errors, escalates to
	// unrecoverableError.
	ErrorMaxPerMinute float64
	// ErrorStateMinTime is the minimum span the error window must cover
	// before escalation is considered.
	ErrorStateMinTime time.Duration
	// FirstRetryDelay/SubsequentRetryDelay are the backoff applied before
	// reissuing start() after a non-escalating apiError.
	FirstRetryDelay      time.Duration
	SubsequentRetryDelay time.Duration
}

// DefaultTuning returns the constants spec.md §4.E names, with any
// DOCSYNCGODEBUG overrides applied.
func DefaultTuning() Tuning {
	t := Tuning{
		PushDelay:            50 * time.Millisecond,
		PullDelay:            0,
		PullAfterChangeDelay: 50 * time.Millisecond,
		StopPollDelay:        100 * time.Millisecond,
		ErrorWindow:          3 * time.Minute,
		ErrorMaxPerMinute:    3.0,
		ErrorStateMinTime:    45 * time.Second,
		FirstRetryDelay:      1 * time.Second,
		SubsequentRetryDelay: 5 * time.Second,
	}
	if ms, ok := dbg.Duration("pushDelayMs"); ok {
		t.PushDelay = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := dbg.Duration("pullDelayMs"); ok {
		t.PullDelay = time.Duration(ms) * time.Millisecond
	}
	return t
}

// pullAfterChange returns max(tuning.PullDelay, tuning.PullAfterChangeDelay), the
// delay spec.md §4.E's "PULL_DELAY" names for re-polling after a server
// change was just incorporated.
func (t Tuning) pullAfterChange() time.Duration {
	if t.PullAfterChangeDelay > t.PullDelay {
		return t.PullAfterChangeDelay
	}
	return t.PullDelay
}
