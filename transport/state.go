// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport owns the WebSocket lifecycle, connection id, send
// queue, message/response correlation, and dispatch of received frames
// (spec component B), plus the stateless session façade composed over it
// (spec component C).
package transport

// State is the derived connection state spec.md §3 names. closed and
// serverClosing both forbid sends; connecting queues; open writes
// immediately.
type State int

const (
	Unopened State = iota
	Connecting
	Open
	ServerClosing
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case ServerClosing:
		return "serverClosing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// rawState is the underlying socket lifecycle state, before serverClosing is
// folded in to produce the public State.
type rawState int

const (
	rawUnopened rawState = iota
	rawConnecting
	rawOpen
	rawClosed
)

func derive(raw rawState, serverClosing bool) State {
	if raw == rawClosed {
		return Closed
	}
	if serverClosing {
		return ServerClosing
	}
	switch raw {
	case rawConnecting:
		return Connecting
	case rawOpen:
		return Open
	default:
		return Unopened
	}
}
