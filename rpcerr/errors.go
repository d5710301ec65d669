// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package rpcerr defines the coded error taxonomy shared by the transport
// and synchronization layers.
package rpcerr

import "fmt"

// CodedError is a structured error with a short machine-readable code, a
// slice of opaque info values, and an optional wrapped cause. Remote errors
// are re-wrapped on arrival with an outer cause of code "remoteError" so the
// origin of an error is unambiguous while the original payload survives.
type CodedError struct {
	Code  string      `json:"code"`
	Info  []any       `json:"info,omitempty"`
	Cause *CodedError `json:"cause,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause.Error())
	}
	if len(e.Info) > 0 {
		return fmt.Sprintf("%s %v", e.Code, e.Info)
	}
	return e.Code
}

// Unwrap lets errors.Is/errors.As walk the Cause chain.
func (e *CodedError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is matches by code, so errors.Is(err, ConnectionClosed("", "")) works
// regardless of the detail/info carried.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

func newError(code string, info ...any) *CodedError {
	return &CodedError{Code: code, Info: info}
}

// ConnectionClosed reports that the transport's underlying socket has
// closed, optionally carrying a close-code/reason detail.
func ConnectionClosed(connectionID, detail string) *CodedError {
	return newError("connectionClosed", connectionID, detail)
}

// ConnectionClosing reports that the server requested a soft close
// (meta.close) and new sends are being rejected.
func ConnectionClosing(connectionID string) *CodedError {
	return newError("connectionClosing", connectionID)
}

// ConnectionError reports an underlying transport error (not a clean close).
func ConnectionError(connectionID string) *CodedError {
	return newError("connectionError", connectionID)
}

// ConnectionNonsense reports a frame that failed to decode or had an
// unrecognized shape. Frames producing this error are discarded, not
// propagated to any waiter.
func ConnectionNonsense(connectionID, msg string) *CodedError {
	return newError("connectionNonsense", connectionID, msg)
}

// UnknownTarget reports a send addressed to an unregistered target id.
func UnknownTarget(connectionID, target string) *CodedError {
	return newError("unknownTarget", connectionID, target)
}

// RemoteError wraps a CodedError that originated on the server, so the
// caller can tell "my code raised this" apart from "the server raised this"
// while still seeing the original code/info via Cause.
func RemoteError(connectionID string, cause *CodedError) *CodedError {
	return &CodedError{Code: "remoteError", Info: []any{connectionID}, Cause: cause}
}

// TimedOut reports a polling call that the server bounded by a timeout
// rather than answering; the sync state machine treats this specifically as
// a signal to re-poll, not as an error worth counting toward
// unrecoverability.
func TimedOut(ms int) *CodedError {
	return newError("timedOut", ms)
}

// IsConnectionError reports whether err is (or wraps) one of the
// connection-lifecycle codes (connectionClosed, connectionClosing,
// connectionError). The sync machine logs these at Info level as expected
// network blips rather than as application errors.
func IsConnectionError(err error) bool {
	for err != nil {
		ce, ok := err.(*CodedError)
		if !ok {
			return false
		}
		switch ce.Code {
		case "connectionClosed", "connectionClosing", "connectionError":
			return true
		}
		err = ce.Unwrap()
	}
	return false
}

// IsTimedOut reports whether err is (or wraps) a timedOut CodedError, so a
// server-side timeout still counts after the transport wraps it in
// remoteError.
func IsTimedOut(err error) bool {
	for err != nil {
		ce, ok := err.(*CodedError)
		if !ok || ce == nil {
			return false
		}
		if ce.Code == "timedOut" {
			return true
		}
		err = ce.Unwrap()
	}
	return false
}
