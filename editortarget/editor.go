// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package editortarget defines the editor collaborator interface: the
// duplex surface the sync state machine drives (spec.md §6) and the
// promise-chained event stream it consumes, re-modeled per spec.md §9 as a
// single-consumer asynchronous iterator with both a blocking Next and a
// synchronous NextNow accessor.
package editortarget

import (
	"context"

	"github.com/inkwell/docsync/delta"
)

// Source tags who originated a ClientEvent. "doc-client" is reserved as the
// synchronization core's own self-marker: events it causes by calling
// SetContents/UpdateContents are tagged this way so they can be recognized
// and ignored when echoed back (spec.md §4.E).
type Source string

const (
	SourceUser     Source = "user"
	SourceAPI      Source = "api"
	SourceDocClient Source = "doc-client"
)

// EventKind distinguishes the two ClientEvent payload shapes.
type EventKind int

const (
	TextChange EventKind = iota
	SelectionChange
)

// Range is an editor selection, zero-valued when there is no selection.
type Range struct {
	Index  int
	Length int
}

// ClientEvent is one link in the editor's promise-chained event stream.
// NextNow returns the next event if it has already arrived; Next blocks
// until it does (or ctx is done).
type ClientEvent interface {
	Kind() EventKind
	Source() Source

	// TextChangeDelta/OldContents are valid when Kind() == TextChange.
	TextChangeDelta() delta.Delta
	OldContents() delta.Delta

	// SelectionRange/OldRange are valid when Kind() == SelectionChange.
	SelectionRange() Range
	OldRange() Range

	NextNow() (ClientEvent, bool)
	Next(ctx context.Context) (ClientEvent, error)
}

// Editor is the rich-text editor collaborator (out of scope to implement
// for real — this interface is the seam a browser Quill binding satisfies).
type Editor interface {
	GetContents() delta.Delta
	SetContents(d delta.Delta, source Source)
	UpdateContents(d delta.Delta, source Source)

	GetSelection() Range
	SetSelection(r Range)

	Enable()
	Disable()

	// HistoryCutoff marks the undo history so a subsequent UpdateContents
	// is not amalgamated into the user's undo stack; HistoryClear discards
	// all undo history (used once at startup after the initial SetContents).
	HistoryCutoff()
	HistoryClear()

	// Events returns the current head of the event chain.
	Events() ClientEvent
}
