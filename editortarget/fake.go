// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package editortarget

import (
	"sync"

	"github.com/inkwell/docsync/delta"
)

// FakeEditor is an in-memory Editor used by tests, grounded on the
// teacher's in-memory MemorySessionStore: a mutex-guarded struct standing
// in for a real, externally-driven collaborator.
type FakeEditor struct {
	mu          sync.Mutex
	contents    delta.Delta
	selection   Range
	enabled     bool
	cutoffCount int
	clearCount  int

	head ClientEvent
}

// NewFakeEditor creates a fake editor with an initial (empty) chain head.
func NewFakeEditor() *FakeEditor {
	return &FakeEditor{head: NewSelectionChange(Range{}, Range{}, SourceAPI)}
}

func (f *FakeEditor) GetContents() delta.Delta {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents
}

func (f *FakeEditor) SetContents(d delta.Delta, source Source) {
	f.mu.Lock()
	f.contents = d
	f.mu.Unlock()
	f.emitTextChange(d, nil, source)
}

func (f *FakeEditor) UpdateContents(d delta.Delta, source Source) {
	f.mu.Lock()
	old := f.contents
	if old != nil {
		f.contents = old.Compose(d)
	} else {
		f.contents = d
	}
	f.mu.Unlock()
	f.emitTextChange(d, old, source)
}

func (f *FakeEditor) GetSelection() Range {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection
}

func (f *FakeEditor) SetSelection(r Range) {
	f.mu.Lock()
	old := f.selection
	f.selection = r
	f.mu.Unlock()
	f.emitSelectionChange(r, old, SourceAPI)
}

func (f *FakeEditor) Enable()  { f.mu.Lock(); f.enabled = true; f.mu.Unlock() }
func (f *FakeEditor) Disable() { f.mu.Lock(); f.enabled = false; f.mu.Unlock() }

// Enabled reports the current enabled state, for test assertions.
func (f *FakeEditor) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *FakeEditor) HistoryCutoff() { f.mu.Lock(); f.cutoffCount++; f.mu.Unlock() }
func (f *FakeEditor) HistoryClear()  { f.mu.Lock(); f.clearCount++; f.mu.Unlock() }

func (f *FakeEditor) Events() ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head
}

// EmitTextChange lets a test simulate an externally-driven user edit.
func (f *FakeEditor) EmitTextChange(d, old delta.Delta, source Source) {
	f.emitTextChange(d, old, source)
}

// EmitSelectionChange lets a test simulate a user selection change.
func (f *FakeEditor) EmitSelectionChange(r, old Range, source Source) {
	f.emitSelectionChange(r, old, source)
}

func (f *FakeEditor) emitTextChange(d, old delta.Delta, source Source) {
	f.mu.Lock()
	tail := f.head
	f.head = AppendTextChange(tail, d, old, source)
	f.mu.Unlock()
}

func (f *FakeEditor) emitSelectionChange(r, old Range, source Source) {
	f.mu.Lock()
	tail := f.head
	f.head = AppendSelectionChange(tail, r, old, source)
	f.mu.Unlock()
}
