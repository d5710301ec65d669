// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package delta defines the abstract delta algebra that the synchronization
// state machine composes and transforms documents with, plus a minimal
// reference implementation sufficient for tests and the probe CLI.
//
// The algebra's actual operational-transform semantics (how two concurrent
// edits reconcile) are explicitly out of scope for this module; callers
// supply their own Delta implementation (e.g. a Quill Delta bridge) and get
// correct synchronization behavior as long as Compose/Transform satisfy the
// laws documented on the interface.
package delta

import "github.com/segmentio/encoding/json"

// Delta is an opaque, ordered sequence of document operations.
//
// Compose(other) must be associative but need not be commutative:
// a.Compose(b).Compose(c) == a.Compose(b.Compose(c)).
//
// Transform(other, baseWins) computes the delta that, applied after self,
// reconciles with a concurrent edit other that was generated against the
// same base. When baseWins is true, self's operations take priority over
// other's on conflicting ranges (used to compute the server's view of
// concurrent local edits); when false, other takes priority (used to
// compute the editor's view of a server correction).
type Delta interface {
	Compose(other Delta) Delta
	Transform(other Delta, baseWins bool) Delta
	IsEmpty() bool

	// Apply renders doc with this delta's operations applied. Callers that
	// only ever compose/transform deltas never need this; it exists for the
	// places (tests, the probe CLI) that need to observe the resulting text.
	Apply(doc string) string
}

// Snapshot names a document state: the revision it was produced at, plus its
// full contents.
type Snapshot struct {
	RevNum   int
	Contents Delta
}

// Apply returns the snapshot obtained by applying change to s. The caller is
// responsible for ensuring change.RevNum == s.RevNum+1; Apply does not
// itself validate revision contiguity (the sync state machine does, per its
// monotonicity invariant).
func (s Snapshot) Apply(change Change) Snapshot {
	return Snapshot{RevNum: change.RevNum, Contents: s.Contents.Compose(change.Delta)}
}

// Change is a single revision transition: applying Delta to the snapshot at
// RevNum-1 yields the snapshot at RevNum.
type Change struct {
	RevNum int
	Delta  Delta
}

// The wire encoding of Snapshot/Change assumes the TextDelta reference
// implementation, since Delta is an interface and JSON has no notion of
// "the concrete type on the other end". A deployment swapping in a real
// rich-text Delta (e.g. a Quill Delta bridge) would replace these two
// methods (and Op's wire tags) with its own class-tagged encoding; nothing
// else in this package depends on the wire shape.

type wireChange struct {
	RevNum int       `json:"revNum"`
	Delta  TextDelta `json:"delta"`
}

func (c Change) MarshalJSON() ([]byte, error) {
	td, _ := c.Delta.(TextDelta)
	return json.Marshal(wireChange{RevNum: c.RevNum, Delta: td})
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var w wireChange
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.RevNum = w.RevNum
	c.Delta = w.Delta
	return nil
}

type wireSnapshot struct {
	RevNum   int       `json:"revNum"`
	Contents TextDelta `json:"contents"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	td, _ := s.Contents.(TextDelta)
	return json.Marshal(wireSnapshot{RevNum: s.RevNum, Contents: td})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.RevNum = w.RevNum
	s.Contents = w.Contents
	return nil
}
