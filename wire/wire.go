// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package wire defines the frame types exchanged over the transport's single
// WebSocket and the class-tagged JSON codec used to encode/decode them.
package wire

import (
	"github.com/inkwell/docsync/rpcerr"
	"github.com/segmentio/encoding/json"
)

// Functor identifies a method call: the method name and its arguments.
type Functor struct {
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// Message is an outbound (or, for meta.close, inbound) call targeting a
// registered target id.
type Message struct {
	ID      int     `json:"id"`
	Target  string  `json:"target"`
	Payload Functor `json:"payload"`
}

// Remote is the sentinel result value directing the client to materialize a
// proxy for the named target id.
type Remote struct {
	TargetID string `json:"targetId"`
}

// Response is an inbound reply correlated to an outbound Message by ID.
// Exactly one of Result or Err is set. Result, once decoded, is either a
// Remote, a json.RawMessage (for the caller to unmarshal into whatever type
// the invoked method returns), or nil.
type Response struct {
	ID     int                `json:"id"`
	Result any                `json:"result,omitempty"`
	Err    *rpcerr.CodedError `json:"error,omitempty"`
}

// Frame is exactly one of Message or Response, as decoded off the wire.
type Frame struct {
	Message  *Message
	Response *Response
}

// DecodeResult unmarshals a Response's raw Result into v. It is an error to
// call this when Result is a Remote (check that case first).
func DecodeResult(result any, v any) error {
	raw, ok := result.(json.RawMessage)
	if !ok {
		if result == nil {
			return nil
		}
		return json.Unmarshal(mustMarshal(result), v)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
