// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

// envelopeFields are the JSON keys wireEnvelope actually understands. Unlike
// a generic reflect-over-struct-tags check, this set is fixed to the wire
// frame's own shape: a forged "$Type" or "Target" would otherwise slip past
// Go's case-insensitive unmarshal and be silently accepted as the real field
// rather than rejected, which matters here specifically because "$type" is the
// discriminator every frame is dispatched on in Decode. Keep this in sync
// with wireEnvelope's json tags in codec.go.
var envelopeFields = map[string]bool{
	"$type":   true,
	"id":      true,
	"target":  true,
	"payload": true,
	"result":  true,
	"error":   true,
}

// decodeEnvelopeStrict decodes data into a wireEnvelope, rejecting frames
// that a case-insensitive decode would accept but that don't actually match
// the wire schema: a case-variant duplicate key anywhere in the frame (including
// inside payload/result, which hold caller-supplied JSON), or a top-level key
// that matches one of envelopeFields only case-insensitively (most commonly a
// forged "$Type" meant to dodge the type switch in Decode).
func decodeEnvelopeStrict(data []byte) (wireEnvelope, error) {
	var env wireEnvelope
	if err := checkNoCaseVariantDuplicates(data); err != nil {
		return env, fmt.Errorf("wire: %w", err)
	}
	if err := checkEnvelopeFieldCase(data); err != nil {
		return env, fmt.Errorf("wire: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return env, fmt.Errorf("wire: %w", err)
	}
	return env, nil
}

// checkNoCaseVariantDuplicates walks data (and, recursively, any nested
// object or array within it - payload.args in particular can hold arbitrary
// caller data) rejecting keys that differ only by case, since Go's
// encoding/json would otherwise pick whichever one happens to decode last.
func checkNoCaseVariantDuplicates(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil // not an object; nothing to check
	}
	if err := noCaseVariantDuplicatesIn(raw); err != nil {
		return err
	}
	for key, val := range raw {
		if err := checkNoCaseVariantDuplicatesNested(val); err != nil {
			return fmt.Errorf("in field %q: %w", key, err)
		}
	}
	return nil
}

func checkNoCaseVariantDuplicatesNested(data json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		if err := noCaseVariantDuplicatesIn(obj); err != nil {
			return err
		}
		for key, val := range obj {
			if err := checkNoCaseVariantDuplicatesNested(val); err != nil {
				return fmt.Errorf("in field %q: %w", key, err)
			}
		}
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		for i, elem := range arr {
			if err := checkNoCaseVariantDuplicatesNested(elem); err != nil {
				return fmt.Errorf("in array index %d: %w", i, err)
			}
		}
	}
	return nil
}

func noCaseVariantDuplicatesIn(obj map[string]json.RawMessage) error {
	seen := make(map[string]string, len(obj))
	for key := range obj {
		lower := strings.ToLower(key)
		if original, ok := seen[lower]; ok && original != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
		}
		seen[lower] = key
	}
	return nil
}

// checkEnvelopeFieldCase rejects a top-level key that matches one of
// envelopeFields only case-insensitively, which DisallowUnknownFields alone
// would not catch: the case-insensitive field match binds the garbled key to
// the real field instead of reporting it as unknown.
func checkEnvelopeFieldCase(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for key := range raw {
		if envelopeFields[key] {
			continue
		}
		lower := strings.ToLower(key)
		for name := range envelopeFields {
			if name == lower {
				return fmt.Errorf("field name case mismatch: got %q, expected %q", key, name)
			}
		}
	}
	return nil
}
