// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkwell/docsync/wire"
)

func noopSend(ctx context.Context, targetID string, payload wire.Functor) (any, error) {
	return nil, nil
}

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry(noopSend)

	p, err := r.Add("session-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if p.ID() != "session-1" {
		t.Errorf("ID() = %q, want session-1", p.ID())
	}

	if _, err := r.Add("session-1"); err == nil {
		t.Error("Add() expected error on duplicate id")
	}

	got, err := r.Get("session-1")
	if err != nil || got != p {
		t.Errorf("Get() = %v, %v, want %v, nil", got, err, p)
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("Get() expected error for unbound id")
	}
	if got := r.GetOrNil("missing"); got != nil {
		t.Errorf("GetOrNil() = %v, want nil", got)
	}
}

func TestRegistry_AddOrGetIsIdempotent(t *testing.T) {
	r := NewRegistry(noopSend)
	a := r.AddOrGet("meta")
	b := r.AddOrGet("meta")
	if a != b {
		t.Error("AddOrGet() returned different proxies for the same id")
	}
}

func TestRegistry_HandlesAndClear(t *testing.T) {
	r := NewRegistry(noopSend)
	p := r.AddOrGet("meta")

	if !r.Handles(p) {
		t.Error("Handles() = false for a registered proxy")
	}
	if r.Handles(&Proxy{}) {
		t.Error("Handles() = true for a foreign proxy")
	}
	if r.Handles("not a proxy") {
		t.Error("Handles() = true for a non-proxy value")
	}

	r.Clear()
	if r.Handles(p) {
		t.Error("Handles() = true after Clear()")
	}
	if r.GetOrNil("meta") != nil {
		t.Error("GetOrNil() found a target after Clear()")
	}
}

func TestRegistry_AddBearer(t *testing.T) {
	r := NewRegistry(noopSend)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, bearerClaims{TargetID: "doc-session-7"})
	signed, err := token.SignedString([]byte("throwaway-signing-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	p, err := r.AddBearer(signed)
	if err != nil {
		t.Fatalf("AddBearer() error = %v", err)
	}
	if p.ID() != "doc-session-7" {
		t.Errorf("ID() = %q, want doc-session-7", p.ID())
	}

	// A second lookup by the same token's target id returns the same proxy.
	again, err := r.AddBearer(signed)
	if err != nil {
		t.Fatalf("AddBearer() second call error = %v", err)
	}
	if again != p {
		t.Error("AddBearer() did not return the cached proxy for a known target id")
	}
}

func TestRegistry_AddBearerRejectsMalformed(t *testing.T) {
	r := NewRegistry(noopSend)
	if _, err := r.AddBearer("not-a-jwt"); err == nil {
		t.Error("AddBearer() expected error for malformed token")
	}
}

func TestProxy_CallForwardsThroughSend(t *testing.T) {
	var gotTarget string
	var gotFunctor wire.Functor
	send := func(ctx context.Context, targetID string, payload wire.Functor) (any, error) {
		gotTarget = targetID
		gotFunctor = payload
		return "ok", nil
	}
	r := NewRegistry(send)
	p := r.AddOrGet("body")

	result, err := p.Call(context.Background(), "getSnapshot", 1, "x")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("Call() result = %v, want ok", result)
	}
	if gotTarget != "body" || gotFunctor.Name != "getSnapshot" {
		t.Errorf("send() got target=%q functor=%+v", gotTarget, gotFunctor)
	}
}
