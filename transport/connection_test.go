// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/inkwell/docsync/wire"
)

// fakeSocket is a Socket that auto-responds to handshake and target calls
// the way a cooperative test server would, and lets the test inject
// out-of-band frames (a server-initiated close, an orphan response).
type fakeSocket struct {
	codec  wire.Codec
	toRead chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	// holdServerInfo, if set by a test, delays the serverInfo response until
	// closed; serverInfoRequested is closed the moment a serverInfo request
	// is observed. Both exist only to hold Open() mid-handshake in
	// TestConnection_HandshakeCallsBypassConnectingQueue.
	holdServerInfo          chan struct{}
	serverInfoRequested     chan struct{}
	serverInfoRequestedOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		toRead:              make(chan []byte, 16),
		closed:              make(chan struct{}),
		serverInfoRequested: make(chan struct{}),
	}
}

func (s *fakeSocket) WriteMessage(ctx context.Context, data []byte) error {
	frame, err := s.codec.Decode(data)
	if err != nil || frame.Message == nil {
		return nil
	}
	msg := *frame.Message
	if msg.Payload.Name == "serverInfo" {
		s.serverInfoRequestedOnce.Do(func() { close(s.serverInfoRequested) })
		if s.holdServerInfo != nil {
			<-s.holdServerInfo
		}
	}
	resp := s.autoRespond(msg)
	out, err := s.codec.Encode(wire.Frame{Response: &resp})
	if err != nil {
		return err
	}
	select {
	case s.toRead <- out:
	case <-s.closed:
	}
	return nil
}

func (s *fakeSocket) autoRespond(msg wire.Message) wire.Response {
	switch msg.Payload.Name {
	case "connectionId":
		return wire.Response{ID: msg.ID, Result: "conn-fake-1"}
	case "serverInfo":
		return wire.Response{ID: msg.ID, Result: map[string]any{"name": "fake-server"}}
	case "ping":
		return wire.Response{ID: msg.ID, Result: "pong"}
	default:
		return wire.Response{ID: msg.ID, Result: "ok"}
	}
}

func (s *fakeSocket) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.toRead:
		return data, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// inject pushes a frame directly onto the read side, bypassing autoRespond,
// to simulate a server-initiated message.
func (s *fakeSocket) inject(frame wire.Frame) {
	data, _ := s.codec.Encode(frame)
	select {
	case s.toRead <- data:
	case <-s.closed:
	}
}

func TestConnection_OpenPerformsHandshake(t *testing.T) {
	sock := newFakeSocket()
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := c.ConnectionID(); got != "conn-fake-1" {
		t.Errorf("ConnectionID() = %q, want conn-fake-1", got)
	}
	if !c.IsOpen() {
		t.Error("IsOpen() = false after successful handshake")
	}

	// A second Open is a no-op on an already-open connection.
	if err := c.Open(ctx); err != nil {
		t.Errorf("second Open() error = %v", err)
	}
}

// TestConnection_HandshakeCallsBypassConnectingQueue guards against a
// deadlock where handshake's own connectionId/serverInfo calls would be
// queued - since raw is still rawConnecting for the duration of the
// handshake - and never flushed, because nothing flushes the queue until
// handshake itself returns successfully. It also checks the opposite isn't
// true: an ordinary call made by a second, overlapping Open() caller during
// that same window must still queue behind the handshake rather than
// jumping the line, per spec.md's "queue while connecting" property.
func TestConnection_HandshakeCallsBypassConnectingQueue(t *testing.T) {
	sock := newFakeSocket()
	sock.holdServerInfo = make(chan struct{})
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	openDone := make(chan error, 1)
	go func() { openDone <- c.Open(ctx) }()

	select {
	case <-sock.serverInfoRequested:
	case <-time.After(time.Second):
		t.Fatal("serverInfo was never requested - handshake.connectionId() itself stalled")
	}

	pingDone := make(chan struct{}, 1)
	go func() {
		c.meta.Call(ctx, "ping")
		pingDone <- struct{}{}
	}()

	select {
	case <-pingDone:
		t.Fatal("a concurrent caller's ping resolved before the connecting queue was flushed")
	case <-time.After(50 * time.Millisecond):
	}

	close(sock.holdServerInfo)

	select {
	case err := <-openDone:
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Open() never returned - handshake deadlocked on its own queued calls")
	}

	select {
	case <-pingDone:
	case <-time.After(time.Second):
		t.Fatal("queued ping was never flushed after the handshake completed")
	}
}

func TestConnection_SendRawRoundTrips(t *testing.T) {
	sock := newFakeSocket()
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	body := c.registry.AddOrGet("body")
	result, err := body.Call(ctx, "getSnapshot")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("Call() result = %v, want ok", result)
	}

	stats := c.Stats()
	if stats.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0 after the call resolved", stats.InFlight)
	}
}

func TestConnection_UnknownTargetRejected(t *testing.T) {
	sock := newFakeSocket()
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, err := c.sendRaw(ctx, "no-such-target", wire.Functor{Name: "whatever"})
	if err == nil {
		t.Fatal("sendRaw() expected error for an unregistered target")
	}
}

func TestConnection_ServerCloseThenTeardownResetsToUnopened(t *testing.T) {
	sock := newFakeSocket()
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sock.inject(wire.Frame{Message: &wire.Message{Target: "meta", Payload: wire.Functor{Name: "close"}}})

	// Give the read loop a moment to process the soft-close notice.
	deadline := time.Now().Add(time.Second)
	for c.state() != ServerClosing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.state() != ServerClosing {
		t.Fatal("state did not become ServerClosing after server close notice")
	}

	// Now actually sever the socket; the connection should come back to
	// Unopened so Open can be retried, with the teardown counted.
	sock.Close()
	deadline = time.Now().Add(time.Second)
	for c.state() != Unopened && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.state() != Unopened {
		t.Fatalf("state = %v after teardown, want Unopened", c.state())
	}
	if stats := c.Stats(); stats.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", stats.Reconnects)
	}
}

func TestConnection_OrphanResponseIsCounted(t *testing.T) {
	sock := newFakeSocket()
	dial := func(ctx context.Context, url string) (Socket, error) { return sock, nil }
	c := NewConnection("wss://example.test/session", dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sock.inject(wire.Frame{Response: &wire.Response{ID: 9999, Result: "stray"}})

	deadline := time.Now().Add(time.Second)
	for c.Stats().OrphanResponse == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := c.Stats().OrphanResponse; got != 1 {
		t.Errorf("OrphanResponse = %d, want 1", got)
	}
}
