// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/inkwell/docsync/rpc"
	"github.com/inkwell/docsync/rpcerr"
	"github.com/inkwell/docsync/wire"
)

// Connection owns a single WebSocket's lifecycle, id, send queue, and
// message/response correlation (spec component B).
type Connection struct {
	url    string
	dial   Dialer
	codec  wire.Codec
	logger *slog.Logger

	registry *rpc.Registry
	meta     *rpc.Proxy

	mu            sync.Mutex
	raw           rawState
	serverClosing bool
	socket        Socket
	connectionID  string
	nextID        int
	callbacks     map[int]chan callResult
	queue         [][]byte

	stats Stats
}

type callResult struct {
	value any
	err   error
}

// Stats exposes lightweight diagnostics, in the spirit of the teacher's own
// session bookkeeping (StreamableHTTPHandler's session map).
type Stats struct {
	InFlight       int
	OrphanResponse int
	Reconnects     int
}

// NewConnection creates a transport in the unopened state. dial is called
// to establish the socket on each Open; logger defaults to slog.Default().
func NewConnection(url string, dial Dialer, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:          url,
		dial:         dial,
		logger:       logger,
		connectionID: "unknown",
		callbacks:    make(map[int]chan callResult),
	}
	c.registry = rpc.NewRegistry(c.sendRaw)
	c.resetTargets()
	return c
}

func (c *Connection) resetTargets() {
	c.registry.Clear()
	c.meta = c.registry.AddOrGet("meta")
}

// ConnectionID returns the id assigned by the server during the last
// successful handshake, or "unknown" before the first handshake.
func (c *Connection) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Meta returns the proxy for the always-present "meta" target.
func (c *Connection) Meta() *rpc.Proxy { return c.meta }

// Handles reports whether obj is a proxy currently registered on this
// connection.
func (c *Connection) Handles(obj any) bool { return c.registry.Handles(obj) }

// GetProxy resolves idOrToken (a plain target id, or a bearer token that
// names one) to its proxy.
func (c *Connection) GetProxy(idOrToken string) (*rpc.Proxy, error) {
	if p := c.registry.GetOrNil(idOrToken); p != nil {
		return p, nil
	}
	p, err := c.registry.AddBearer(idOrToken)
	if err != nil {
		return nil, rpcerr.UnknownTarget(c.ConnectionID(), idOrToken)
	}
	return p, nil
}

func (c *Connection) state() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return derive(c.raw, c.serverClosing)
}

// IsOpen reports whether the connection is connecting or open.
func (c *Connection) IsOpen() bool {
	s := c.state()
	return s == Connecting || s == Open
}

// Stats returns a snapshot of lightweight diagnostics.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.InFlight = len(c.callbacks)
	return st
}

// Open idempotently ensures the connection is open. If already open, it
// returns immediately. If currently connecting, it awaits completion by
// issuing a ping through the meta proxy, tolerant of duplicate concurrent
// callers. Otherwise it dials a new socket and performs the handshake.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	switch derive(c.raw, c.serverClosing) {
	case Open:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.mu.Unlock()
		_, err := c.meta.Call(ctx, "ping")
		return err
	}
	c.raw = rawConnecting
	c.serverClosing = false
	c.mu.Unlock()

	socket, err := c.dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.raw = rawUnopened
		c.mu.Unlock()
		return fmt.Errorf("transport: dial: %w", err)
	}

	c.mu.Lock()
	c.socket = socket
	c.mu.Unlock()

	go c.readLoop(socket)

	if err := c.handshake(ctx, socket); err != nil {
		socket.Close()
		return err
	}

	c.mu.Lock()
	c.raw = rawOpen
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, data := range pending {
		if err := socket.WriteMessage(ctx, data); err != nil {
			c.logger.Warn("transport: flushing queued frame failed", "error", err)
			break
		}
	}
	return nil
}

// handshake concurrently calls meta.connectionId() and meta.serverInfo(),
// adopting the returned connection id. These are the first two frames
// written to the wire, with ids 0 and 1; the two calls run on separate
// goroutines, so which of them takes id 0 and is written first is not
// fixed. They go out through handshakeCall rather than c.meta.Call: raw is still rawConnecting
// at this point, and sendRaw's ordinary Connecting-state behavior is to hold
// frames on c.queue until Open flips raw to rawOpen and flushes it, which
// happens only after handshake itself returns. Going through that path here
// would have the handshake waiting on responses to calls nothing will ever
// write to the socket.
func (c *Connection) handshake(ctx context.Context, socket Socket) error {
	var (
		wg          sync.WaitGroup
		idErr, infoErr error
		connID      string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		v, err := c.handshakeCall(ctx, socket, "connectionId")
		if err != nil {
			idErr = err
			return
		}
		if s, ok := v.(string); ok {
			connID = s
		} else {
			_ = wire.DecodeResult(v, &connID)
		}
	}()
	go func() {
		defer wg.Done()
		_, infoErr = c.handshakeCall(ctx, socket, "serverInfo")
	}()
	wg.Wait()
	if idErr != nil {
		return fmt.Errorf("transport: handshake connectionId: %w", idErr)
	}
	if infoErr != nil {
		return fmt.Errorf("transport: handshake serverInfo: %w", infoErr)
	}
	c.mu.Lock()
	c.connectionID = connID
	c.mu.Unlock()
	c.logger.Info("transport: handshake complete", "connection_id", connID)
	return nil
}

// handshakeCall sends a "meta" call directly over socket, bypassing sendRaw's
// connecting-state queuing. socket is already dialed and owned solely by the
// in-progress Open call, so there is no concurrent writer to race; a second,
// overlapping Open call instead takes Open's "already connecting" branch and
// queues its ping through the ordinary c.meta.Call path, per spec.md's
// "queue while connecting" testable property.
func (c *Connection) handshakeCall(ctx context.Context, socket Socket, method string) (any, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	resultCh := make(chan callResult, 1)
	c.callbacks[id] = resultCh

	msg := wire.Message{ID: id, Target: "meta", Payload: wire.Functor{Name: method}}
	data, err := c.codec.Encode(wire.Frame{Message: &msg})
	if err != nil {
		delete(c.callbacks, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: encoding message: %w", err)
	}
	c.mu.Unlock()

	if err := socket.WriteMessage(ctx, data); err != nil {
		return nil, fmt.Errorf("transport: handshake write: %w", err)
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sendRaw is the rpc.SendFunc backing every target proxy's forwarded calls.
func (c *Connection) sendRaw(ctx context.Context, targetID string, payload wire.Functor) (any, error) {
	c.mu.Lock()
	st := derive(c.raw, c.serverClosing)
	switch st {
	case Closed:
		connID := c.connectionID
		c.mu.Unlock()
		return nil, rpcerr.ConnectionClosed(connID, "Already closed.")
	case ServerClosing:
		connID := c.connectionID
		c.mu.Unlock()
		return nil, rpcerr.ConnectionClosing(connID)
	}

	if c.registry.GetOrNil(targetID) == nil {
		connID := c.connectionID
		c.mu.Unlock()
		return nil, rpcerr.UnknownTarget(connID, targetID)
	}

	id := c.nextID
	c.nextID++
	resultCh := make(chan callResult, 1)
	c.callbacks[id] = resultCh

	msg := wire.Message{ID: id, Target: targetID, Payload: payload}
	data, err := c.codec.Encode(wire.Frame{Message: &msg})
	if err != nil {
		delete(c.callbacks, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: encoding message: %w", err)
	}

	socket := c.socket
	switch st {
	case Connecting:
		c.queue = append(c.queue, data)
		c.mu.Unlock()
	case Open:
		c.mu.Unlock()
		if err := socket.WriteMessage(ctx, data); err != nil {
			c.logger.Warn("transport: write failed", "error", err)
			// The read loop will observe the broken socket and tear down
			// every pending waiter, including this one; nothing more to do.
		}
	default:
		c.mu.Unlock()
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Connection) readLoop(socket Socket) {
	ctx := context.Background()
	for {
		data, err := socket.ReadMessage(ctx)
		if err != nil {
			c.teardown(socket, err)
			return
		}
		frame, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("transport: discarding malformed frame", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame wire.Frame) {
	switch {
	case frame.Response != nil:
		resp := frame.Response
		c.mu.Lock()
		ch, ok := c.callbacks[resp.ID]
		if ok {
			delete(c.callbacks, resp.ID)
		}
		connID := c.connectionID
		c.mu.Unlock()

		if !ok {
			c.mu.Lock()
			c.stats.OrphanResponse++
			c.mu.Unlock()
			c.logger.Info("transport: orphan response", "id", resp.ID)
			return
		}

		switch {
		case resp.Err != nil:
			ch <- callResult{err: rpcerr.RemoteError(connID, resp.Err)}
		default:
			if remote, ok := resp.Result.(wire.Remote); ok {
				proxy := c.registry.AddOrGet(remote.TargetID)
				ch <- callResult{value: proxy}
			} else {
				ch <- callResult{value: resp.Result}
			}
		}

	case frame.Message != nil:
		msg := frame.Message
		if msg.Target == "meta" && msg.Payload.Name == "close" {
			c.mu.Lock()
			alreadyClosing := c.serverClosing
			c.serverClosing = true
			c.mu.Unlock()
			if !alreadyClosing {
				c.logger.Info("transport: server requested soft close")
			}
			return
		}
		c.logger.Warn("transport: unexpected inbound message", "target", msg.Target, "method", msg.Payload.Name)

	default:
		c.logger.Warn("transport: empty frame")
	}
}

// teardown runs on socket close or read error: it rejects every pending
// waiter with a ConnectionError/ConnectionClosed and resets internal state
// so Open may be called again.
func (c *Connection) teardown(socket Socket, cause error) {
	socket.Close()

	c.mu.Lock()
	connID := c.connectionID
	// Snapshot the callback table before invoking any reject, since a
	// waiter's continuation may synchronously re-enter sendRaw.
	callbacks := c.callbacks
	c.callbacks = make(map[int]chan callResult)
	c.raw = rawClosed
	c.mu.Unlock()

	var teardownErr *rpcerr.CodedError
	if cause == nil || errors.Is(cause, io.EOF) {
		teardownErr = rpcerr.ConnectionClosed(connID, "Normal closure.")
	} else {
		teardownErr = rpcerr.ConnectionError(connID)
	}

	for _, ch := range callbacks {
		ch <- callResult{err: teardownErr}
	}

	c.logger.Info("transport: connection torn down", "connection_id", connID, "cause", cause)

	c.mu.Lock()
	c.raw = rawUnopened
	c.serverClosing = false
	c.connectionID = "unknown"
	c.nextID = 0
	c.queue = nil
	c.stats.Reconnects++
	c.mu.Unlock()
	c.resetTargets()
}
