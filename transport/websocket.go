// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the minimal duplex byte-frame interface Connection drives. It is
// satisfied by *WebsocketSocket in production and by a fake in tests,
// keeping Connection's correlation/state-machine logic independent of any
// concrete network library.
type Socket interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a new Socket against url.
type Dialer func(ctx context.Context, url string) (Socket, error)

// WebsocketSocket adapts gorilla/websocket to the Socket interface,
// grounded on the teacher's websocketConn: a dialer with a fixed
// subprotocol, mutex-guarded writes, and close-code translation to io.EOF
// so the read loop's teardown path is protocol-agnostic.
type WebsocketSocket struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

// DialWebsocket is a Dialer backed by gorilla/websocket with the "docsync"
// subprotocol negotiated during the handshake.
func DialWebsocket(dialer *websocket.Dialer, header http.Header) Dialer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (Socket, error) {
		d := *dialer
		d.Subprotocols = []string{"docsync"}
		conn, resp, err := d.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket dial failed: %w (status %d)", err, resp.StatusCode)
			}
			return nil, fmt.Errorf("websocket dial failed: %w", err)
		}
		return &WebsocketSocket{conn: conn}, nil
	}
}

func (s *WebsocketSocket) ReadMessage(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("websocket read error: %w", err)
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket message type %d", msgType)
	}
	return data, nil
}

func (s *WebsocketSocket) WriteMessage(ctx context.Context, data []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write error: %w", err)
	}
	return nil
}

func (s *WebsocketSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
