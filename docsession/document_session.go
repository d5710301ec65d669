// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package docsession implements the document session (spec component D): a
// durable "session proxy" for the current (author, document, caret) triple
// that reconnects the transport underneath as needed and publishes its
// lifecycle as an event stream.
package docsession

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/inkwell/docsync/rpc"
	"github.com/inkwell/docsync/rpcerr"
	"github.com/inkwell/docsync/transport"
	"github.com/inkwell/docsync/wire"
)

// EventKind distinguishes the session lifecycle events.
type EventKind int

const (
	EventOpening EventKind = iota
	EventOpen
	EventClosed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpening:
		return "opening"
	case EventOpen:
		return "open"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification published on a Session's event
// stream.
type Event struct {
	Kind EventKind
	Err  error
}

// Session presents a durable session proxy for one (author, document,
// caret) triple.
type Session struct {
	documentID string
	tokens     oauth2.TokenSource
	wsURL      string
	dial       transport.Dialer
	logger     *slog.Logger

	mu          sync.Mutex
	facade      *transport.Facade
	facadeErr   error
	proxy       *rpc.Proxy
	caretID     string
	haveCaretID bool

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a Session for documentID, reachable at httpURL, authenticated
// as the author that tokens produces bearer tokens for.
func New(httpURL, documentID string, tokens oauth2.TokenSource, dial transport.Dialer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		documentID: documentID,
		tokens:     tokens,
		wsURL:      httpURL,
		dial:       dial,
		logger:     logger,
		subs:       make(map[int]chan Event),
	}
}

// Subscribe returns a channel of lifecycle events and an unsubscribe func.
// The channel is buffered; a subscriber that falls behind drops events
// rather than stalling the publisher.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("docsession: subscriber dropped event", "kind", ev.Kind)
		}
	}
}

// ReportError broadcasts an error event, satisfying sync.SessionSource.
func (s *Session) ReportError(err error) {
	s.publish(Event{Kind: EventError, Err: err})
}

func (s *Session) ensureFacade() (*transport.Facade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.facade != nil || s.facadeErr != nil {
		return s.facade, s.facadeErr
	}
	f, err := transport.NewFacade(s.wsURL, s.dial, s.logger)
	if err != nil {
		s.facadeErr = err
		return nil, err
	}
	s.facade = f
	return f, nil
}

// Open is a fire-and-forget best-effort attempt to have the transport start
// opening; failures surface later via GetSessionProxy and the event stream,
// not here.
func (s *Session) Open() {
	go func() {
		s.publish(Event{Kind: EventOpening})
		f, err := s.ensureFacade()
		if err != nil {
			s.publish(Event{Kind: EventError, Err: err})
			return
		}
		if err := f.Open(context.Background()); err != nil {
			s.publish(Event{Kind: EventError, Err: err})
			return
		}
		s.publish(Event{Kind: EventOpen})
	}()
}

// GetSessionProxy is the idempotent resolver described in spec.md §4.D: it
// ensures the transport is open, reuses a cached proxy if the transport
// still recognizes it, and otherwise looks up or creates a session through
// the author's proxy.
func (s *Session) GetSessionProxy(ctx context.Context) (*rpc.Proxy, error) {
	f, err := s.ensureFacade()
	if err != nil {
		return nil, err
	}
	s.publish(Event{Kind: EventOpening})
	if err := f.Open(ctx); err != nil {
		s.publish(Event{Kind: EventError, Err: err})
		return nil, err
	}
	s.publish(Event{Kind: EventOpen})

	s.mu.Lock()
	cached := s.proxy
	s.mu.Unlock()
	if cached != nil {
		if f.Handles(cached) {
			return cached, nil
		}
		// The transport reconnected underneath us (a new WebSocket, a fresh
		// handshake) and no longer recognizes the proxy we handed out
		// before: the old session is gone from its point of view, so tell
		// subscribers it closed before resolving a replacement.
		s.publish(Event{Kind: EventClosed})
		s.mu.Lock()
		s.proxy = nil
		s.mu.Unlock()
	}

	tok, err := s.tokens.Token()
	if err != nil {
		return nil, err
	}
	authorProxy, err := f.GetProxy(tok.AccessToken)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	caretID, haveCaretID := s.caretID, s.haveCaretID
	s.mu.Unlock()

	var proxy *rpc.Proxy
	if haveCaretID {
		result, err := authorProxy.Call(ctx, "findExistingSession", s.documentID, caretID)
		if err != nil {
			return nil, err
		}
		if p, ok := result.(*rpc.Proxy); ok {
			proxy = p
		}
		// A nil result means the caret was evicted server-side; fall through
		// to creating a new session.
	}

	if proxy == nil {
		result, err := authorProxy.Call(ctx, "makeNewSession", s.documentID)
		if err != nil {
			return nil, err
		}
		p, ok := result.(*rpc.Proxy)
		if !ok {
			return nil, rpcerr.ConnectionNonsense(f.ConnectionID(), "makeNewSession did not return a session target")
		}
		proxy = p

		caretResult, err := proxy.Call(ctx, "getCaretId")
		if err != nil {
			return nil, err
		}
		var newCaretID string
		if err := wire.DecodeResult(caretResult, &newCaretID); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.caretID = newCaretID
		s.haveCaretID = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.proxy = proxy
	s.mu.Unlock()
	return proxy, nil
}
