// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"log/slog"

	"github.com/inkwell/docsync/rpc"
)

// Facade is a stateless composition over a Connection (spec component C):
// it adds nothing beyond what Connection already does, but presents the
// narrow public surface the rest of the application is allowed to use —
// meta, getProxy, open, isOpen, handles, connectionId — so callers cannot
// reach into transport-internal state like the callback table.
type Facade struct {
	conn *Connection
}

// NewFacade wraps conn. httpURL is converted to its ws(s) equivalent via
// DeriveURL before dialing.
func NewFacade(httpURL string, dial Dialer, logger *slog.Logger) (*Facade, error) {
	wsURL, err := DeriveURL(httpURL)
	if err != nil {
		return nil, err
	}
	return &Facade{conn: NewConnection(wsURL, dial, logger)}, nil
}

// Meta returns the proxy for the always-present "meta" target.
func (f *Facade) Meta() *rpc.Proxy { return f.conn.Meta() }

// GetProxy resolves idOrToken to its proxy.
func (f *Facade) GetProxy(idOrToken string) (*rpc.Proxy, error) { return f.conn.GetProxy(idOrToken) }

// Open idempotently ensures the underlying connection is open.
func (f *Facade) Open(ctx context.Context) error { return f.conn.Open(ctx) }

// IsOpen reports whether the connection is connecting or open.
func (f *Facade) IsOpen() bool { return f.conn.IsOpen() }

// Handles reports whether obj is a proxy registered on the connection.
func (f *Facade) Handles(obj any) bool { return f.conn.Handles(obj) }

// ConnectionID returns the id assigned during the last handshake.
func (f *Facade) ConnectionID() string { return f.conn.ConnectionID() }

// Stats exposes lightweight transport diagnostics.
func (f *Facade) Stats() Stats { return f.conn.Stats() }
