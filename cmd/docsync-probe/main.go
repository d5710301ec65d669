// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command docsync-probe opens a transport against a given session endpoint,
// performs the handshake, and prints the negotiated connection id. It is a
// manual verification aid, not part of the synchronization core's public
// API surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/inkwell/docsync/transport"
)

func main() {
	url := flag.String("url", "", "session endpoint, e.g. https://docs.example.com/session/abc123")
	timeout := flag.Duration("timeout", 10*time.Second, "handshake timeout")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: docsync-probe -url https://host/path")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	facade, err := transport.NewFacade(*url, transport.DialWebsocket(nil, nil), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docsync-probe: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := facade.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docsync-probe: open failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("connectionId: %s\n", facade.ConnectionID())
	stats := facade.Stats()
	fmt.Printf("stats: inFlight=%d orphanResponse=%d reconnects=%d\n", stats.InFlight, stats.OrphanResponse, stats.Reconnects)
}
