// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// wsEndpointTemplate expands to the same scheme/host/path as the input URL,
// with only the scheme swapped for its WebSocket equivalent. Using a
// uritemplate.Template (rather than hand-rolled string surgery) keeps the
// scheme-swap and path-preservation rules in one declarative place.
var wsEndpointTemplate = uritemplate.MustNew("{scheme}://{+host}{+path}")

// DeriveURL converts an input http(s) URL into its ws(s) equivalent, per
// spec.md §4.B: the scheme is swapped, the host is kept, and the path is
// presumed to name the API endpoint and is preserved as-is. Any query,
// fragment or user info in the input is not carried over.
func DeriveURL(httpURL string) (string, error) {
	u, err := url.Parse(httpURL)
	if err != nil {
		return "", fmt.Errorf("transport: invalid URL %q: %w", httpURL, err)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	case "ws", "wss":
		scheme = u.Scheme
	default:
		return "", fmt.Errorf("transport: unsupported URL scheme %q", u.Scheme)
	}

	values := uritemplate.Values{}
	values.Set("scheme", uritemplate.String(scheme))
	values.Set("host", uritemplate.String(u.Host))
	values.Set("path", uritemplate.String(u.EscapedPath()))

	expanded, err := wsEndpointTemplate.Expand(values)
	if err != nil {
		return "", fmt.Errorf("transport: deriving websocket URL: %w", err)
	}
	return expanded, nil
}

// IsLoopbackAddr reports whether addr (host or host:port) names a loopback
// interface, used to relax origin/TLS checks for local development
// connections.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}
