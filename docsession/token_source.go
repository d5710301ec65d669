// Copyright 2025 The docsync Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package docsession

import "golang.org/x/oauth2"

// StaticToken wraps a fixed author bearer token as an oauth2.TokenSource,
// for deployments that obtain it out of band (e.g. from a parent page) and
// have no refresh flow of their own.
func StaticToken(bearer string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer})
}
