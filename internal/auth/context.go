// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import "context"

type contextKey string

const identityContextKey contextKey = "identity"

// Method names how a request was authenticated
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
)

type principal struct {
	identity *Identity
	method   Method
}

func WithIdentity(ctx context.Context, identity *Identity, method Method) context.Context {
	return context.WithValue(ctx, identityContextKey, principal{identity: identity, method: method})
}

// IdentityFrom returns the identity stored by WithIdentity. API key requests
// carry no identity.
func IdentityFrom(ctx context.Context) (*Identity, Method, bool) {
	p, ok := ctx.Value(identityContextKey).(principal)
	if !ok {
		return nil, "", false
	}
	return p.identity, p.method, true
}
