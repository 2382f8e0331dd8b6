// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import "context"

type actorKey struct{}

// WithActor records the user id behind an operation for the audit log
func WithActor(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the acting user id, 0 for the system
func ActorFrom(ctx context.Context) int {
	id, _ := ctx.Value(actorKey{}).(int)
	return id
}
