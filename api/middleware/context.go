package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

type contextKey string

const (
	ctxActorID   contextKey = "actor_id"
	ctxActorKind contextKey = "actor_kind"
)

// WithActor injects the authenticated party into the context.
func WithActor(ctx context.Context, id uuid.UUID, kind enums.WalletOwnerKind) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, id)
	return context.WithValue(ctx, ctxActorKind, kind)
}

// ActorIDFromContext returns the authenticated actor id, or uuid.Nil.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// ActorKindFromContext returns the authenticated actor kind, or the
// empty kind when the request is unauthenticated.
func ActorKindFromContext(ctx context.Context) enums.WalletOwnerKind {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxActorKind).(enums.WalletOwnerKind); ok {
		return v
	}
	return ""
}
