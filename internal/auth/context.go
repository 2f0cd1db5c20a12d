package auth

import (
	"context"

	"ideaflow/backend/pkg/models"
)

type actorKey struct{}

// WithActor stores the authenticated actor on ctx.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by RequireAuth.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}
