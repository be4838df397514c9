package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

const SystemActorID = "system"

// Actor is the caller on whose behalf a mutation runs. Background workers
// act as the system actor.
type Actor struct {
	UserID   string
	IsSystem bool
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func WithSystemActor(ctx context.Context) context.Context {
	return WithActor(ctx, Actor{UserID: SystemActorID, IsSystem: true})
}

// ActorFrom returns the actor stored by WithActor, falling back to the
// x-user-id gRPC metadata header.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a, true
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get("x-user-id"); len(val) > 0 && val[0] != "" {
			return Actor{UserID: val[0]}, true
		}
	}
	return Actor{}, false
}

// ActorID returns the id recorded in audit columns; nil when unknown.
func ActorID(ctx context.Context) *string {
	a, ok := ActorFrom(ctx)
	if !ok || a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}
