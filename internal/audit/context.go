package audit

import "context"

type actorKey struct{}

// WithActor returns a context carrying the ID of the user on whose behalf
// the work runs. Recorders read it when the caller passes no explicit user.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the user ID stored by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
