package server

import (
	"context"

	"agora/internal/auth"
)

type contextKey string

const contextKeyUser contextKey = "user"

func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func getUser(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*auth.User)
	return user, ok && user != nil
}
