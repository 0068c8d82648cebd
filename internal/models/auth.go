package models

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims mirrors the backend access token; the subject is the username.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// Caller identifies who is rendering or editing the journal.
type Caller struct {
	Username string
	Token    string
}

type callerKey struct{}

// WithCaller stores the caller on a context so outbound backend calls can forward credentials.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
