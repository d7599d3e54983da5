package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxProjectID
	ctxRole
)

var errNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, userID, projectID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxProjectID, projectID)
	return context.WithValue(ctx, ctxRole, role)
}

func UserID(ctx context.Context) (string, error)    { return fromCtx(ctx, ctxUserID) }
func ProjectID(ctx context.Context) (string, error) { return fromCtx(ctx, ctxProjectID) }
func Role(ctx context.Context) (string, error)      { return fromCtx(ctx, ctxRole) }

func fromCtx(ctx context.Context, k ctxKey) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", errNoIdentity
}
