package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

// GetUserIdFromContext returns the acting user; uuid.Nil is treated as absent.
func GetUserIdFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := appctx.Get[uuid.UUID](ctx, ContextKeyUserId)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetUserIdInContext(ctx context.Context, userId uuid.UUID) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
