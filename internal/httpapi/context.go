package httpapi

import (
	"context"

	"github.com/google/uuid"
)

func userIDFrom(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(ctxUserID).(uuid.UUID)
	return v
}

func workspaceIDFrom(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(ctxWorkspaceID).(uuid.UUID)
	return v
}
