package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/models"
)

// UserRepo loads User rows. Unlike Client/Session, a user lookup by
// email has no workspace_id to scope by yet — scoping happens after
// the row resolves, by checking both the user's and its workspace's
// active status together.
type UserRepo struct{ db *DB }

func NewUserRepo(database *DB) *UserRepo { return &UserRepo{db: database} }

// UserAndWorkspaceByEmail resolves a magic-link login email to the
// (user_id, workspace_id) pair the session cookie will carry.
func (r *UserRepo) UserAndWorkspaceByEmail(ctx context.Context, email string) (uuid.UUID, uuid.UUID, error) {
	var u models.User
	err := FetchOrNotFound("user", func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT id, workspace_id FROM users WHERE email = $1`, email,
		).Scan(&u.ID, &u.WorkspaceID)
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return u.ID, u.WorkspaceID, nil
}

// UserAndWorkspaceActive reports whether both the user and its
// workspace are still active, the check every resolved session token
// re-applies on each request (spec.md §3's "authentication fails
// unless the workspace is active" invariant).
func (r *UserRepo) UserAndWorkspaceActive(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT u.is_active AND w.status = 'active'
		FROM users u JOIN workspaces w ON w.id = u.workspace_id
		WHERE u.id = $1 AND u.workspace_id = $2`,
		userID, workspaceID,
	).Scan(&active)
	if err != nil {
		return false, err
	}
	return active, nil
}
