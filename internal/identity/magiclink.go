package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pazpaz/backend/internal/apperr"
)

// MagicLinkStore persists the one token row issued per login attempt.
// A token is consumed at most once; Redeem is responsible for that
// atomically (spec.md §4.8 — a reused magic-link must fail).
type MagicLinkStore interface {
	Create(ctx context.Context, tokenID string, secretHash []byte, email string, expiresAt time.Time) error
	// Redeem atomically loads and deletes the row for tokenID, returning
	// apperr.KindNotFound if it was never issued or already consumed.
	Redeem(ctx context.Context, tokenID string) (secretHash []byte, email string, expiresAt time.Time, err error)
}

// UserByEmail resolves the (user_id, workspace_id) an email belongs
// to, once a magic-link token for that email has been verified.
type UserByEmail interface {
	UserAndWorkspaceByEmail(ctx context.Context, email string) (uuid.UUID, uuid.UUID, error)
}

// attemptCounter is the narrow fastkv.Client slice the brute-force
// lockout guard needs.
type attemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

const (
	magicLinkTTL          = 15 * time.Minute
	lockoutThreshold       = 100
	lockoutWindow          = 5 * time.Minute
	globalAttemptCounterKey = "identity:magiclink:failed_attempts"
)

// MagicLinkIssuer issues and verifies magic-link login tokens. The
// token shape — a public token_id for lookup paired with a bcrypt-
// hashed secret, joined by "." — follows
// internal/multitenancy.TenantManager's "ocx_<keyID>.<secret>" API key
// format: the id/secret split lets the store look a row up without
// ever retrieving anything secret-comparable, and bcrypt means a
// leaked row can't be turned back into a usable token.
type MagicLinkIssuer struct {
	store    MagicLinkStore
	users    UserByEmail
	attempts attemptCounter
	signer   *SessionSigner
}

func NewMagicLinkIssuer(store MagicLinkStore, users UserByEmail, attempts attemptCounter, signer *SessionSigner) *MagicLinkIssuer {
	return &MagicLinkIssuer{store: store, users: users, attempts: attempts, signer: signer}
}

// Issue creates a fresh token for email and returns the full token
// string to embed in the emailed link. Rate-limiting the call site
// (3/hour/IP, fail-closed) is the caller's responsibility via
// internal/ratelimit, per spec.md §4.8 — this type only owns the
// token's own lifecycle.
func (m *MagicLinkIssuer) Issue(ctx context.Context, email string) (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", apperr.Wrap(apperr.KindUnauthenticated, "token generation failed", err)
	}
	tokenID := hex.EncodeToString(idBytes)

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", apperr.Wrap(apperr.KindUnauthenticated, "token generation failed", err)
	}
	secret := hex.EncodeToString(secretBytes)

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnauthenticated, "token generation failed", err)
	}

	expiresAt := time.Now().Add(magicLinkTTL)
	if err := m.store.Create(ctx, tokenID, secretHash, email, expiresAt); err != nil {
		return "", apperr.Wrap(apperr.KindUnauthenticated, "token issuance failed", err)
	}

	return fmt.Sprintf("%s.%s", tokenID, secret), nil
}

var errTooManyFailures = errors.New("too many failed login attempts, try again later")

// Verify redeems a magic-link token and returns a signed session
// token for the resolved identity. Every failure — malformed token,
// unknown/expired/already-consumed token, secret mismatch, or the
// global lockout being tripped — reports as KindInvalidCredentials. A
// wrong token and an email with no account share the message "invalid
// login token", so the caller can't tell those two apart (the same
// anti-enumeration posture spec.md §4.1 applies to workspace-scoped
// fetches); an expired token and a tripped lockout carry their own
// messages.
func (m *MagicLinkIssuer) Verify(ctx context.Context, fullToken string) (string, error) {
	if locked, err := m.lockedOut(ctx); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidCredentials, "login verification unavailable", err)
	} else if locked {
		return "", apperr.Wrap(apperr.KindInvalidCredentials, errTooManyFailures.Error(), errTooManyFailures)
	}

	parts := strings.SplitN(fullToken, ".", 2)
	if len(parts) != 2 {
		m.recordFailure(ctx)
		return "", apperr.New(apperr.KindInvalidCredentials, "invalid login token")
	}
	tokenID, secret := parts[0], parts[1]

	secretHash, email, expiresAt, err := m.store.Redeem(ctx, tokenID)
	if err != nil {
		m.recordFailure(ctx)
		return "", apperr.New(apperr.KindInvalidCredentials, "invalid login token")
	}
	if time.Now().After(expiresAt) {
		m.recordFailure(ctx)
		return "", apperr.New(apperr.KindInvalidCredentials, "login token expired")
	}
	if err := bcrypt.CompareHashAndPassword(secretHash, []byte(secret)); err != nil {
		m.recordFailure(ctx)
		return "", apperr.New(apperr.KindInvalidCredentials, "invalid login token")
	}

	userID, workspaceID, err := m.users.UserAndWorkspaceByEmail(ctx, email)
	if err != nil {
		m.recordFailure(ctx)
		return "", apperr.New(apperr.KindInvalidCredentials, "invalid login token")
	}

	return m.signer.Issue(userID, workspaceID)
}

// lockedOut reports whether the global failed-attempt counter has
// tripped the 5-minute lockout. The counter is global, not per-email
// or per-IP, matching spec.md §4.8's "100 failed attempts across the
// deployment locks verification out for 5 minutes" brute-force guard.
func (m *MagicLinkIssuer) lockedOut(ctx context.Context) (bool, error) {
	raw, err := m.attempts.Get(ctx, globalAttemptCounterKey)
	if err != nil {
		return false, nil
	}
	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false, nil
	}
	return count >= lockoutThreshold, nil
}

func (m *MagicLinkIssuer) recordFailure(ctx context.Context) {
	count, err := m.attempts.Incr(ctx, globalAttemptCounterKey)
	if err != nil {
		return
	}
	if count == 1 {
		_ = m.attempts.Expire(ctx, globalAttemptCounterKey, lockoutWindow)
	}
}
