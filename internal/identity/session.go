// Package identity resolves the per-request (user_id, workspace_id)
// that every workspace-scoped operation needs. spec.md §1 treats
// magic-link authentication as an external collaborator; this package
// owns the two things that stay inside the module boundary: signing
// and verifying the session token the magic-link verify step hands
// back to the browser, and the brute-force lockout around magic-link
// verification. The per-IP issuance rate limit is applied by the HTTP
// handler through internal/ratelimit.
//
// The signed-token shape (base64(claims) + "." + base64(HMAC-SHA256
// signature)) is carried over from the reference repo's
// internal/security/token_broker.go almost verbatim — that broker
// signs short-lived JIT tokens the same way a session cookie needs to
// be signed, just with workspace/user claims instead of agent/tenant
// claims.
package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
)

// Claims is the payload signed into a session token.
type Claims struct {
	UserID      uuid.UUID `json:"uid"`
	WorkspaceID uuid.UUID `json:"wid"`
	IssuedAt    int64     `json:"iat"`
	ExpiresAt   int64     `json:"exp"`
}

// SessionSigner signs and verifies the session token spec.md §6's HTTP
// conventions call a "signed session cookie". A single active secret
// plus an optional previous one gives the same rotation grace window
// internal/security/token_broker.go's HMAC rotation does.
type SessionSigner struct {
	secret     []byte
	prevSecret []byte
	ttl        time.Duration
}

func NewSessionSigner(secret, prevSecret string, ttl time.Duration) *SessionSigner {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	s := &SessionSigner{secret: []byte(secret), ttl: ttl}
	if prevSecret != "" {
		s.prevSecret = []byte(prevSecret)
	}
	return s
}

// Issue signs a fresh session token for (userID, workspaceID).
func (s *SessionSigner) Issue(userID, workspaceID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID, WorkspaceID: workspaceID,
		IssuedAt: now.Unix(), ExpiresAt: now.Add(s.ttl).Unix(),
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	sig := s.sign(s.secret, claimsJSON)
	return base64.RawURLEncoding.EncodeToString(claimsJSON) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks the token's signature and expiry and returns its
// claims. KindUnauthenticated is returned for every failure mode —
// spec.md §7 maps Unauthenticated to HTTP 401 without distinguishing
// "malformed" from "expired" from "bad signature" to the caller.
func (s *SessionSigner) Verify(token string) (Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return Claims{}, apperr.New(apperr.KindUnauthenticated, "malformed session token")
	}
	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, apperr.New(apperr.KindUnauthenticated, "malformed session token")
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, apperr.New(apperr.KindUnauthenticated, "malformed session token")
	}

	if !hmac.Equal(s.sign(s.secret, claimsJSON), sig) {
		valid := false
		if len(s.prevSecret) > 0 && hmac.Equal(s.sign(s.prevSecret, claimsJSON), sig) {
			valid = true
		}
		if !valid {
			return Claims{}, apperr.New(apperr.KindUnauthenticated, "invalid session signature")
		}
	}

	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return Claims{}, apperr.New(apperr.KindUnauthenticated, "malformed session claims")
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return Claims{}, apperr.New(apperr.KindUnauthenticated, "session expired")
	}
	return claims, nil
}

func (s *SessionSigner) sign(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// UserStore is the narrow slice of internal/db's user/workspace
// lookups the resolver needs, kept as an interface per spec.md §4.1's
// anti-oracle fetch-or-404 convention so tests can supply a fake.
type UserStore interface {
	UserAndWorkspaceActive(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error)
}

// Resolver turns a request's session token into the (user_id,
// workspace_id) identity every downstream operation needs, enforcing
// spec.md §3's "authentication fails unless the workspace is active"
// invariant and the User.IsActive analog.
type Resolver struct {
	signer *SessionSigner
	store  UserStore
}

func NewResolver(signer *SessionSigner, store UserStore) *Resolver {
	return &Resolver{signer: signer, store: store}
}

var ErrInactive = errors.New("user or workspace is not active")

// Resolve validates the token and the identity's active status in one
// call, so every HTTP handler gets a single Unauthenticated failure
// mode regardless of which check failed (spec.md §7).
func (r *Resolver) Resolve(ctx context.Context, token string) (uuid.UUID, uuid.UUID, error) {
	claims, err := r.signer.Verify(token)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	active, err := r.store.UserAndWorkspaceActive(ctx, claims.UserID, claims.WorkspaceID)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperr.Wrap(apperr.KindUnauthenticated, "identity lookup failed", err)
	}
	if !active {
		return uuid.Nil, uuid.Nil, apperr.New(apperr.KindUnauthenticated, "user or workspace is not active")
	}
	return claims.UserID, claims.WorkspaceID, nil
}
