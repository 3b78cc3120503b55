package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSignerIssueVerifyRoundTrip(t *testing.T) {
	signer := NewSessionSigner("secret-a", "", time.Hour)
	userID, workspaceID := uuid.New(), uuid.New()

	token, err := signer.Issue(userID, workspaceID)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, workspaceID, claims.WorkspaceID)
}

func TestSessionSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSessionSigner("secret-a", "", time.Hour)
	token, err := signer.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = signer.Verify(token + "x")
	assert.Error(t, err)
}

func TestSessionSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSessionSigner("secret-a", "", -time.Hour)
	token, err := signer.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.Error(t, err)
}

func TestSessionSignerAcceptsPreviousSecretDuringRotation(t *testing.T) {
	old := NewSessionSigner("secret-old", "", time.Hour)
	token, err := old.Issue(uuid.New(), uuid.New())
	require.NoError(t, err)

	rotated := NewSessionSigner("secret-new", "secret-old", time.Hour)
	_, err = rotated.Verify(token)
	assert.NoError(t, err)
}

type fakeMagicLinkStore struct {
	rows map[string]struct {
		secretHash []byte
		email      string
		expiresAt  time.Time
	}
}

func newFakeMagicLinkStore() *fakeMagicLinkStore {
	return &fakeMagicLinkStore{rows: map[string]struct {
		secretHash []byte
		email      string
		expiresAt  time.Time
	}{}}
}

func (f *fakeMagicLinkStore) Create(ctx context.Context, tokenID string, secretHash []byte, email string, expiresAt time.Time) error {
	f.rows[tokenID] = struct {
		secretHash []byte
		email      string
		expiresAt  time.Time
	}{secretHash, email, expiresAt}
	return nil
}

func (f *fakeMagicLinkStore) Redeem(ctx context.Context, tokenID string) ([]byte, string, time.Time, error) {
	row, ok := f.rows[tokenID]
	if !ok {
		return nil, "", time.Time{}, assert.AnError
	}
	delete(f.rows, tokenID)
	return row.secretHash, row.email, row.expiresAt, nil
}

type fakeUserByEmail struct {
	userID      uuid.UUID
	workspaceID uuid.UUID
}

func (f *fakeUserByEmail) UserAndWorkspaceByEmail(ctx context.Context, email string) (uuid.UUID, uuid.UUID, error) {
	return f.userID, f.workspaceID, nil
}

type fakeAttemptCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newFakeAttemptCounter() *fakeAttemptCounter {
	return &fakeAttemptCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeAttemptCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.ttls[key] = ttl
	return nil
}

func (f *fakeAttemptCounter) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.counts[key]
	if !ok {
		return nil, assert.AnError
	}
	return []byte(itoa(v)), nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func TestMagicLinkIssuerIssueAndVerifyRoundTrip(t *testing.T) {
	store := newFakeMagicLinkStore()
	users := &fakeUserByEmail{userID: uuid.New(), workspaceID: uuid.New()}
	attempts := newFakeAttemptCounter()
	signer := NewSessionSigner("secret", "", time.Hour)
	issuer := NewMagicLinkIssuer(store, users, attempts, signer)

	token, err := issuer.Issue(context.Background(), "practitioner@example.com")
	require.NoError(t, err)

	sessionToken, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)

	claims, err := signer.Verify(sessionToken)
	require.NoError(t, err)
	assert.Equal(t, users.userID, claims.UserID)
	assert.Equal(t, users.workspaceID, claims.WorkspaceID)
}

func TestMagicLinkIssuerRejectsReusedToken(t *testing.T) {
	store := newFakeMagicLinkStore()
	users := &fakeUserByEmail{userID: uuid.New(), workspaceID: uuid.New()}
	attempts := newFakeAttemptCounter()
	signer := NewSessionSigner("secret", "", time.Hour)
	issuer := NewMagicLinkIssuer(store, users, attempts, signer)

	token, err := issuer.Issue(context.Background(), "practitioner@example.com")
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), token)
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), token)
	assert.Error(t, err)
}

func TestMagicLinkIssuerLocksOutAfterThreshold(t *testing.T) {
	store := newFakeMagicLinkStore()
	users := &fakeUserByEmail{userID: uuid.New(), workspaceID: uuid.New()}
	attempts := newFakeAttemptCounter()
	signer := NewSessionSigner("secret", "", time.Hour)
	issuer := NewMagicLinkIssuer(store, users, attempts, signer)

	for i := 0; i < lockoutThreshold; i++ {
		_, _ = issuer.Verify(context.Background(), "bad.token")
	}

	validToken, err := issuer.Issue(context.Background(), "practitioner@example.com")
	require.NoError(t, err)

	_, err = issuer.Verify(context.Background(), validToken)
	assert.ErrorContains(t, err, "too many failed")
}
