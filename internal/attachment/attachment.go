// Package attachment is the blob-sink collaborator for session
// attachments: it stores and retrieves opaque bytes under an object
// key it mints itself, the same way the reference module's Supabase
// client wraps a single backing project behind a small Go type
// (internal/database/supabase.go in the reference module). This
// package never sees SOAP content or any other PHI field — callers
// hand it a filename and a reader, it hands back an object key, and
// metadata about what that key belongs to lives in the relational
// store instead (see AttachmentRepo in internal/db).
package attachment

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/pazpaz/backend/internal/apperr"
)

// Store uploads, downloads, and deletes attachment blobs in a single
// Supabase Storage bucket, keyed by workspace and session so one
// tenant's objects never collide with another's.
type Store struct {
	client *supabase.Client
	bucket string
}

// New builds a Store from the project URL and service-role key the
// reference module's NewSupabaseClient reads from the environment,
// except here they arrive through config rather than os.Getenv
// directly, so a missing value fails at startup instead of at the
// first upload.
func New(url, serviceKey, bucket string) (*Store, error) {
	if url == "" || serviceKey == "" {
		return nil, apperr.New(apperr.KindProviderNotConfigured, "attachment store requires a Supabase URL and service key")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// ObjectKey returns the path a new attachment for the given session
// would be stored under. It never depends on the caller-supplied file
// name beyond its extension, so directory traversal or collisions
// through a crafted name are impossible.
func ObjectKey(workspaceID, sessionID uuid.UUID, originalName string) string {
	return fmt.Sprintf("%s/%s/%s%s", workspaceID, sessionID, uuid.New(), extOf(originalName))
}

func extOf(name string) string {
	for i := len(name) - 1; i >= 0 && i > len(name)-10; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}

// Upload stores data under objectKey and returns it unchanged, so
// callers can chain ObjectKey -> Upload and persist the same value as
// the metadata row's object key.
func (s *Store) Upload(ctx context.Context, objectKey string, contentType string, data io.Reader) (string, error) {
	if _, err := s.client.Storage.UploadFile(s.bucket, objectKey, data); err != nil {
		return "", apperr.Wrap(apperr.KindRetrievalFailed, "attachment upload failed", err)
	}
	return objectKey, nil
}

// Download fetches the raw bytes behind objectKey.
func (s *Store) Download(ctx context.Context, objectKey string) ([]byte, error) {
	raw, err := s.client.Storage.DownloadFile(s.bucket, objectKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "attachment download failed", err)
	}
	return raw, nil
}

// Delete removes objectKey from the bucket. Deleting an object that
// was never uploaded (e.g. a metadata row surviving a partial create)
// is not an error — the end state is what the caller wanted.
func (s *Store) Delete(ctx context.Context, objectKey string) error {
	if _, err := s.client.Storage.RemoveFile(s.bucket, []string{objectKey}); err != nil {
		return apperr.Wrap(apperr.KindRetrievalFailed, "attachment delete failed", err)
	}
	return nil
}
