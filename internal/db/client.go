package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pazpaz/backend/internal/cryptoenc"
	"github.com/pazpaz/backend/internal/models"
)

// ClientRepo persists Client rows, transparently encrypting and
// decrypting the PHI fields spec.md §4.2 names through the field
// codec. Every lookup is workspace-scoped.
type ClientRepo struct {
	db    *DB
	codec *cryptoenc.Codec
}

func NewClientRepo(database *DB, codec *cryptoenc.Codec) *ClientRepo {
	return &ClientRepo{db: database, codec: codec}
}

func (r *ClientRepo) encrypt(plain string) (string, error) { return r.codec.Encrypt(plain) }

func (r *ClientRepo) decrypt(cipher string) (string, error) { return r.codec.Decrypt(cipher) }

func (r *ClientRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (models.Client, error) {
	var c models.Client
	var email, phone, address, medHistory, emergency, notes string
	var dob pq.NullTime
	var tags pq.StringArray

	err := FetchOrNotFound("client", func() error {
		return r.db.QueryRowContext(ctx, `
			SELECT id, workspace_id, first_name, last_name, email, phone, address,
			       medical_history, emergency_contact, notes, date_of_birth,
			       consent_obtained, is_active, tags, created_at, updated_at
			FROM clients WHERE id = $1 AND workspace_id = $2`, id, workspaceID,
		).Scan(&c.ID, &c.WorkspaceID, &c.FirstName, &c.LastName, &email, &phone, &address,
			&medHistory, &emergency, &notes, &dob, &c.ConsentObtained, &c.IsActive,
			&tags, &c.CreatedAt, &c.UpdatedAt)
	})
	if err != nil {
		return c, err
	}

	if c.Email, err = r.decrypt(email); err != nil {
		return c, err
	}
	if c.Phone, err = r.decrypt(phone); err != nil {
		return c, err
	}
	if c.Address, err = r.decrypt(address); err != nil {
		return c, err
	}
	if c.MedicalHistory, err = r.decrypt(medHistory); err != nil {
		return c, err
	}
	if c.EmergencyContact, err = r.decrypt(emergency); err != nil {
		return c, err
	}
	if c.Notes, err = r.decrypt(notes); err != nil {
		return c, err
	}
	if dob.Valid {
		t := dob.Time
		c.DateOfBirth = &t
	}
	c.Tags = []string(tags)
	return c, nil
}

// GetBatch loads every requested client id in one round trip, decrypting
// PHI fields for each row. Missing ids are silently omitted from the
// result (spec.md §4.5 step 6 hydrates whatever still exists; a client
// deleted between retrieval and hydration just drops from context).
func (r *ClientRepo) GetBatch(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Client, error) {
	out := make(map[uuid.UUID]models.Client, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, first_name, last_name, email, phone, address,
		       medical_history, emergency_contact, notes, date_of_birth,
		       consent_obtained, is_active, tags, created_at, updated_at
		FROM clients WHERE workspace_id = $1 AND id = ANY($2)`,
		workspaceID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Client
		var email, phone, address, medHistory, emergency, notes string
		var dob pq.NullTime
		var tags pq.StringArray

		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.FirstName, &c.LastName, &email, &phone, &address,
			&medHistory, &emergency, &notes, &dob, &c.ConsentObtained, &c.IsActive,
			&tags, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if c.Email, err = r.decrypt(email); err != nil {
			return nil, err
		}
		if c.Phone, err = r.decrypt(phone); err != nil {
			return nil, err
		}
		if c.Address, err = r.decrypt(address); err != nil {
			return nil, err
		}
		if c.MedicalHistory, err = r.decrypt(medHistory); err != nil {
			return nil, err
		}
		if c.EmergencyContact, err = r.decrypt(emergency); err != nil {
			return nil, err
		}
		if c.Notes, err = r.decrypt(notes); err != nil {
			return nil, err
		}
		if dob.Valid {
			t := dob.Time
			c.DateOfBirth = &t
		}
		c.Tags = []string(tags)
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (r *ClientRepo) Create(ctx context.Context, c models.Client) (models.Client, error) {
	email, err := r.encrypt(c.Email)
	if err != nil {
		return c, err
	}
	phone, err := r.encrypt(c.Phone)
	if err != nil {
		return c, err
	}
	address, err := r.encrypt(c.Address)
	if err != nil {
		return c, err
	}
	medHistory, err := r.encrypt(c.MedicalHistory)
	if err != nil {
		return c, err
	}
	emergency, err := r.encrypt(c.EmergencyContact)
	if err != nil {
		return c, err
	}
	notes, err := r.encrypt(c.Notes)
	if err != nil {
		return c, err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO clients (id, workspace_id, first_name, last_name, email, phone, address,
		                      medical_history, emergency_contact, notes, date_of_birth,
		                      consent_obtained, is_active, tags)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		c.ID, c.WorkspaceID, c.FirstName, c.LastName, email, phone, address,
		medHistory, emergency, notes, c.DateOfBirth, c.ConsentObtained, true, pq.Array(c.Tags),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	c.IsActive = true
	return c, err
}

// MarshalMetadata is a small helper other repos share for the
// JSON/JSONB metadata columns (provider metadata, audit metadata).
func MarshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func UnmarshalMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// unmarshalStringMap is UnmarshalMetadata's map[string]string analog,
// used for the decrypted-free, string-only provider-config columns
// (Workspace.PaymentProviderConfig) rather than the general audit/
// provider-metadata json blobs above.
func unmarshalStringMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
