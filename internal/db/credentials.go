package db

import (
	"context"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

// GenerationCredential is a per-owner bearer token for the generation
// provider. A nil ExpiresAt means the credential does not expire.
type GenerationCredential struct {
	OwnerID   string
	Token     string
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

func (q *Queries) GetGenerationCredential(ctx context.Context, ownerID string) (GenerationCredential, error) {
	row := q.db.QueryRow(ctx, `
SELECT owner_id, token, expires_at, updated_at
FROM generation_credentials
WHERE owner_id = $1
`, ownerID)
	var cred GenerationCredential
	err := row.Scan(&cred.OwnerID, &cred.Token, &cred.ExpiresAt, &cred.UpdatedAt)
	if isNoRows(err) {
		return GenerationCredential{}, domain.ErrNotFound
	}
	return cred, err
}

type UpsertCredentialParams struct {
	OwnerID   string
	Token     string
	ExpiresAt *time.Time
}

func (q *Queries) UpsertGenerationCredential(ctx context.Context, arg UpsertCredentialParams) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO generation_credentials (owner_id, token, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (owner_id)
DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at, updated_at = now()
`, arg.OwnerID, arg.Token, arg.ExpiresAt)
	return err
}

func (q *Queries) DeleteGenerationCredential(ctx context.Context, ownerID string) error {
	_, err := q.db.Exec(ctx, `
DELETE FROM generation_credentials
WHERE owner_id = $1
`, ownerID)
	return err
}
