// Package credentials resolves per-owner generation provider credentials.
// A missing or expired credential surfaces as domain.ErrCredentialExpired so
// the control surface can tell callers to reconnect rather than retry.
package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

// Records is the slice of the record store the credential lookup needs.
type Records interface {
	GetGenerationCredential(ctx context.Context, ownerID string) (db.GenerationCredential, error)
	UpsertGenerationCredential(ctx context.Context, arg db.UpsertCredentialParams) error
	DeleteGenerationCredential(ctx context.Context, ownerID string) error
}

type Store struct {
	records Records
	now     func() time.Time
}

func NewStore(records Records) *Store {
	return &Store{records: records, now: time.Now}
}

// Token returns the owner's provider token, or domain.ErrCredentialExpired
// when no live credential exists.
func (s *Store) Token(ctx context.Context, ownerID string) (string, error) {
	cred, err := s.records.GetGenerationCredential(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrCredentialExpired
		}
		return "", err
	}
	if cred.ExpiresAt != nil && !cred.ExpiresAt.After(s.now()) {
		return "", domain.ErrCredentialExpired
	}
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return "", domain.ErrCredentialExpired
	}
	return token, nil
}

// Grant stores or replaces the owner's token. A zero ttl grants a
// non-expiring credential.
func (s *Store) Grant(ctx context.Context, ownerID, token string, ttl time.Duration) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: token is required")
	}
	var expiresAt *time.Time
	if ttl > 0 {
		t := s.now().Add(ttl)
		expiresAt = &t
	}
	return s.records.UpsertGenerationCredential(ctx, db.UpsertCredentialParams{
		OwnerID:   ownerID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Revoke removes the owner's credential.
func (s *Store) Revoke(ctx context.Context, ownerID string) error {
	return s.records.DeleteGenerationCredential(ctx, ownerID)
}
