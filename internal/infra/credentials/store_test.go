package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

type stubRecords struct {
	mu    sync.Mutex
	creds map[string]db.GenerationCredential
}

func newStubRecords() *stubRecords {
	return &stubRecords{creds: map[string]db.GenerationCredential{}}
}

func (s *stubRecords) GetGenerationCredential(ctx context.Context, ownerID string) (db.GenerationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[ownerID]
	if !ok {
		return db.GenerationCredential{}, domain.ErrNotFound
	}
	return cred, nil
}

func (s *stubRecords) UpsertGenerationCredential(ctx context.Context, arg db.UpsertCredentialParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[arg.OwnerID] = db.GenerationCredential{
		OwnerID:   arg.OwnerID,
		Token:     arg.Token,
		ExpiresAt: arg.ExpiresAt,
	}
	return nil
}

func (s *stubRecords) DeleteGenerationCredential(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, ownerID)
	return nil
}

func TestTokenMissingCredential(t *testing.T) {
	store := NewStore(newStubRecords())
	_, err := store.Token(context.Background(), "owner-1")
	if !errors.Is(err, domain.ErrCredentialExpired) {
		t.Fatalf("err = %v, want ErrCredentialExpired", err)
	}
}

func TestTokenExpiredCredential(t *testing.T) {
	records := newStubRecords()
	store := NewStore(records)
	if err := store.Grant(context.Background(), "owner-1", "tok-abc", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := store.Token(context.Background(), "owner-1")
	if !errors.Is(err, domain.ErrCredentialExpired) {
		t.Fatalf("err = %v, want ErrCredentialExpired", err)
	}
}

func TestTokenLiveCredential(t *testing.T) {
	records := newStubRecords()
	store := NewStore(records)
	if err := store.Grant(context.Background(), "owner-1", "  tok-abc  ", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	token, err := store.Token(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "tok-abc" {
		t.Fatalf("token = %q, want tok-abc", token)
	}
}

func TestTokenNonExpiringCredential(t *testing.T) {
	records := newStubRecords()
	store := NewStore(records)
	if err := store.Grant(context.Background(), "owner-1", "tok-abc", 0); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := store.Token(context.Background(), "owner-1"); err != nil {
		t.Fatalf("token: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	records := newStubRecords()
	store := NewStore(records)
	if err := store.Grant(context.Background(), "owner-1", "tok-abc", time.Hour); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := store.Revoke(context.Background(), "owner-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.Token(context.Background(), "owner-1"); !errors.Is(err, domain.ErrCredentialExpired) {
		t.Fatalf("err = %v, want ErrCredentialExpired", err)
	}
}

func TestGrantRequiresToken(t *testing.T) {
	store := NewStore(newStubRecords())
	if err := store.Grant(context.Background(), "owner-1", "   ", time.Hour); err == nil {
		t.Fatalf("expected error for blank token")
	}
}
