package webauthninfra

import (
	"context"
	"sort"
	"time"

	"github.com/Abraxas-365/custodia/pkg/iam/webauthn"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// In-memory repositories built on kernel.MemoryStore. Used by tests and by
// single-node deployments.

// MemoryChallengeRepository implements webauthn.ChallengeRepository.
type MemoryChallengeRepository struct {
	store *kernel.MemoryStore[webauthn.Challenge]
}

// NewMemoryChallengeRepository creates an empty repository.
func NewMemoryChallengeRepository() *MemoryChallengeRepository {
	return &MemoryChallengeRepository{store: kernel.NewMemoryStore[webauthn.Challenge]()}
}

func (r *MemoryChallengeRepository) Save(ctx context.Context, ch webauthn.Challenge) error {
	return r.store.Create(ctx, ch.Value, ch)
}

func (r *MemoryChallengeRepository) FindByValue(ctx context.Context, value string) (*webauthn.Challenge, error) {
	ch, err := r.store.Find(ctx, value)
	if err != nil {
		return nil, notFound("challenge", value)
	}
	return ch, nil
}

func (r *MemoryChallengeRepository) Delete(ctx context.Context, value string) error {
	return r.store.Delete(ctx, value)
}

func (r *MemoryChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.Query(ctx, func(ch webauthn.Challenge) bool {
		return ch.IsExpired(now)
	})
	if err != nil {
		return 0, err
	}
	for _, ch := range expired {
		if err := r.store.Delete(ctx, ch.Value); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// MemoryCredentialRepository implements webauthn.CredentialRepository.
type MemoryCredentialRepository struct {
	store *kernel.MemoryStore[webauthn.Credential]
}

// NewMemoryCredentialRepository creates an empty repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{store: kernel.NewMemoryStore[webauthn.Credential]()}
}

func (r *MemoryCredentialRepository) Save(ctx context.Context, cr webauthn.Credential) error {
	return r.store.Create(ctx, cr.ID, cr)
}

func (r *MemoryCredentialRepository) FindByID(ctx context.Context, id string) (*webauthn.Credential, error) {
	cr, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, notFound("credential", id)
	}
	return cr, nil
}

func (r *MemoryCredentialRepository) FindByUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]*webauthn.Credential, error) {
	matches, err := r.store.Query(ctx, func(cr webauthn.Credential) bool {
		return cr.UserID == userID && cr.TenantID == tenantID
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	creds := make([]*webauthn.Credential, 0, len(matches))
	for i := range matches {
		creds = append(creds, &matches[i])
	}
	return creds, nil
}
