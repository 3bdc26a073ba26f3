package tokeninfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/iam/token"
	"github.com/Abraxas-365/custodia/pkg/kernel"
)

// In-memory repositories built on kernel.MemoryStore. Used by tests and by
// single-node deployments that accept losing tokens on restart.

// MemoryAccessTokenRepository implements token.AccessTokenRepository.
type MemoryAccessTokenRepository struct {
	store *kernel.MemoryStore[token.AccessToken]
}

// NewMemoryAccessTokenRepository creates an empty repository.
func NewMemoryAccessTokenRepository() *MemoryAccessTokenRepository {
	return &MemoryAccessTokenRepository{store: kernel.NewMemoryStore[token.AccessToken]()}
}

func (r *MemoryAccessTokenRepository) Save(ctx context.Context, t token.AccessToken) error {
	return r.store.Create(ctx, t.ID, t)
}

func (r *MemoryAccessTokenRepository) Find(ctx context.Context, id string) (*token.AccessToken, error) {
	t, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, notFound("access_token", id)
	}
	return t, nil
}

func (r *MemoryAccessTokenRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

func (r *MemoryAccessTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.Query(ctx, func(t token.AccessToken) bool {
		return now.After(t.ExpiresAt)
	})
	if err != nil {
		return 0, err
	}
	for _, t := range expired {
		if err := r.store.Delete(ctx, t.ID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// MemoryRefreshTokenRepository implements token.RefreshTokenRepository.
type MemoryRefreshTokenRepository struct {
	store *kernel.MemoryStore[token.RefreshToken]
}

// NewMemoryRefreshTokenRepository creates an empty repository.
func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{store: kernel.NewMemoryStore[token.RefreshToken]()}
}

func (r *MemoryRefreshTokenRepository) Save(ctx context.Context, t token.RefreshToken) error {
	return r.store.Create(ctx, t.ID, t)
}

func (r *MemoryRefreshTokenRepository) Find(ctx context.Context, id string) (*token.RefreshToken, error) {
	t, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, notFound("refresh_token", id)
	}
	return t, nil
}

func (r *MemoryRefreshTokenRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

func (r *MemoryRefreshTokenRepository) DeleteByAccessToken(ctx context.Context, accessTokenID string) error {
	linked, err := r.store.Query(ctx, func(t token.RefreshToken) bool {
		return t.AccessTokenID == accessTokenID
	})
	if err != nil {
		return err
	}
	for _, t := range linked {
		if err := r.store.Delete(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.Query(ctx, func(t token.RefreshToken) bool {
		return now.After(t.ExpiresAt)
	})
	if err != nil {
		return 0, err
	}
	for _, t := range expired {
		if err := r.store.Delete(ctx, t.ID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// MemoryAuthCodeRepository implements token.AuthCodeRepository.
type MemoryAuthCodeRepository struct {
	store *kernel.MemoryStore[token.AuthCode]
}

// NewMemoryAuthCodeRepository creates an empty repository.
func NewMemoryAuthCodeRepository() *MemoryAuthCodeRepository {
	return &MemoryAuthCodeRepository{store: kernel.NewMemoryStore[token.AuthCode]()}
}

func (r *MemoryAuthCodeRepository) Save(ctx context.Context, c token.AuthCode) error {
	return r.store.Create(ctx, c.ID, c)
}

func (r *MemoryAuthCodeRepository) Find(ctx context.Context, id string) (*token.AuthCode, error) {
	c, err := r.store.Find(ctx, id)
	if err != nil {
		return nil, notFound("auth_code", id)
	}
	return c, nil
}

func (r *MemoryAuthCodeRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

func (r *MemoryAuthCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := r.store.Query(ctx, func(c token.AuthCode) bool {
		return now.After(c.ExpiresAt)
	})
	if err != nil {
		return 0, err
	}
	for _, c := range expired {
		if err := r.store.Delete(ctx, c.ID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}
