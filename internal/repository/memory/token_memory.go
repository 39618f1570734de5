// Package memory holds mutex-guarded implementations of the repository
// interfaces. They back the service and handler tests and local runs without
// Postgres (STORAGE_DRIVER=memory).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

type tokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.AccessToken
}

func NewTokenRepository() repository.TokenRepository {
	return &tokenRepository{tokens: make(map[string]*domain.AccessToken)}
}

func (r *tokenRepository) Create(_ context.Context, token *domain.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.Token]; exists {
		return domain.ErrTokenCollision
	}
	cp := *token
	r.tokens[token.Token] = &cp
	return nil
}

func (r *tokenRepository) GetByToken(_ context.Context, token string) (*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	cp := *tok
	return &cp, nil
}

func (r *tokenRepository) ListByEntity(_ context.Context, ref domain.EntityRef) ([]*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.AccessToken
	for _, tok := range r.tokens {
		if tok.Entity == ref {
			cp := *tok
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Consume holds the lock across check and mutation, the in-process
// equivalent of the conditional UPDATE.
func (r *tokenRepository) Consume(_ context.Context, token string, now time.Time, ipAddress, userAgent string) (*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	if err := tok.Check(now); err != nil {
		return nil, err
	}
	tok.ApplyAccess(now, ipAddress, userAgent)
	cp := *tok
	return &cp, nil
}

func (r *tokenRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token]; !ok {
		return domain.ErrInvalidToken
	}
	delete(r.tokens, token)
	return nil
}

func (r *tokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, tok := range r.tokens {
		if tok.Kind == domain.TokenKindTemporary && tok.ExpiresAt != nil && !now.Before(*tok.ExpiresAt) {
			delete(r.tokens, key)
			n++
		}
	}
	return n, nil
}
