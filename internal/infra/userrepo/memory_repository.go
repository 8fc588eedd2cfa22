package userrepo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

// MemoryRepository keeps accounts and linked identities in memory for local runs and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	users      map[int64]auth.User
	byEmail    map[string]int64
	identities map[string]auth.Identity // provider:subject
	userSeq    int64
	identSeq   int64
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[int64]auth.User),
		byEmail:    make(map[string]int64),
		identities: make(map[string]auth.Identity),
	}
}

func (r *MemoryRepository) Create(_ context.Context, email, nickname, passwordHash string) (auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[email]; exists {
		return auth.User{}, auth.ErrEmailExists
	}
	r.userSeq++
	user := auth.User{
		ID:           r.userSeq,
		Email:        email,
		Nickname:     nickname,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	return user, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (auth.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return auth.User{}, false, nil
	}
	return r.users[id], true, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (auth.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	return user, ok, nil
}

func (r *MemoryRepository) FindIdentity(_ context.Context, provider, subject string) (auth.Identity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[provider+":"+subject]
	return identity, ok, nil
}

func (r *MemoryRepository) LinkIdentity(_ context.Context, identity auth.Identity) (auth.Identity, error) {
	if identity.UserID == 0 || identity.Provider == "" || identity.ProviderSubject == "" {
		return auth.Identity{}, errors.New("user, provider and subject are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identity.Provider + ":" + identity.ProviderSubject
	if existing, ok := r.identities[key]; ok {
		return existing, nil
	}
	r.identSeq++
	identity.ID = r.identSeq
	identity.LinkedAt = time.Now().UTC()
	r.identities[key] = identity
	return identity, nil
}

var _ auth.Repository = (*MemoryRepository)(nil)
