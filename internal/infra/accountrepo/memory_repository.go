package accountrepo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
)

type identityKey struct {
	provider string
	subject  string
}

type accountProviderKey struct {
	accountID int64
	provider  string
}

// MemoryRepository keeps accounts in process memory for local runs and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	accounts   map[int64]auth.Account
	byEmail    map[string]int64
	identities map[identityKey]auth.Identity
	byAccount  map[accountProviderKey]identityKey
	accountSeq int64
	linkSeq    int64
	now        func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:   make(map[int64]auth.Account),
		byEmail:    make(map[string]int64),
		identities: make(map[identityKey]auth.Identity),
		byAccount:  make(map[accountProviderKey]identityKey),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, email, displayName, passwordHash string) (auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[email]; taken {
		return auth.Account{}, auth.ErrEmailExists
	}
	r.accountSeq++
	account := auth.Account{
		ID:           r.accountSeq,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    r.now(),
	}
	r.accounts[account.ID] = account
	r.byEmail[email] = account.ID
	return account, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (auth.Account, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return auth.Account{}, false, nil
	}
	return r.accounts[id], true, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (auth.Account, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	return account, ok, nil
}

func (r *MemoryRepository) GetIdentity(_ context.Context, provider, providerSubject string) (auth.Identity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[identityKey{provider, providerSubject}]
	return identity, ok, nil
}

func (r *MemoryRepository) GetIdentityByAccount(_ context.Context, accountID int64, provider string) (auth.Identity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byAccount[accountProviderKey{accountID, provider}]
	if !ok {
		return auth.Identity{}, false, nil
	}
	return r.identities[key], true, nil
}

// UpsertIdentity keeps the stored refresh token when the update carries none.
func (r *MemoryRepository) UpsertIdentity(_ context.Context, identity auth.Identity) (auth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity.AccountID == 0 {
		return auth.Identity{}, errors.New("account id is required")
	}
	if _, ok := r.accounts[identity.AccountID]; !ok {
		return auth.Identity{}, errors.New("account does not exist")
	}
	key := identityKey{identity.Provider, identity.ProviderSubject}
	now := r.now()
	if existing, ok := r.identities[key]; ok {
		if identity.RefreshToken != "" {
			existing.RefreshToken = identity.RefreshToken
		}
		if identity.ProviderEmail != "" {
			existing.ProviderEmail = identity.ProviderEmail
		}
		existing.UpdatedAt = now
		r.identities[key] = existing
		return existing, nil
	}
	r.linkSeq++
	identity.ID = r.linkSeq
	identity.CreatedAt = now
	identity.UpdatedAt = now
	r.identities[key] = identity
	r.byAccount[accountProviderKey{identity.AccountID, identity.Provider}] = key
	return identity, nil
}

var _ auth.Repository = (*MemoryRepository)(nil)
