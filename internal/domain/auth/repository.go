package auth

import "context"

// Repository abstracts account and identity persistence.
type Repository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, bool, error)
	GetByID(ctx context.Context, id int64) (Account, bool, error)
	GetIdentity(ctx context.Context, provider, providerSubject string) (Identity, bool, error)
	GetIdentityByAccount(ctx context.Context, accountID int64, provider string) (Identity, bool, error)
	UpsertIdentity(ctx context.Context, identity Identity) (Identity, error)
}
