package accountrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
)

func TestMemoryRepositoryAccounts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, "a@example.com", "Ann", "hash")
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	_, err = repo.Create(ctx, "a@example.com", "Other", "hash")
	require.ErrorIs(t, err, auth.ErrEmailExists)

	byEmail, found, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created, byEmail)

	_, found, err = repo.GetByID(ctx, 99)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryRepositoryIdentityUpsertKeepsToken(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account, err := repo.Create(ctx, "a@example.com", "Ann", "hash")
	require.NoError(t, err)

	first, err := repo.UpsertIdentity(ctx, auth.Identity{AccountID: account.ID, Provider: "google", ProviderSubject: "sub", RefreshToken: "sealed"})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := repo.UpsertIdentity(ctx, auth.Identity{AccountID: account.ID, Provider: "google", ProviderSubject: "sub", ProviderEmail: "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "sealed", second.RefreshToken)
	require.Equal(t, "a@example.com", second.ProviderEmail)

	byAccount, found, err := repo.GetIdentityByAccount(ctx, account.ID, "google")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, second, byAccount)

	_, err = repo.UpsertIdentity(ctx, auth.Identity{AccountID: 42, Provider: "google", ProviderSubject: "x"})
	require.Error(t, err)
}
