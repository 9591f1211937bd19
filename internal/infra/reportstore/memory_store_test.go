package reportstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

func TestMemoryStoreListsNewestFirstPerAccount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		report := diagnosis.Report{ID: uuid.New(), AccountID: 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		ids = append(ids, report.ID)
		require.NoError(t, store.Save(ctx, report, 0))
	}
	require.NoError(t, store.Save(ctx, diagnosis.Report{ID: uuid.New(), AccountID: 2, CreatedAt: base}, 0))

	list, err := store.ListByAccount(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids[2], list[0].ID)
	require.Equal(t, ids[1], list[1].ID)

	none, err := store.ListByAccount(ctx, 3, 5)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestMemoryStoreExpiresReports(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	report := diagnosis.Report{ID: uuid.New(), AccountID: 1, CreatedAt: now}
	require.NoError(t, store.Save(ctx, report, time.Minute))

	_, found, err := store.Get(ctx, report.ID)
	require.NoError(t, err)
	require.True(t, found)

	now = now.Add(2 * time.Minute)
	_, found, err = store.Get(ctx, report.ID)
	require.NoError(t, err)
	require.False(t, found)

	list, err := store.ListByAccount(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, list)
}
