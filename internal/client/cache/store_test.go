package cache

import (
	"Homestead/internal/model"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path, writer string) *Store {
	t.Helper()
	s, err := Open(path, writer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(ids ...string) []*model.Notification {
	list := make([]*model.Notification, 0, len(ids))
	for _, id := range ids {
		list = append(list, &model.Notification{ID: id, AudienceType: model.AudienceCommon, Title: "title " + id})
	}
	return list
}

func TestStore_LoadEmpty(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"), "tab-a")

	entry, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"), "tab-a")

	v1, err := s.Save(ctx, sample("n-1"))
	require.NoError(t, err)
	v2, err := s.Save(ctx, sample("n-2", "n-1"))
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	entry, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, v2, entry.Version)
	assert.Equal(t, "tab-a", entry.Writer)
	require.Len(t, entry.Snapshot, 2)
	assert.Equal(t, "n-2", entry.Snapshot[0].ID)
	assert.False(t, entry.WrittenAt.IsZero())
}

func TestStore_SaveNilStoresEmptyList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cache.db"), "tab-a")

	_, err := s.Save(ctx, nil)
	require.NoError(t, err)

	entry, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.NotNil(t, entry.Snapshot)
	assert.Empty(t, entry.Snapshot)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	s, err := Open(path, "tab-a")
	require.NoError(t, err)
	_, err = s.Save(ctx, sample("n-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2 := openTestStore(t, path, "tab-b")
	entry, err := s2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1), entry.Version)
	assert.Equal(t, "tab-a", entry.Writer)
}

func TestStore_WatchSeesOnlySiblingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	tabA := openTestStore(t, path, "tab-a")
	tabB := openTestStore(t, path, "tab-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []*Entry
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tabA.Watch(ctx, 0, 10*time.Millisecond, func(e *Entry) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		})
	}()

	_, err := tabA.Save(ctx, sample("own"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = tabB.Save(ctx, sample("sibling"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "tab-b", seen[0].Writer)
	assert.Equal(t, "sibling", seen[0].Snapshot[0].ID)
	mu.Unlock()

	cancel()
	<-done
}

func TestStore_WatchSkipsVersionsBeforeSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	tabA := openTestStore(t, path, "tab-a")
	tabB := openTestStore(t, path, "tab-b")

	v, err := tabB.Save(context.Background(), sample("old"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	calls := 0
	err = tabA.Watch(ctx, v, 10*time.Millisecond, func(*Entry) { calls++ })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls)
}
