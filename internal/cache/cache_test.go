package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escaperoom/internal/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func entry(userID string, levels int, timeMs int64) *model.LeaderboardEntry {
	return &model.LeaderboardEntry{
		UserID:      userID,
		DisplayName: userID,
		Progress:    model.Progress{CompletedLevels: levels, TotalTimeMs: timeMs},
	}
}

func TestLeaderboardCache_UpsertAndRead(t *testing.T) {
	ctx := context.Background()
	lb := NewLeaderboardCache(newTestRedis(t))
	cat := model.LeaderboardCategory{Difficulty: model.DifficultyMedium, TotalLevels: 10}

	prev, written, err := lb.Upsert(ctx, cat, entry("u1", 3, 5000), func(*model.LeaderboardEntry) bool { return true })
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.True(t, written)

	got, err := lb.Get(ctx, cat, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.CompletedLevels)

	missing, err := lb.Get(ctx, cat, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLeaderboardCache_UpsertKeepsStoredWhenRejected(t *testing.T) {
	ctx := context.Background()
	lb := NewLeaderboardCache(newTestRedis(t))
	cat := model.LeaderboardCategory{Difficulty: model.DifficultyEasy, TotalLevels: 5}

	_, _, err := lb.Upsert(ctx, cat, entry("u1", 4, 5000), nil)
	require.NoError(t, err)

	prev, written, err := lb.Upsert(ctx, cat, entry("u1", 1, 100), func(stored *model.LeaderboardEntry) bool {
		return stored.CompletedLevels < 1
	})
	require.NoError(t, err)
	assert.False(t, written)
	require.NotNil(t, prev)
	assert.Equal(t, 4, prev.CompletedLevels)

	got, err := lb.Get(ctx, cat, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.CompletedLevels)
}

func TestLeaderboardCache_AllIsPerCategory(t *testing.T) {
	ctx := context.Background()
	lb := NewLeaderboardCache(newTestRedis(t))
	easy5 := model.LeaderboardCategory{Difficulty: model.DifficultyEasy, TotalLevels: 5}
	easy10 := model.LeaderboardCategory{Difficulty: model.DifficultyEasy, TotalLevels: 10}
	always := func(*model.LeaderboardEntry) bool { return true }

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := lb.Upsert(ctx, easy5, entry(id, 1, 1), always)
		require.NoError(t, err)
	}
	_, _, err := lb.Upsert(ctx, easy10, entry("d", 1, 1), always)
	require.NoError(t, err)

	all, err := lb.All(ctx, easy5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	all, err = lb.All(ctx, easy10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "d", all[0].UserID)
}

func TestRoomEvents_PublishReachesSubscriber(t *testing.T) {
	ctx := context.Background()
	events := NewRoomEvents(newTestRedis(t))

	ch, cancel, err := events.Subscribe(ctx, "ABC123")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, events.Publish(ctx, "OTHER1"))
	require.NoError(t, events.Publish(ctx, "ABC123"))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestRoomEvents_CancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	events := NewRoomEvents(newTestRedis(t))

	ch, cancel, err := events.Subscribe(ctx, "ABC123")
	require.NoError(t, err)
	cancel()
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
