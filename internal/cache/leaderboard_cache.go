package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"escaperoom/internal/model"
)

// ErrConflict means the entry changed between read and write too many times.
var ErrConflict = errors.New("leaderboard entry changed concurrently")

const maxUpsertRetries = 5

// LeaderboardCache stores one hash per (difficulty, totalLevels) category,
// holding one JSON entry per external user id.
type LeaderboardCache interface {
	Get(ctx context.Context, cat model.LeaderboardCategory, userID string) (*model.LeaderboardEntry, error)
	All(ctx context.Context, cat model.LeaderboardCategory) ([]model.LeaderboardEntry, error)
	// Upsert writes entry when there is no stored entry or replace(stored)
	// is true. It returns the entry stored before the call, if any.
	Upsert(ctx context.Context, cat model.LeaderboardCategory, entry *model.LeaderboardEntry,
		replace func(stored *model.LeaderboardEntry) bool) (prev *model.LeaderboardEntry, written bool, err error)
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{
		client: client,
	}
}

func (c *leaderboardCache) key(cat model.LeaderboardCategory) string {
	return fmt.Sprintf("leaderboard:%s", cat)
}

func (c *leaderboardCache) Get(ctx context.Context, cat model.LeaderboardCategory, userID string) (*model.LeaderboardEntry, error) {
	return getEntry(ctx, c.client, c.key(cat), userID)
}

type hgetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func getEntry(ctx context.Context, c hgetter, key, userID string) (*model.LeaderboardEntry, error) {
	data, err := c.HGet(ctx, key, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry model.LeaderboardEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard entry %s: %w", userID, err)
	}
	return &entry, nil
}

func (c *leaderboardCache) All(ctx context.Context, cat model.LeaderboardCategory) ([]model.LeaderboardEntry, error) {
	raw, err := c.client.HGetAll(ctx, c.key(cat)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, len(raw))
	for userID, data := range raw {
		var entry model.LeaderboardEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode leaderboard entry %s: %w", userID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *leaderboardCache) Upsert(ctx context.Context, cat model.LeaderboardCategory, entry *model.LeaderboardEntry,
	replace func(stored *model.LeaderboardEntry) bool) (*model.LeaderboardEntry, bool, error) {

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, false, err
	}
	key := c.key(cat)

	var prev *model.LeaderboardEntry
	var written bool
	txf := func(tx *redis.Tx) error {
		stored, err := getEntry(ctx, tx, key, entry.UserID)
		if err != nil {
			return err
		}
		prev, written = stored, false
		if stored != nil && !replace(stored) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, entry.UserID, data)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	for i := 0; i < maxUpsertRetries; i++ {
		err := c.client.Watch(ctx, txf, key)
		if err == nil {
			return prev, written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}
	return nil, false, ErrConflict
}
