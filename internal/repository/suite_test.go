package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escaperoom/internal/model"
)

func ptr[T any](v T) *T { return &v }

func newRoom(code string) *model.Room {
	return &model.Room{
		Code:      code,
		Mode:      model.ModeMultiplayer,
		AdminName: "host",
		Status:    model.RoomWaiting,
		Players:   map[string]*model.Player{},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// runRoomRepoSuite exercises behaviour every RoomRepo implementation shares.
func runRoomRepoSuite(t *testing.T, repo RoomRepo) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("CreateAndGet", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newRoom("AAAAAA")))

		room, err := repo.GetByCode(ctx, "AAAAAA")
		require.NoError(t, err)
		require.NotNil(t, room)
		assert.Equal(t, model.RoomWaiting, room.Status)
		assert.Equal(t, "host", room.AdminName)
		assert.NotNil(t, room.Players)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		err := repo.Create(ctx, newRoom("AAAAAA"))
		assert.ErrorIs(t, err, ErrDuplicateCode)
	})

	t.Run("GetMissing", func(t *testing.T) {
		room, err := repo.GetByCode(ctx, "ZZZZZZ")
		assert.NoError(t, err)
		assert.Nil(t, room)
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := repo.Exists(ctx, "AAAAAA")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Exists(ctx, "ZZZZZZ")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutPlayer", func(t *testing.T) {
		p := &model.Player{ID: "p_1", Identifier: "alice", Name: "Alice", Progress: model.Progress{JoinedAt: now}}
		require.NoError(t, repo.PutPlayer(ctx, "AAAAAA", p))

		room, err := repo.GetByCode(ctx, "AAAAAA")
		require.NoError(t, err)
		require.Contains(t, room.Players, "p_1")
		assert.Equal(t, "Alice", room.Players["p_1"].Name)
		assert.True(t, now.Equal(room.Players["p_1"].JoinedAt))

		assert.ErrorIs(t, repo.PutPlayer(ctx, "ZZZZZZ", p), ErrNotFound)
	})

	t.Run("UpdateRoomFields", func(t *testing.T) {
		status := model.RoomPlaying
		err := repo.Update(ctx, "AAAAAA", Patch{
			Status:      &status,
			Difficulty:  ptr(model.DifficultyHard),
			TotalLevels: ptr(3),
			DurationMs:  ptr(int64(60000)),
			StartTime:   &now,
			Questions: []model.Question{
				{Level: 1, Kind: model.PuzzleRiddle, Prompt: "q1", Answers: model.AnswerSet{"a", "b"}},
			},
		})
		require.NoError(t, err)

		room, err := repo.GetByCode(ctx, "AAAAAA")
		require.NoError(t, err)
		assert.Equal(t, model.RoomPlaying, room.Status)
		assert.Equal(t, model.DifficultyHard, room.Difficulty)
		assert.Equal(t, 3, room.TotalLevels)
		assert.Equal(t, int64(60000), room.DurationMs)
		require.NotNil(t, room.StartTime)
		assert.True(t, now.Equal(*room.StartTime))
		require.Len(t, room.Questions, 1)
		assert.Equal(t, model.AnswerSet{"a", "b"}, room.Questions[0].Answers)
		// untouched fields survive
		assert.Equal(t, "host", room.AdminName)
		assert.Equal(t, "Alice", room.Players["p_1"].Name)
	})

	t.Run("UpdatePlayerFields", func(t *testing.T) {
		err := repo.Update(ctx, "AAAAAA", PlayerOnly("p_1", PlayerPatch{
			CurrentLevel:      ptr(2),
			LevelStartTime:    &now,
			CompletedLevels:   ptr(1),
			TotalTimeMs:       ptr(int64(1500)),
			LevelWrongAnswers: model.LevelCounts{"1": 2},
			TotalWrongAnswers: ptr(2),
			LastProgressAt:    &now,
		}))
		require.NoError(t, err)

		room, err := repo.GetByCode(ctx, "AAAAAA")
		require.NoError(t, err)
		p := room.Players["p_1"]
		assert.Equal(t, 2, p.CurrentLevel)
		assert.Equal(t, 1, p.CompletedLevels)
		assert.Equal(t, int64(1500), p.TotalTimeMs)
		assert.Equal(t, 2, p.LevelWrongAnswers.Get(1))
		assert.Equal(t, 2, p.TotalWrongAnswers)
		require.NotNil(t, p.LevelStartTime)
		assert.Equal(t, "Alice", p.Name)

		require.NoError(t, repo.Update(ctx, "AAAAAA", PlayerOnly("p_1", PlayerPatch{ClearLevelStart: true})))
		room, err = repo.GetByCode(ctx, "AAAAAA")
		require.NoError(t, err)
		assert.Nil(t, room.Players["p_1"].LevelStartTime)
		assert.Equal(t, 2, room.Players["p_1"].CurrentLevel)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := repo.Update(ctx, "ZZZZZZ", Patch{AbandonedByAdmin: ptr(true)})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newRoom("BBBBBB")))
		finished := newRoom("CCCCCC")
		finished.Status = model.RoomFinished
		require.NoError(t, repo.Create(ctx, finished))

		rooms, err := repo.ListByStatus(ctx, model.RoomWaiting, model.RoomPlaying)
		require.NoError(t, err)
		codes := make([]string, 0, len(rooms))
		for _, r := range rooms {
			codes = append(codes, r.Code)
		}
		assert.ElementsMatch(t, []string{"AAAAAA", "BBBBBB"}, codes)
	})
}
