package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"escaperoom/internal/cache"
	"escaperoom/internal/logger"
	"escaperoom/internal/metrics"
	"escaperoom/internal/model"
	"escaperoom/internal/ranking"
)

// LeaderboardService ranks the global per-category leaderboard.
type LeaderboardService struct {
	store cache.LeaderboardCache
	topN  int
	now   func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(store cache.LeaderboardCache, topN int) *LeaderboardService {
	if topN <= 0 {
		topN = 20
	}
	return &LeaderboardService{store: store, topN: topN, now: time.Now}
}

// Submit stores entry as the user's run in cat, keeping whichever of the new
// and stored runs ranks better.
func (s *LeaderboardService) Submit(ctx context.Context, cat model.LeaderboardCategory, entry model.LeaderboardEntry) (*model.SubmitResult, error) {
	if entry.UserID == "" || !cat.Difficulty.Valid() || cat.TotalLevels <= 0 {
		return nil, ErrInvalidInput
	}
	entry.SubmittedAt = s.now()

	before, err := s.sorted(ctx, cat)
	if err != nil {
		return nil, err
	}
	result := &model.SubmitResult{Category: cat}
	if r := rankOfUser(before, entry.UserID); r > 0 {
		result.PreviousRank = &r
	}

	_, written, err := s.store.Upsert(ctx, cat, &entry, func(stored *model.LeaderboardEntry) bool {
		return ranking.Less(entry.Progress, stored.Progress)
	})
	if err != nil {
		return nil, backendErr("leaderboard upsert", err)
	}
	result.Improved = written

	after, err := s.sorted(ctx, cat)
	if err != nil {
		return nil, err
	}
	result.NewRank = rankOfUser(after, entry.UserID)

	metrics.LeaderboardSubmissions.WithLabelValues(strconv.FormatBool(written)).Inc()
	logger.Log.Info("leaderboard submission",
		zap.String("category", cat.String()),
		zap.String("user", entry.UserID),
		zap.Int("completedLevels", entry.CompletedLevels),
		zap.Bool("improved", written),
		zap.Int("rank", result.NewRank),
	)
	return result, nil
}

// Global returns the top entries of cat and, when userID is set, that user's
// rank wherever it falls.
func (s *LeaderboardService) Global(ctx context.Context, cat model.LeaderboardCategory, userID string) (*model.GlobalLeaderboard, error) {
	if !cat.Difficulty.Valid() || cat.TotalLevels <= 0 {
		return nil, ErrInvalidInput
	}
	entries, err := s.sorted(ctx, cat)
	if err != nil {
		return nil, err
	}

	lb := &model.GlobalLeaderboard{Category: cat, Total: len(entries), Top: []model.RankedEntry{}}
	for i, e := range entries {
		if i >= s.topN {
			break
		}
		lb.Top = append(lb.Top, model.RankedEntry{Rank: i + 1, LeaderboardEntry: e})
	}
	if userID != "" {
		if r := rankOfUser(entries, userID); r > 0 {
			lb.PlayerRank = &r
		}
	}
	return lb, nil
}

func (s *LeaderboardService) sorted(ctx context.Context, cat model.LeaderboardCategory) ([]model.LeaderboardEntry, error) {
	entries, err := s.store.All(ctx, cat)
	if err != nil {
		return nil, backendErr("leaderboard read", err)
	}
	ranking.Sort(entries, func(e model.LeaderboardEntry) model.Progress { return e.Progress })
	return entries, nil
}

func rankOfUser(sorted []model.LeaderboardEntry, userID string) int {
	return ranking.RankOf(sorted, func(e model.LeaderboardEntry) bool { return e.UserID == userID })
}
