package model

import (
	"fmt"
	"time"
)

// LeaderboardCategory is a (difficulty, totalLevels) ranking bucket.
type LeaderboardCategory struct {
	Difficulty  Difficulty `json:"difficulty"`
	TotalLevels int        `json:"totalLevels"`
}

func (c LeaderboardCategory) String() string {
	return fmt.Sprintf("%s:%d", c.Difficulty, c.TotalLevels)
}

// LeaderboardEntry is one user's best run in a category.
type LeaderboardEntry struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	RoomCode     string    `json:"roomCode"`
	Disqualified bool      `json:"disqualified"`
	GaveUp       bool      `json:"gaveUp"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Progress
}

// RankedEntry is an entry with its 1-based position.
type RankedEntry struct {
	Rank int `json:"rank"`
	LeaderboardEntry
}

// GlobalLeaderboard is the top of a category plus the caller's own rank.
// PlayerRank is set even when the caller falls outside Top.
type GlobalLeaderboard struct {
	Category   LeaderboardCategory `json:"category"`
	Top        []RankedEntry       `json:"top"`
	Total      int                 `json:"total"`
	PlayerRank *int                `json:"playerRank"`
}

// SubmitResult reports how a submission moved the user's rank.
type SubmitResult struct {
	Category     LeaderboardCategory `json:"category"`
	PreviousRank *int                `json:"previousRank"`
	NewRank      int                 `json:"newRank"`
	Improved     bool                `json:"improved"`
}

// RoomStanding is a player's position on a room's own leaderboard.
type RoomStanding struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	Disqualified bool   `json:"disqualified"`
	GaveUp       bool   `json:"gaveUp"`
	Progress
}
