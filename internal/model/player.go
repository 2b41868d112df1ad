package model

import (
	"strconv"
	"time"
)

// Progress is the part of a player shared with the global leaderboard and read
// by the ranking comparator.
type Progress struct {
	CompletedLevels   int        `json:"completedLevels" bson:"completedLevels"`
	TotalTimeMs       int64      `json:"totalTimeMs" bson:"totalTimeMs"`
	TotalWrongAnswers int        `json:"totalWrongAnswers" bson:"totalWrongAnswers"`
	LastProgressAt    *time.Time `json:"lastProgressAt,omitempty" bson:"lastProgressAt,omitempty"`
	JoinedAt          time.Time  `json:"joinedAt" bson:"joinedAt"`
}

// RecencyKey is the last progress timestamp, or join time when the player never progressed.
func (p Progress) RecencyKey() time.Time {
	if p.LastProgressAt != nil {
		return *p.LastProgressAt
	}
	return p.JoinedAt
}

// LevelCounts maps a level number to a wrong-attempt count. Keys are decimal
// strings so the map survives BSON encoding.
type LevelCounts map[string]int

func (c LevelCounts) Get(level int) int {
	return c[strconv.Itoa(level)]
}

// Inc returns a copy with level incremented by one.
func (c LevelCounts) Inc(level int) LevelCounts {
	out := c.Clone()
	out[strconv.Itoa(level)]++
	return out
}

func (c LevelCounts) Clone() LevelCounts {
	out := make(LevelCounts, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c LevelCounts) Sum() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// Warning is one anti-cheat flag raised against a player.
type Warning struct {
	Reason string    `json:"reason" bson:"reason"`
	At     time.Time `json:"at" bson:"at"`
}

// Player is a seat in a room.
type Player struct {
	ID         string `json:"id" bson:"id"`
	Identifier string `json:"identifier,omitempty" bson:"identifier"`
	Name       string `json:"name" bson:"name"`
	Ready      bool   `json:"ready" bson:"ready"`

	CurrentLevel      int         `json:"currentLevel" bson:"currentLevel"`
	LevelStartTime    *time.Time  `json:"levelStartTime,omitempty" bson:"levelStartTime,omitempty"`
	LevelWrongAnswers LevelCounts `json:"levelWrongAnswers,omitempty" bson:"levelWrongAnswers,omitempty"`
	FinishedAt        *time.Time  `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`

	Warnings     int       `json:"warnings" bson:"warnings"`
	WarningLog   []Warning `json:"warningLog,omitempty" bson:"warningLog,omitempty"`
	Disqualified bool      `json:"disqualified" bson:"disqualified"`
	GaveUp       bool      `json:"gaveUp" bson:"gaveUp"`

	Progress `bson:",inline"`
}

// Active is false once the player is disqualified or gave up; their progress is frozen.
func (p *Player) Active() bool {
	return !p.Disqualified && !p.GaveUp
}

// Finished reports whether the player completed every level of a room with total levels.
func (p *Player) Finished(totalLevels int) bool {
	return totalLevels > 0 && p.CompletedLevels >= totalLevels
}

// ProgressAt is the player's progress with the running level's elapsed time
// folded in, used when progress is submitted mid-level.
func (p *Player) ProgressAt(now time.Time) Progress {
	pr := p.Progress
	if p.LevelStartTime != nil && now.After(*p.LevelStartTime) {
		pr.TotalTimeMs += now.Sub(*p.LevelStartTime).Milliseconds()
	}
	return pr
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.LevelStartTime = cloneTime(p.LevelStartTime)
	c.FinishedAt = cloneTime(p.FinishedAt)
	c.LastProgressAt = cloneTime(p.LastProgressAt)
	if p.LevelWrongAnswers != nil {
		c.LevelWrongAnswers = p.LevelWrongAnswers.Clone()
	}
	if p.WarningLog != nil {
		c.WarningLog = append([]Warning(nil), p.WarningLog...)
	}
	return &c
}

// PlayerJoinResponse is returned when a player joins a room
type PlayerJoinResponse struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
	Rejoined bool   `json:"rejoined"`
}
