package model

import (
	"fmt"
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// SessionMode is fixed at creation and decides the ready gate, the time penalty
// and who submits to the global leaderboard.
type SessionMode string

const (
	ModeSolo        SessionMode = "solo"
	ModeMultiplayer SessionMode = "multiplayer"
)

func (m SessionMode) Valid() bool {
	return m == ModeSolo || m == ModeMultiplayer
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty accepts the canonical names case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	switch {
	case strings.EqualFold(s, string(DifficultyEasy)):
		return DifficultyEasy, nil
	case strings.EqualFold(s, string(DifficultyMedium)):
		return DifficultyMedium, nil
	case strings.EqualFold(s, string(DifficultyHard)):
		return DifficultyHard, nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Room is the shared document every participant observes.
type Room struct {
	Code        string      `json:"code" bson:"code"`
	Mode        SessionMode `json:"mode" bson:"mode"`
	AdminName   string      `json:"adminName" bson:"adminName"`
	OwnerUserID string      `json:"ownerUserId,omitempty" bson:"ownerUserId,omitempty"` // solo only
	Status      RoomStatus  `json:"status" bson:"status"`

	// Config, frozen once the room leaves waiting.
	Difficulty  Difficulty `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	TotalLevels int        `json:"totalLevels,omitempty" bson:"totalLevels,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty" bson:"durationMs,omitempty"`

	StartTime *time.Time `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty" bson:"endTime,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`

	Questions []Question         `json:"questions,omitempty" bson:"questions,omitempty"`
	Players   map[string]*Player `json:"players" bson:"players"`

	AbandonedByAdmin  bool       `json:"abandonedByAdmin" bson:"abandonedByAdmin"`
	AdminLastActivity *time.Time `json:"adminLastActivity,omitempty" bson:"adminLastActivity,omitempty"`
	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
}

// ConfigComplete reports whether difficulty, level count and duration are all set.
func (r *Room) ConfigComplete() bool {
	return r.Difficulty.Valid() && r.TotalLevels > 0 && r.DurationMs > 0
}

func (r *Room) IsSolo() bool {
	return r.Mode == ModeSolo
}

// Question returns the question for a 1-based level, or nil.
func (r *Room) Question(level int) *Question {
	if level < 1 || level > len(r.Questions) {
		return nil
	}
	return &r.Questions[level-1]
}

// Remaining is the countdown left at now, never negative.
func (r *Room) Remaining(now time.Time) time.Duration {
	if r.EndTime == nil {
		return 0
	}
	d := r.EndTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ActivePlayers returns players that are neither disqualified nor gave up.
func (r *Room) ActivePlayers() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// PlayerByIdentifier finds the seat held by an external identity.
func (r *Room) PlayerByIdentifier(identifier string) *Player {
	for _, p := range r.Players {
		if p.Identifier == identifier {
			return p
		}
	}
	return nil
}

// SoloPlayer returns the single seat of a solo room.
func (r *Room) SoloPlayer() *Player {
	for _, p := range r.Players {
		return p
	}
	return nil
}

// Clone deep-copies the room so callers can mutate it freely.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.StartTime = cloneTime(r.StartTime)
	c.EndTime = cloneTime(r.EndTime)
	c.EndedAt = cloneTime(r.EndedAt)
	c.AdminLastActivity = cloneTime(r.AdminLastActivity)
	if r.Questions != nil {
		c.Questions = make([]Question, len(r.Questions))
		for i, q := range r.Questions {
			c.Questions[i] = q.Clone()
		}
	}
	c.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		c.Players[id] = p.Clone()
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Redacted is the client-facing copy. Accepted answers and seat identifiers
// never leave the server: an identifier is enough to reclaim a seat on join.
func (r *Room) Redacted() *Room {
	c := r.Clone()
	if c == nil {
		return nil
	}
	c.OwnerUserID = ""
	for i := range c.Questions {
		c.Questions[i].Answers = nil
	}
	for _, p := range c.Players {
		p.Identifier = ""
	}
	return c
}
