package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"escaperoom/internal/model"
)

// Patch is a field-level update of a room document. Nil fields are left
// untouched; every set field is written independently, so concurrent patches
// touching different fields never clobber each other.
type Patch struct {
	Status            *model.RoomStatus
	Difficulty        *model.Difficulty
	TotalLevels       *int
	DurationMs        *int64
	StartTime         *time.Time
	EndTime           *time.Time
	EndedAt           *time.Time
	Questions         []model.Question
	AbandonedByAdmin  *bool
	AdminLastActivity *time.Time

	Players map[string]PlayerPatch
}

// PlayerPatch is a field-level update of one embedded player.
type PlayerPatch struct {
	Name              *string
	Ready             *bool
	CurrentLevel      *int
	LevelStartTime    *time.Time
	ClearLevelStart   bool
	LevelWrongAnswers model.LevelCounts
	FinishedAt        *time.Time
	Warnings          *int
	WarningLog        []model.Warning
	Disqualified      *bool
	GaveUp            *bool

	CompletedLevels   *int
	TotalTimeMs       *int64
	TotalWrongAnswers *int
	LastProgressAt    *time.Time
}

// PlayerOnly wraps a single player patch.
func PlayerOnly(playerID string, p PlayerPatch) Patch {
	return Patch{Players: map[string]PlayerPatch{playerID: p}}
}

func (p Patch) IsEmpty() bool {
	set, unset := p.mongoUpdate()
	return len(set) == 0 && len(unset) == 0
}

func (p Patch) mongoUpdate() (bson.M, bson.M) {
	set := bson.M{}
	unset := bson.M{}

	put := func(field string, ok bool, v interface{}) {
		if ok {
			set[field] = v
		}
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Difficulty != nil {
		set["difficulty"] = *p.Difficulty
	}
	if p.TotalLevels != nil {
		set["totalLevels"] = *p.TotalLevels
	}
	if p.DurationMs != nil {
		set["durationMs"] = *p.DurationMs
	}
	put("startTime", p.StartTime != nil, p.StartTime)
	put("endTime", p.EndTime != nil, p.EndTime)
	put("endedAt", p.EndedAt != nil, p.EndedAt)
	put("questions", p.Questions != nil, p.Questions)
	if p.AbandonedByAdmin != nil {
		set["abandonedByAdmin"] = *p.AbandonedByAdmin
	}
	put("adminLastActivity", p.AdminLastActivity != nil, p.AdminLastActivity)

	for id, pp := range p.Players {
		prefix := "players." + id + "."
		if pp.Name != nil {
			set[prefix+"name"] = *pp.Name
		}
		if pp.Ready != nil {
			set[prefix+"ready"] = *pp.Ready
		}
		if pp.CurrentLevel != nil {
			set[prefix+"currentLevel"] = *pp.CurrentLevel
		}
		if pp.ClearLevelStart {
			unset[prefix+"levelStartTime"] = ""
		} else {
			put(prefix+"levelStartTime", pp.LevelStartTime != nil, pp.LevelStartTime)
		}
		put(prefix+"levelWrongAnswers", pp.LevelWrongAnswers != nil, pp.LevelWrongAnswers)
		put(prefix+"finishedAt", pp.FinishedAt != nil, pp.FinishedAt)
		if pp.Warnings != nil {
			set[prefix+"warnings"] = *pp.Warnings
		}
		put(prefix+"warningLog", pp.WarningLog != nil, pp.WarningLog)
		if pp.Disqualified != nil {
			set[prefix+"disqualified"] = *pp.Disqualified
		}
		if pp.GaveUp != nil {
			set[prefix+"gaveUp"] = *pp.GaveUp
		}
		if pp.CompletedLevels != nil {
			set[prefix+"completedLevels"] = *pp.CompletedLevels
		}
		if pp.TotalTimeMs != nil {
			set[prefix+"totalTimeMs"] = *pp.TotalTimeMs
		}
		if pp.TotalWrongAnswers != nil {
			set[prefix+"totalWrongAnswers"] = *pp.TotalWrongAnswers
		}
		put(prefix+"lastProgressAt", pp.LastProgressAt != nil, pp.LastProgressAt)
	}
	return set, unset
}

// Apply mutates an in-memory room the same way the Mongo update would.
func (p Patch) Apply(room *model.Room) {
	if p.Status != nil {
		room.Status = *p.Status
	}
	if p.Difficulty != nil {
		room.Difficulty = *p.Difficulty
	}
	if p.TotalLevels != nil {
		room.TotalLevels = *p.TotalLevels
	}
	if p.DurationMs != nil {
		room.DurationMs = *p.DurationMs
	}
	if p.StartTime != nil {
		room.StartTime = timePtr(*p.StartTime)
	}
	if p.EndTime != nil {
		room.EndTime = timePtr(*p.EndTime)
	}
	if p.EndedAt != nil {
		room.EndedAt = timePtr(*p.EndedAt)
	}
	if p.Questions != nil {
		room.Questions = make([]model.Question, len(p.Questions))
		for i, q := range p.Questions {
			room.Questions[i] = q.Clone()
		}
	}
	if p.AbandonedByAdmin != nil {
		room.AbandonedByAdmin = *p.AbandonedByAdmin
	}
	if p.AdminLastActivity != nil {
		room.AdminLastActivity = timePtr(*p.AdminLastActivity)
	}

	for id, pp := range p.Players {
		pl, ok := room.Players[id]
		if !ok {
			continue
		}
		if pp.Name != nil {
			pl.Name = *pp.Name
		}
		if pp.Ready != nil {
			pl.Ready = *pp.Ready
		}
		if pp.CurrentLevel != nil {
			pl.CurrentLevel = *pp.CurrentLevel
		}
		if pp.ClearLevelStart {
			pl.LevelStartTime = nil
		} else if pp.LevelStartTime != nil {
			pl.LevelStartTime = timePtr(*pp.LevelStartTime)
		}
		if pp.LevelWrongAnswers != nil {
			pl.LevelWrongAnswers = pp.LevelWrongAnswers.Clone()
		}
		if pp.FinishedAt != nil {
			pl.FinishedAt = timePtr(*pp.FinishedAt)
		}
		if pp.Warnings != nil {
			pl.Warnings = *pp.Warnings
		}
		if pp.WarningLog != nil {
			pl.WarningLog = append([]model.Warning(nil), pp.WarningLog...)
		}
		if pp.Disqualified != nil {
			pl.Disqualified = *pp.Disqualified
		}
		if pp.GaveUp != nil {
			pl.GaveUp = *pp.GaveUp
		}
		if pp.CompletedLevels != nil {
			pl.CompletedLevels = *pp.CompletedLevels
		}
		if pp.TotalTimeMs != nil {
			pl.TotalTimeMs = *pp.TotalTimeMs
		}
		if pp.TotalWrongAnswers != nil {
			pl.TotalWrongAnswers = *pp.TotalWrongAnswers
		}
		if pp.LastProgressAt != nil {
			pl.LastProgressAt = timePtr(*pp.LastProgressAt)
		}
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
