package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PuzzleKind tells clients which UI a level dispatches to.
type PuzzleKind string

const (
	PuzzleRiddle   PuzzleKind = "riddle"
	PuzzleMiniGame PuzzleKind = "minigame"
)

// MiniGameType selects a seeded mini-game.
type MiniGameType string

const (
	MiniGameSequence MiniGameType = "sequence" // repeat a flashed pad sequence
	MiniGameCode     MiniGameType = "code"     // crack a digit lock
	MiniGameOrder    MiniGameType = "order"    // restore a shuffled order
	MiniGameFlash    MiniGameType = "flash"    // react inside a timing window
)

// MiniGameTypes is the dispatch table, in seeded-selection order.
var MiniGameTypes = []MiniGameType{MiniGameSequence, MiniGameCode, MiniGameOrder, MiniGameFlash}

func (t MiniGameType) Valid() bool {
	for _, v := range MiniGameTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AnswerSet holds every acceptable answer. It decodes from a JSON string or an
// array of strings; null and blank entries decode to nothing.
type AnswerSet []string

func (a *AnswerSet) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}
	var many []string
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		many = []string{single}
	} else if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings: %w", err)
	}

	var out AnswerSet
	for _, v := range many {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	*a = out
	return nil
}

// Matches compares case-insensitively, ignoring surrounding whitespace.
func (a AnswerSet) Matches(answer string) bool {
	given := strings.TrimSpace(answer)
	if given == "" {
		return false
	}
	for _, accepted := range a {
		if strings.EqualFold(strings.TrimSpace(accepted), given) {
			return true
		}
	}
	return false
}

// Question is one level's content, generated once at start.
type Question struct {
	Level    int          `json:"level" bson:"level"`
	Kind     PuzzleKind   `json:"kind" bson:"kind"`
	MiniGame MiniGameType `json:"miniGame,omitempty" bson:"miniGame,omitempty"`
	Prompt   string       `json:"question" bson:"prompt"`
	Answers  AnswerSet    `json:"answer" bson:"answers"`
	Hint     string       `json:"hint" bson:"hint"`
}

func (q Question) Clone() Question {
	if q.Answers != nil {
		q.Answers = append(AnswerSet(nil), q.Answers...)
	}
	return q
}
