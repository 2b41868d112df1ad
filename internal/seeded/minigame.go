package seeded

import (
	"fmt"

	"escaperoom/internal/model"
)

// MiniGameEvery places a mini-game on every Nth level; the rest are riddles.
const MiniGameEvery = 3

// Params are the puzzle parameters of one mini-game level. Only the fields of
// the selected Type are populated.
type Params struct {
	Type model.MiniGameType `json:"type"`
	Seed string             `json:"seed"`

	Pads     int   `json:"pads,omitempty"`
	Sequence []int `json:"sequence,omitempty"`
	FlashMs  int   `json:"flashMs,omitempty"`

	Code     []int `json:"code,omitempty"`
	DigitMin int   `json:"digitMin,omitempty"`
	DigitMax int   `json:"digitMax,omitempty"`

	Order []int `json:"order,omitempty"`

	DelayMs  int `json:"delayMs,omitempty"`
	WindowMs int `json:"windowMs,omitempty"`
}

// tuning per difficulty tier: Easy, Medium, Hard.
type tuning struct {
	pads, seqLen, flashMs       int
	codeLen, digitMin, digitMax int
	orderLen                    int
	delayMin, delayMax, window  int
}

var tiers = [...]tuning{
	{pads: 4, seqLen: 3, flashMs: 700, codeLen: 3, digitMin: 1, digitMax: 5, orderLen: 4, delayMin: 1500, delayMax: 3500, window: 900},
	{pads: 6, seqLen: 4, flashMs: 550, codeLen: 3, digitMin: 0, digitMax: 9, orderLen: 5, delayMin: 1000, delayMax: 3000, window: 650},
	{pads: 9, seqLen: 5, flashMs: 400, codeLen: 4, digitMin: 0, digitMax: 9, orderLen: 6, delayMin: 800, delayMax: 2500, window: 450},
}

func tierOf(d model.Difficulty) tuning {
	switch d {
	case model.DifficultyMedium:
		return tiers[1]
	case model.DifficultyHard:
		return tiers[2]
	default:
		return tiers[0]
	}
}

// SeedFor builds the seed string of a mini-game level.
func SeedFor(roomCode string, t model.MiniGameType, level, totalLevels int) string {
	return fmt.Sprintf("%s-%s-%d-%d", roomCode, t, level, totalLevels)
}

// IsMiniGameLevel reports whether a 1-based level dispatches to a mini-game.
func IsMiniGameLevel(level int) bool {
	return level > 0 && level%MiniGameEvery == 0
}

// PickMiniGame selects the mini-game type of a level from the room code alone.
func PickMiniGame(roomCode string, level, totalLevels int) model.MiniGameType {
	r := FromSeed(fmt.Sprintf("%s-dispatch-%d-%d", roomCode, level, totalLevels))
	return model.MiniGameTypes[RandomInt(r, 0, len(model.MiniGameTypes)-1)]
}

// Generate derives the parameters of a mini-game level. Difficulty and the
// level's position in the run scale the inputs; the draw order never changes.
func Generate(roomCode string, t model.MiniGameType, level, totalLevels int, d model.Difficulty) (*Params, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown mini-game type %q", t)
	}
	if totalLevels <= 0 || level < 1 || level > totalLevels {
		return nil, fmt.Errorf("level %d out of range 1..%d", level, totalLevels)
	}

	seed := SeedFor(roomCode, t, level, totalLevels)
	r := FromSeed(seed)
	tu := tierOf(d)
	progress := float64(level) / float64(totalLevels)

	p := &Params{Type: t, Seed: seed}
	switch t {
	case model.MiniGameSequence:
		p.Pads = tu.pads
		n := tu.seqLen + int(progress*3)
		p.Sequence = make([]int, n)
		for i := range p.Sequence {
			p.Sequence[i] = RandomInt(r, 0, tu.pads-1)
		}
		p.FlashMs = max(200, tu.flashMs-int(progress*150))

	case model.MiniGameCode:
		p.DigitMin, p.DigitMax = tu.digitMin, tu.digitMax
		p.Code = make([]int, tu.codeLen)
		for i := range p.Code {
			p.Code[i] = RandomInt(r, tu.digitMin, tu.digitMax)
		}
		if allEqual(p.Code) {
			// Shift the last digit by a further draw so it always differs.
			span := tu.digitMax - tu.digitMin + 1
			last := len(p.Code) - 1
			shift := RandomInt(r, 1, span-1)
			p.Code[last] = tu.digitMin + (p.Code[last]-tu.digitMin+shift)%span
		}

	case model.MiniGameOrder:
		n := tu.orderLen + int(progress*2)
		p.Order = make([]int, n)
		for i := range p.Order {
			p.Order[i] = i
		}
		Shuffle(r, p.Order)
		if isIdentity(p.Order) {
			k := RandomInt(r, 1, n-1)
			p.Order = append(append([]int{}, p.Order[k:]...), p.Order[:k]...)
		}

	case model.MiniGameFlash:
		p.DelayMs = RandomInt(r, tu.delayMin, tu.delayMax)
		p.WindowMs = max(200, tu.window-int(progress*150))
	}
	return p, nil
}

func allEqual(xs []int) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

func isIdentity(xs []int) bool {
	for i, x := range xs {
		if x != i {
			return false
		}
	}
	return true
}
