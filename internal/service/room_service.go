package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/logger"
	"escaperoom/internal/metrics"
	"escaperoom/internal/model"
	"escaperoom/internal/ranking"
	"escaperoom/internal/repository"
	"escaperoom/internal/seeded"
	"escaperoom/internal/tracing"
)

const (
	maxTotalLevels     = 50
	maxDurationMinutes = 180
)

// EndReason records why a room moved to finished.
type EndReason string

const (
	EndByAdmin       EndReason = "admin"
	EndTimeout       EndReason = "timeout"
	EndEarlyFinish   EndReason = "early_finish"
	EndAdminInactive EndReason = "admin_inactive"
	EndSoloCompleted EndReason = "completed"
	EndSoloForfeit   EndReason = "forfeit"
	EndIdle          EndReason = "idle"
)

// CreateRoomInput describes a new room. Identity is required for solo rooms.
type CreateRoomInput struct {
	AdminName string
	Mode      model.SessionMode
	Identity  *model.IdentityClaims
}

// CreateRoomResult carries the admin token. Solo rooms also return the
// owner's seat, which the same token controls.
type CreateRoomResult struct {
	Room     *model.Room `json:"room"`
	Token    string      `json:"token"`
	PlayerID string      `json:"playerId,omitempty"`
}

type JoinInput struct {
	Code       string
	Identifier string
	Name       string
	Identity   *model.IdentityClaims
}

type ConfigInput struct {
	Difficulty      model.Difficulty `json:"difficulty"`
	DurationMinutes int              `json:"durationMinutes"`
	TotalLevels     int              `json:"totalLevels"`
}

// LevelResult is the outcome of an answer or mini-game submission.
type LevelResult struct {
	Correct   bool          `json:"correct"`
	PenaltyMs int64         `json:"penaltyMs"`
	Finished  bool          `json:"finished"`
	Player    *model.Player `json:"player"`
}

// RoomService owns the room lifecycle: roster, configuration, start, progress
// and termination. Every mutation is serialized per room in this process and
// announced on the room feed.
type RoomService struct {
	repo        repository.RoomRepo
	events      cache.RoomEvents
	leaderboard *LeaderboardService
	content     ContentSource
	authSvc     *AuthService
	cfg         config.GameConfig
	broadcaster Broadcaster
	watcher     Watcher
	now         func() time.Time
	locks       *roomLocks
}

// NewRoomService creates a new room service
func NewRoomService(
	repo repository.RoomRepo,
	events cache.RoomEvents,
	leaderboard *LeaderboardService,
	content ContentSource,
	authSvc *AuthService,
	cfg config.GameConfig,
) *RoomService {
	return &RoomService{
		repo:        repo,
		events:      events,
		leaderboard: leaderboard,
		content:     content,
		authSvc:     authSvc,
		cfg:         cfg,
		now:         time.Now,
		locks:       newRoomLocks(),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *RoomService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetWatcher registers the supervisor notified of every new room.
func (s *RoomService) SetWatcher(w Watcher) {
	s.watcher = w
}

// SetClock replaces the wall clock.
func (s *RoomService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *RoomService) Config() config.GameConfig {
	return s.cfg
}

func (s *RoomService) startSpan(ctx context.Context, op, code string) (context.Context, trace.Span) {
	return tracing.Start(ctx, "RoomService."+op, trace.WithAttributes(attribute.String("room.code", code)))
}

// Create opens a room in waiting. A solo room seats its owner immediately.
func (s *RoomService) Create(ctx context.Context, in CreateRoomInput) (*CreateRoomResult, error) {
	ctx, span := s.startSpan(ctx, "Create", "")
	defer span.End()

	mode := in.Mode
	if mode == "" {
		mode = model.ModeMultiplayer
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	adminName := strings.TrimSpace(in.AdminName)
	if mode == model.ModeSolo {
		if in.Identity == nil || in.Identity.UserID == "" {
			return nil, fmt.Errorf("%w: solo rooms need a verified identity", ErrUnauthorized)
		}
		if adminName == "" {
			adminName = in.Identity.DisplayName
		}
	}
	if adminName == "" {
		return nil, fmt.Errorf("%w: admin name is required", ErrInvalidInput)
	}

	code, err := s.generateRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	room := &model.Room{
		Code:      code,
		Mode:      mode,
		AdminName: adminName,
		Status:    model.RoomWaiting,
		Players:   map[string]*model.Player{},
		CreatedAt: now,

		AdminLastActivity: &now,
	}

	var playerID string
	if mode == model.ModeSolo {
		room.OwnerUserID = in.Identity.UserID
		p := newPlayer(in.Identity.UserID, adminName, now)
		room.Players[p.ID] = p
		playerID = p.ID
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return nil, backendErr("create room", err)
	}

	token, err := s.authSvc.GenerateRoomToken(code, model.RoleAdmin, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	span.SetAttributes(attribute.String("room.code", code))
	metrics.RoomsCreated.WithLabelValues(string(mode)).Inc()
	logger.Log.Info("room created",
		zap.String("room", code),
		zap.String("mode", string(mode)),
		zap.String("admin", adminName),
	)

	if s.watcher != nil {
		s.watcher.Watch(code)
	}
	return &CreateRoomResult{Room: room, Token: token, PlayerID: playerID}, nil
}

func newPlayer(identifier, name string, now time.Time) *model.Player {
	return &model.Player{
		ID:         "p_" + uuid.New().String()[:8],
		Identifier: identifier,
		Name:       name,
		Progress:   model.Progress{JoinedAt: now},
	}
}

// Join seats a player, or returns the existing seat when identifier already
// holds one. Reconnection works in any status; new seats only while waiting.
func (s *RoomService) Join(ctx context.Context, in JoinInput) (*model.PlayerJoinResponse, error) {
	ctx, span := s.startSpan(ctx, "Join", in.Code)
	defer span.End()

	identifier := strings.TrimSpace(in.Identifier)
	name := strings.TrimSpace(in.Name)

	unlock := s.locks.lock(in.Code)
	defer unlock()

	room, err := s.load(ctx, in.Code)
	if err != nil {
		return nil, err
	}

	role := model.RolePlayer
	if room.IsSolo() {
		// Only the owner's identity can hold the single solo seat.
		if in.Identity == nil || in.Identity.UserID != room.OwnerUserID {
			return nil, ErrRoomFull
		}
		identifier = in.Identity.UserID
		role = model.RoleAdmin
	}
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}
	if existing := room.PlayerByIdentifier(identifier); existing != nil {
		if name != "" && existing.Name != name {
			if err := s.update(ctx, room.Code, repository.PlayerOnly(existing.ID, repository.PlayerPatch{Name: &name})); err != nil {
				return nil, err
			}
		}
		token, err := s.authSvc.GenerateRoomToken(room.Code, role, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		logger.Log.Info("player rejoined", zap.String("room", room.Code), zap.String("player", existing.ID))
		return &model.PlayerJoinResponse{PlayerID: existing.ID, Token: token, Rejoined: true}, nil
	}

	if room.Status != model.RoomWaiting {
		return nil, ErrRoomNotJoinable
	}
	if len(room.Players) >= s.capacity(room) {
		return nil, ErrRoomFull
	}

	if name == "" {
		name = identifier
	}
	p := newPlayer(identifier, name, s.now())
	if err := s.repo.PutPlayer(ctx, room.Code, p); err != nil {
		return nil, s.writeErr("add player", err)
	}
	s.publish(ctx, room.Code)

	token, err := s.authSvc.GenerateRoomToken(room.Code, role, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	logger.Log.Info("player joined",
		zap.String("room", room.Code),
		zap.String("player", p.ID),
		zap.Int("roster", len(room.Players)+1),
	)
	return &model.PlayerJoinResponse{PlayerID: p.ID, Token: token}, nil
}

func (s *RoomService) capacity(room *model.Room) int {
	if room.IsSolo() {
		return 1
	}
	return s.cfg.MaxPlayers
}

// Rename changes a player's display name at any time.
func (s *RoomService) Rename(ctx context.Context, code, playerID, name string) error {
	ctx, span := s.startSpan(ctx, "Rename", code)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := room.Players[playerID]; !ok {
		return ErrPlayerNotFound
	}
	return s.update(ctx, code, repository.PlayerOnly(playerID, repository.PlayerPatch{Name: &name}))
}

// SetConfig overwrites the room configuration while it is still waiting.
func (s *RoomService) SetConfig(ctx context.Context, code string, in ConfigInput) (*model.Room, error) {
	ctx, span := s.startSpan(ctx, "SetConfig", code)
	defer span.End()

	if !in.Difficulty.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidConfig, in.Difficulty)
	}
	if in.TotalLevels < 1 || in.TotalLevels > maxTotalLevels {
		return nil, fmt.Errorf("%w: total levels must be between 1 and %d", ErrInvalidConfig, maxTotalLevels)
	}
	if in.DurationMinutes < 1 || in.DurationMinutes > maxDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidConfig, maxDurationMinutes)
	}

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomWaiting {
		return nil, ErrConfigLocked
	}

	durationMs := (time.Duration(in.DurationMinutes) * time.Minute).Milliseconds()
	patch := repository.Patch{
		Difficulty:  &in.Difficulty,
		TotalLevels: &in.TotalLevels,
		DurationMs:  &durationMs,
	}
	if err := s.update(ctx, code, patch); err != nil {
		return nil, err
	}
	patch.Apply(room)
	return room, nil
}

// ToggleReady flips a player's ready flag. Outside waiting it has no effect
// and reports the current value.
func (s *RoomService) ToggleReady(ctx context.Context, code, playerID string) (bool, error) {
	ctx, span := s.startSpan(ctx, "ToggleReady", code)
	defer span.End()

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return false, err
	}
	p, ok := room.Players[playerID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if room.Status != model.RoomWaiting {
		return p.Ready, nil
	}

	ready := !p.Ready
	if err := s.update(ctx, code, repository.PlayerOnly(playerID, repository.PlayerPatch{Ready: &ready})); err != nil {
		return false, err
	}
	return ready, nil
}

// Start generates the level content and moves the room to playing.
func (s *RoomService) Start(ctx context.Context, code string) (*model.Room, error) {
	ctx, span := s.startSpan(ctx, "Start", code)
	defer span.End()

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomWaiting {
		return nil, ErrAlreadyStarted
	}
	if !room.ConfigComplete() {
		return nil, ErrConfigIncomplete
	}
	if len(room.Players) == 0 {
		return nil, ErrNoPlayers
	}
	if !room.IsSolo() && len(room.Players) > 1 {
		ready := 0
		for _, p := range room.Players {
			if p.Ready {
				ready++
			}
		}
		if ready < len(room.Players) {
			return nil, &NotReadyError{Ready: ready, Total: len(room.Players)}
		}
	}

	questions := s.buildQuestions(ctx, room)

	now := s.now()
	endTime := now.Add(time.Duration(room.DurationMs) * time.Millisecond)
	status := model.RoomPlaying
	firstLevel := 1
	patch := repository.Patch{
		Status:    &status,
		StartTime: &now,
		EndTime:   &endTime,
		Questions: questions,
		Players:   make(map[string]repository.PlayerPatch, len(room.Players)),
	}
	for id := range room.Players {
		patch.Players[id] = repository.PlayerPatch{CurrentLevel: &firstLevel, LevelStartTime: &now}
	}

	if err := s.update(ctx, code, patch); err != nil {
		return nil, err
	}
	patch.Apply(room)

	logger.Log.Info("room started",
		zap.String("room", code),
		zap.String("difficulty", string(room.Difficulty)),
		zap.Int("levels", room.TotalLevels),
		zap.Int("players", len(room.Players)),
	)
	return room, nil
}

// buildQuestions places a seeded mini-game on every third level and asks the
// content source for the riddles in between.
func (s *RoomService) buildQuestions(ctx context.Context, room *model.Room) []model.Question {
	questions := make([]model.Question, room.TotalLevels)
	var wg sync.WaitGroup
	for i := range questions {
		level := i + 1
		if seeded.IsMiniGameLevel(level) {
			t := seeded.PickMiniGame(room.Code, level, room.TotalLevels)
			questions[i] = model.Question{
				Level:    level,
				Kind:     model.PuzzleMiniGame,
				MiniGame: t,
				Prompt:   miniGamePrompts[t],
			}
			continue
		}
		wg.Add(1)
		go func(i, level int) {
			defer wg.Done()
			q := s.content.Riddle(ctx, room.Difficulty, level, room.TotalLevels)
			q.Level, q.Kind = level, model.PuzzleRiddle
			questions[i] = q
		}(i, level)
	}
	wg.Wait()
	return questions
}

var miniGamePrompts = map[model.MiniGameType]string{
	model.MiniGameSequence: "Repeat the sequence of glowing pads.",
	model.MiniGameCode:     "Crack the lock combination.",
	model.MiniGameOrder:    "Put the pieces back in order.",
	model.MiniGameFlash:    "Hit the switch the moment the light flashes.",
}

// SubmitAnswer checks a free-text answer for the player's active riddle level.
// A wrong answer is a normal result, not an error.
func (s *RoomService) SubmitAnswer(ctx context.Context, code, playerID string, level int, answer string) (*LevelResult, error) {
	ctx, span := s.startSpan(ctx, "SubmitAnswer", code)
	defer span.End()

	return s.submitLevel(ctx, code, playerID, level, model.PuzzleRiddle, func(q *model.Question) bool {
		return q.Answers.Matches(answer)
	})
}

// SubmitMiniGameResult records a client-judged mini-game outcome.
func (s *RoomService) SubmitMiniGameResult(ctx context.Context, code, playerID string, level int, success bool) (*LevelResult, error) {
	ctx, span := s.startSpan(ctx, "SubmitMiniGameResult", code)
	defer span.End()

	return s.submitLevel(ctx, code, playerID, level, model.PuzzleMiniGame, func(*model.Question) bool {
		return success
	})
}

func (s *RoomService) submitLevel(ctx context.Context, code, playerID string, level int, kind model.PuzzleKind,
	judge func(*model.Question) bool) (*LevelResult, error) {

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if room.Status != model.RoomPlaying || room.Remaining(now) == 0 {
		return nil, ErrGameNotActive
	}
	p, ok := room.Players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if !p.Active() {
		return nil, ErrPlayerInactive
	}
	q := room.Question(level)
	if q == nil {
		return nil, fmt.Errorf("%w: level %d does not exist", ErrInvalidLevel, level)
	}
	if q.Kind != kind {
		return nil, fmt.Errorf("%w: level %d is a %s", ErrInvalidLevel, level, q.Kind)
	}
	if level != p.CurrentLevel || p.LevelStartTime == nil {
		return nil, fmt.Errorf("%w: level %d is not the active level", ErrInvalidLevel, level)
	}

	res := &LevelResult{Correct: judge(q)}
	var pp repository.PlayerPatch
	if res.Correct {
		elapsed := now.Sub(*p.LevelStartTime).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		// The wrong-attempt penalty only applies to solo sessions.
		if room.IsSolo() {
			res.PenaltyMs = int64(p.LevelWrongAnswers.Get(level)) * s.cfg.PenaltyUnit.Milliseconds()
		}
		completed := p.CompletedLevels + 1
		totalTime := p.TotalTimeMs + elapsed + res.PenaltyMs
		wrong := p.LevelWrongAnswers.Sum()
		pp = repository.PlayerPatch{
			CompletedLevels:   &completed,
			TotalTimeMs:       &totalTime,
			TotalWrongAnswers: &wrong,
			LastProgressAt:    &now,
		}
		if completed >= room.TotalLevels {
			pp.ClearLevelStart = true
			pp.FinishedAt = &now
			res.Finished = true
		} else {
			next := level + 1
			pp.CurrentLevel = &next
			pp.LevelStartTime = &now
		}
	} else {
		counts := p.LevelWrongAnswers.Inc(level)
		wrong := counts.Sum()
		pp = repository.PlayerPatch{
			LevelWrongAnswers: counts,
			TotalWrongAnswers: &wrong,
			LastProgressAt:    &now,
		}
	}

	patch := repository.PlayerOnly(playerID, pp)
	if err := s.update(ctx, code, patch); err != nil {
		return nil, err
	}
	patch.Apply(room)
	res.Player = room.Players[playerID]

	outcome := "wrong"
	if res.Correct {
		outcome = "correct"
	}
	metrics.AnswersSubmitted.WithLabelValues(string(kind) + "_" + outcome).Inc()
	logger.Log.Debug("level submission",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.Int("level", level),
		zap.Bool("correct", res.Correct),
		zap.Int64("penaltyMs", res.PenaltyMs),
	)
	return res, nil
}

// AddWarning records an anti-cheat flag and returns the new count. Reaching
// the warning limit disqualifies the player once.
func (s *RoomService) AddWarning(ctx context.Context, code, playerID, reason string) (int, error) {
	ctx, span := s.startSpan(ctx, "AddWarning", code)
	defer span.End()

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return 0, err
	}
	if room.Status != model.RoomPlaying {
		return 0, ErrGameNotActive
	}
	p, ok := room.Players[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}

	now := s.now()
	count := p.Warnings + 1
	warningLog := append(append([]model.Warning(nil), p.WarningLog...), model.Warning{Reason: strings.TrimSpace(reason), At: now})
	pp := repository.PlayerPatch{Warnings: &count, WarningLog: warningLog}

	disqualify := count >= s.cfg.WarningLimit && !p.Disqualified
	if disqualify {
		pp.Disqualified = boolPtr(true)
		s.submitFrozenProgress(ctx, room, p, now, true, p.GaveUp)
	}

	if err := s.update(ctx, code, repository.PlayerOnly(playerID, pp)); err != nil {
		return 0, err
	}

	metrics.WarningsRaised.Inc()
	logger.Log.Info("warning recorded",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.Int("warnings", count),
		zap.String("reason", reason),
	)
	if disqualify {
		s.announceDisqualified(room.Code, playerID, "warnings")
	}
	return count, nil
}

// Disqualify is the admin's explicit disqualification. Repeating it is a no-op.
func (s *RoomService) Disqualify(ctx context.Context, code, playerID string) error {
	ctx, span := s.startSpan(ctx, "Disqualify", code)
	defer span.End()

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return err
	}
	if room.Status != model.RoomPlaying {
		return ErrGameNotActive
	}
	p, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if p.Disqualified {
		return nil
	}

	s.submitFrozenProgress(ctx, room, p, s.now(), true, p.GaveUp)
	if err := s.update(ctx, code, repository.PlayerOnly(playerID, repository.PlayerPatch{Disqualified: boolPtr(true)})); err != nil {
		return err
	}
	s.announceDisqualified(code, playerID, "admin")
	return nil
}

func (s *RoomService) announceDisqualified(code, playerID, source string) {
	metrics.Disqualifications.WithLabelValues(source).Inc()
	logger.Log.Info("player disqualified",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.String("source", source),
	)
	if s.broadcaster != nil {
		payload := map[string]string{"playerId": playerID, "source": source}
		s.broadcaster.BroadcastToPlayer(code, playerID, MsgPlayerDisqualified, payload)
		s.broadcaster.BroadcastToAdmin(code, MsgPlayerDisqualified, payload)
	}
}

// GiveUp freezes the player's progress. A solo room ends with it.
func (s *RoomService) GiveUp(ctx context.Context, code, playerID string) error {
	ctx, span := s.startSpan(ctx, "GiveUp", code)
	defer span.End()

	return s.forfeit(ctx, code, playerID, true)
}

// Leave reports that the player's client lost visibility. In a solo room this
// forfeits the run; in multiplayer it is only logged.
func (s *RoomService) Leave(ctx context.Context, code, playerID string) error {
	ctx, span := s.startSpan(ctx, "Leave", code)
	defer span.End()

	return s.forfeit(ctx, code, playerID, false)
}

func (s *RoomService) forfeit(ctx context.Context, code, playerID string, explicit bool) error {
	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return err
	}
	p, ok := room.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if room.Status != model.RoomPlaying {
		if explicit {
			return ErrGameNotActive
		}
		return nil
	}
	if !p.Active() {
		if explicit && p.Disqualified {
			return ErrPlayerInactive
		}
		return nil
	}
	if !explicit && !room.IsSolo() {
		logger.Log.Info("player left view", zap.String("room", code), zap.String("player", playerID))
		return nil
	}

	now := s.now()
	s.submitFrozenProgress(ctx, room, p, now, false, true)
	if err := s.update(ctx, code, repository.PlayerOnly(playerID, repository.PlayerPatch{GaveUp: boolPtr(true)})); err != nil {
		return err
	}
	logger.Log.Info("player gave up",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.Bool("explicit", explicit),
	)

	if room.IsSolo() {
		_, err := s.endLocked(ctx, room, EndSoloForfeit)
		return err
	}
	return nil
}

// submitFrozenProgress sends a solo player's progress, including the running
// level's elapsed time, to the global leaderboard before the player is frozen.
// Failures are logged and never block the caller.
func (s *RoomService) submitFrozenProgress(ctx context.Context, room *model.Room, p *model.Player, now time.Time, disqualified, gaveUp bool) {
	if !room.IsSolo() {
		return
	}
	entry := model.LeaderboardEntry{
		UserID:       p.Identifier,
		DisplayName:  p.Name,
		RoomCode:     room.Code,
		Disqualified: disqualified,
		GaveUp:       gaveUp,
		Progress:     p.ProgressAt(now),
	}
	s.submitToLeaderboard(ctx, room, p.ID, entry)
}

func (s *RoomService) submitToLeaderboard(ctx context.Context, room *model.Room, playerID string, entry model.LeaderboardEntry) *model.SubmitResult {
	if s.leaderboard == nil {
		return nil
	}
	cat := model.LeaderboardCategory{Difficulty: room.Difficulty, TotalLevels: room.TotalLevels}
	res, err := s.leaderboard.Submit(ctx, cat, entry)
	if err != nil {
		logger.Log.Error("leaderboard submission failed",
			zap.String("room", room.Code),
			zap.String("user", entry.UserID),
			zap.Error(err),
		)
		return nil
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToPlayer(room.Code, playerID, MsgLeaderboardResult, res)
	}
	return res
}

// SyncSoloLeaderboard submits the final progress of a finished solo room.
// Players frozen by disqualification or giving up already submitted.
func (s *RoomService) SyncSoloLeaderboard(ctx context.Context, code string) (*model.SubmitResult, error) {
	ctx, span := s.startSpan(ctx, "SyncSoloLeaderboard", code)
	defer span.End()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsSolo() || room.Status != model.RoomFinished || room.StartTime == nil {
		return nil, nil
	}
	p := room.SoloPlayer()
	if p == nil || !p.Active() {
		return nil, nil
	}

	entry := model.LeaderboardEntry{
		UserID:      p.Identifier,
		DisplayName: p.Name,
		RoomCode:    room.Code,
		Progress:    p.Progress,
	}
	return s.submitToLeaderboard(ctx, room, p.ID, entry), nil
}

// Heartbeat stamps the admin's last activity. Finished rooms ignore it.
func (s *RoomService) Heartbeat(ctx context.Context, code string) error {
	ctx, span := s.startSpan(ctx, "Heartbeat", code)
	defer span.End()

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return err
	}
	if room.Status == model.RoomFinished {
		return nil
	}
	now := s.now()
	return s.update(ctx, code, repository.Patch{AdminLastActivity: &now})
}

// End finishes the room. Ending a finished room changes nothing.
func (s *RoomService) End(ctx context.Context, code string, abandonedByAdmin bool) (*model.Room, error) {
	reason := EndByAdmin
	if abandonedByAdmin {
		reason = EndAdminInactive
	}
	return s.EndWithReason(ctx, code, reason)
}

func (s *RoomService) EndWithReason(ctx context.Context, code string, reason EndReason) (*model.Room, error) {
	ctx, span := s.startSpan(ctx, "End", code)
	defer span.End()
	span.SetAttributes(attribute.String("end.reason", string(reason)))

	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.endLocked(ctx, room, reason)
}

func (s *RoomService) endLocked(ctx context.Context, room *model.Room, reason EndReason) (*model.Room, error) {
	if room.Status == model.RoomFinished {
		return room, nil
	}

	now := s.now()
	status := model.RoomFinished
	abandoned := reason == EndAdminInactive
	patch := repository.Patch{
		Status:           &status,
		EndedAt:          &now,
		AbandonedByAdmin: &abandoned,
	}
	if err := s.update(ctx, room.Code, patch); err != nil {
		return nil, err
	}
	patch.Apply(room)

	metrics.RoomsEnded.WithLabelValues(string(reason)).Inc()
	logger.Log.Info("room finished",
		zap.String("room", room.Code),
		zap.String("reason", string(reason)),
	)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(room.Code, MsgRoomFinished, map[string]interface{}{
			"reason":           reason,
			"abandonedByAdmin": abandoned,
		})
	}
	return room, nil
}

// Get returns the full room document, answers included.
func (s *RoomService) Get(ctx context.Context, code string) (*model.Room, error) {
	return s.load(ctx, code)
}

// Subscribe calls onUpdate with the current room (or ErrRoomNotFound) and
// again after every change until the returned func is called or ctx ends.
func (s *RoomService) Subscribe(ctx context.Context, code string, onUpdate func(*model.Room, error)) (func(), error) {
	updates, unsubscribe, err := s.events.Subscribe(ctx, code)
	if err != nil {
		return nil, backendErr("subscribe", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer unsubscribe()
		emit := func() {
			room, err := s.load(ctx, code)
			if ctx.Err() != nil {
				return
			}
			onUpdate(room, err)
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-updates:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return cancel, nil
}

// RoomLeaderboard ranks the room's players, frozen players included.
func (s *RoomService) RoomLeaderboard(ctx context.Context, code string) ([]model.RoomStanding, error) {
	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}

	standings := make([]model.RoomStanding, 0, len(room.Players))
	for _, p := range room.Players {
		standings = append(standings, model.RoomStanding{
			PlayerID:     p.ID,
			Name:         p.Name,
			Disqualified: p.Disqualified,
			GaveUp:       p.GaveUp,
			Progress:     p.Progress,
		})
	}
	ranking.Sort(standings, func(st model.RoomStanding) model.Progress { return st.Progress })
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// MiniGameParams derives the seeded parameters of a mini-game level, the same
// ones every client computes locally.
func (s *RoomService) MiniGameParams(ctx context.Context, code string, level int) (*seeded.Params, error) {
	room, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	q := room.Question(level)
	if q == nil || q.Kind != model.PuzzleMiniGame {
		return nil, fmt.Errorf("%w: level %d has no mini-game", ErrInvalidLevel, level)
	}
	return seeded.Generate(room.Code, q.MiniGame, level, room.TotalLevels, room.Difficulty)
}

// ListActive returns the codes of rooms that are waiting or playing.
func (s *RoomService) ListActive(ctx context.Context) ([]string, error) {
	rooms, err := s.repo.ListByStatus(ctx, model.RoomWaiting, model.RoomPlaying)
	if err != nil {
		return nil, backendErr("list rooms", err)
	}
	codes := make([]string, len(rooms))
	for i, r := range rooms {
		codes[i] = r.Code
	}
	return codes, nil
}

func (s *RoomService) load(ctx context.Context, code string) (*model.Room, error) {
	room, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, backendErr("get room", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// update writes the patch and announces the change on the room feed.
func (s *RoomService) update(ctx context.Context, code string, patch repository.Patch) error {
	if err := s.repo.Update(ctx, code, patch); err != nil {
		return s.writeErr("update room", err)
	}
	s.publish(ctx, code)
	return nil
}

func (s *RoomService) writeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoomNotFound
	}
	return backendErr(op, err)
}

func (s *RoomService) publish(ctx context.Context, code string) {
	if err := s.events.Publish(ctx, code); err != nil {
		logger.Log.Warn("failed to publish room update", zap.String("room", code), zap.Error(err))
	}
}

// generateRoomCode creates a 6-char alphanumeric code
func (s *RoomService) generateRoomCode(ctx context.Context) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		codeStr := string(code)

		// Check uniqueness
		exists, err := s.repo.Exists(ctx, codeStr)
		if err != nil {
			return "", backendErr("check room code", err)
		}
		if !exists {
			return codeStr, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique room code")
}

func boolPtr(b bool) *bool {
	return &b
}
