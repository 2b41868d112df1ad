package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/logger"
	"escaperoom/internal/metrics"
	"escaperoom/internal/model"
)

// SessionState is what a room's watcher remembers between evaluations.
type SessionState struct {
	// EarlyEndAt is set once the early-finish condition first holds.
	EarlyEndAt *time.Time
	// Synced guards the solo leaderboard submission on finish.
	Synced bool
}

// Decision is the outcome of one evaluation. At most one of End and
// SyncLeaderboard is set.
type Decision struct {
	End             EndReason
	SyncLeaderboard bool
	Stop            bool
}

// EvaluateSession applies the session rules to a room snapshot. It has no side
// effects; the caller performs the decision and keeps the returned state.
func EvaluateSession(room *model.Room, st SessionState, now time.Time, cfg config.GameConfig) (Decision, SessionState) {
	switch room.Status {
	case model.RoomFinished:
		d := Decision{Stop: true}
		// A room closed before it started has no run to submit.
		if room.IsSolo() && room.StartTime != nil && !st.Synced {
			if p := room.SoloPlayer(); p != nil && p.Active() {
				d.SyncLeaderboard = true
			}
			st.Synced = true
		}
		return d, st

	case model.RoomWaiting:
		if adminInactive(room, now, cfg) {
			return Decision{End: EndAdminInactive}, st
		}
		if cfg.WaitingTTL > 0 && now.Sub(room.CreatedAt) > cfg.WaitingTTL {
			return Decision{End: EndIdle}, st
		}
		return Decision{}, st
	}

	if room.EndTime != nil && !now.Before(*room.EndTime) {
		return Decision{End: EndTimeout}, st
	}
	if adminInactive(room, now, cfg) {
		return Decision{End: EndAdminInactive}, st
	}

	active, finished := 0, 0
	for _, p := range room.Players {
		if !p.Active() {
			continue
		}
		active++
		if p.Finished(room.TotalLevels) {
			finished++
		}
	}

	if room.IsSolo() {
		switch {
		case active == 0:
			return Decision{End: EndSoloForfeit}, st
		case finished == active:
			return Decision{End: EndSoloCompleted}, st
		}
		return Decision{}, st
	}

	if active > 0 && finished >= min(cfg.EarlyEndCap, active) {
		if st.EarlyEndAt == nil {
			at := now.Add(cfg.EarlyEndGrace)
			st.EarlyEndAt = &at
		}
		if !now.Before(*st.EarlyEndAt) {
			return Decision{End: EndEarlyFinish}, st
		}
		return Decision{}, st
	}
	st.EarlyEndAt = nil
	return Decision{}, st
}

// adminInactive only applies to multiplayer rooms. Activity is stamped at
// creation and on every heartbeat.
func adminInactive(room *model.Room, now time.Time, cfg config.GameConfig) bool {
	if room.IsSolo() || room.AdminLastActivity == nil {
		return false
	}
	return now.Sub(*room.AdminLastActivity) > cfg.AdminTimeout
}

// Orchestrator runs one watcher goroutine per unfinished room. Each watcher
// re-evaluates the session rules on every room update and every tick.
type Orchestrator struct {
	rooms  *RoomService
	events cache.RoomEvents
	cfg    config.GameConfig
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watching map[string]struct{}
}

func NewOrchestrator(rooms *RoomService, events cache.RoomEvents, cfg config.GameConfig) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		rooms:    rooms,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		watching: make(map[string]struct{}),
	}
}

// SetClock replaces the wall clock used to evaluate rules.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Resume starts watching every room left waiting or playing, e.g. after a restart.
func (o *Orchestrator) Resume(ctx context.Context) error {
	codes, err := o.rooms.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, code := range codes {
		o.Watch(code)
	}
	logger.Log.Info("orchestrator resumed", zap.Int("rooms", len(codes)))
	return nil
}

// Watch supervises a room until it finishes. Watching twice is a no-op.
func (o *Orchestrator) Watch(code string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx.Err() != nil {
		return
	}
	if _, ok := o.watching[code]; ok {
		return
	}
	o.watching[code] = struct{}{}
	metrics.WatchedRooms.Inc()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.forget(code)
		o.watch(o.ctx, code)
	}()
}

func (o *Orchestrator) IsWatching(code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.watching[code]
	return ok
}

func (o *Orchestrator) forget(code string) {
	o.mu.Lock()
	delete(o.watching, code)
	o.mu.Unlock()
	metrics.WatchedRooms.Dec()
}

// Stop cancels every watcher and waits for them to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.cancel()
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) watch(ctx context.Context, code string) {
	var updates <-chan struct{}
	updates, unsubscribe, err := o.events.Subscribe(ctx, code)
	if err != nil {
		// Fall back to the ticker alone.
		logger.Log.Warn("orchestrator feed unavailable", zap.String("room", code), zap.Error(err))
		updates = nil
	} else {
		defer unsubscribe()
	}

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	var st SessionState
	for {
		if done := o.evaluate(ctx, code, &st); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-updates:
			if !ok {
				updates = nil
			}
		}
	}
}

// evaluate runs the rules once and performs the decision. It reports whether
// the watcher is done.
func (o *Orchestrator) evaluate(ctx context.Context, code string, st *SessionState) bool {
	room, err := o.rooms.Get(ctx, code)
	if errors.Is(err, ErrRoomNotFound) {
		return true
	}
	if err != nil {
		logger.Log.Warn("orchestrator failed to read room", zap.String("room", code), zap.Error(err))
		return false
	}

	d, next := EvaluateSession(room, *st, o.now(), o.cfg)
	*st = next

	if d.End != "" {
		if _, err := o.rooms.EndWithReason(ctx, code, d.End); err != nil {
			logger.Log.Error("orchestrator failed to end room",
				zap.String("room", code),
				zap.String("reason", string(d.End)),
				zap.Error(err),
			)
			return false
		}
		// Evaluate the finished room right away.
		return o.evaluate(ctx, code, st)
	}
	if d.SyncLeaderboard {
		if _, err := o.rooms.SyncSoloLeaderboard(ctx, code); err != nil {
			logger.Log.Error("solo leaderboard sync failed", zap.String("room", code), zap.Error(err))
		}
	}
	return d.Stop
}
