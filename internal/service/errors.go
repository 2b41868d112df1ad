package service

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNotJoinable = errors.New("room is not accepting players")
	// ErrRoomFull is a specific kind of ErrRoomNotJoinable.
	ErrRoomFull                = fmt.Errorf("%w: room is full", ErrRoomNotJoinable)
	ErrConfigIncomplete        = errors.New("room configuration is incomplete")
	ErrInvalidConfig           = errors.New("invalid room configuration")
	ErrNotAllReady             = errors.New("all players must be ready")
	ErrNoPlayers               = errors.New("room has no players")
	ErrPlayerNotFound          = errors.New("player not found")
	ErrInvalidLevel            = errors.New("invalid level")
	ErrGameNotActive           = errors.New("game is not in progress")
	ErrPlayerInactive          = errors.New("player is disqualified or gave up")
	ErrBackendUnavailable      = errors.New("backend unavailable")
	ErrContentGenerationFailed = errors.New("puzzle content generation failed")
	ErrInvalidMode             = errors.New("invalid session mode")
	ErrInvalidInput            = errors.New("invalid input")
	ErrConfigLocked            = errors.New("room configuration is locked once the game starts")
	ErrAlreadyStarted          = errors.New("game already started")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidToken            = errors.New("invalid or expired token")
)

// NotReadyError reports how many players are ready when start is refused.
type NotReadyError struct {
	Ready int
	Total int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("all players must be ready (%d/%d ready)", e.Ready, e.Total)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotAllReady
}

// BackendError wraps a store or cache failure.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend unavailable: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
