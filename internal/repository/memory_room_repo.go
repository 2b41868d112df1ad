package repository

import (
	"context"
	"sync"

	"escaperoom/internal/model"
)

type memoryRoomRepo struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room
}

// NewMemoryRoomRepo keeps rooms in process memory. Reads and writes copy the
// document so callers never share state with the store.
func NewMemoryRoomRepo() RoomRepo {
	return &memoryRoomRepo{rooms: make(map[string]*model.Room)}
}

func (r *memoryRoomRepo) Create(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Code]; ok {
		return ErrDuplicateCode
	}
	c := room.Clone()
	if c.Players == nil {
		c.Players = map[string]*model.Player{}
	}
	r.rooms[room.Code] = c
	return nil
}

func (r *memoryRoomRepo) GetByCode(_ context.Context, code string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, nil
	}
	return room.Clone(), nil
}

func (r *memoryRoomRepo) Exists(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[code]
	return ok, nil
}

func (r *memoryRoomRepo) ListByStatus(_ context.Context, statuses ...model.RoomStatus) ([]*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[model.RoomStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*model.Room
	for _, room := range r.rooms {
		if want[room.Status] {
			out = append(out, room.Clone())
		}
	}
	return out, nil
}

func (r *memoryRoomRepo) PutPlayer(_ context.Context, code string, player *model.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return ErrNotFound
	}
	room.Players[player.ID] = player.Clone()
	return nil
}

func (r *memoryRoomRepo) Update(_ context.Context, code string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(room)
	return nil
}
