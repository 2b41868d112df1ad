package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RoomEvents is the room update feed. A message only says "room changed";
// subscribers re-read the document.
type RoomEvents interface {
	Publish(ctx context.Context, code string) error
	// Subscribe returns a channel that receives a signal after every publish
	// for code. Bursts are coalesced. The returned func unsubscribes and
	// closes the channel.
	Subscribe(ctx context.Context, code string) (<-chan struct{}, func(), error)
}

type roomEvents struct {
	client *redis.Client
}

func NewRoomEvents(client *redis.Client) RoomEvents {
	return &roomEvents{client: client}
}

func (e *roomEvents) channel(code string) string {
	return fmt.Sprintf("room:%s:events", code)
}

func (e *roomEvents) Publish(ctx context.Context, code string) error {
	return e.client.Publish(ctx, e.channel(code), "updated").Err()
}

func (e *roomEvents) Subscribe(ctx context.Context, code string) (<-chan struct{}, func(), error) {
	pubsub := e.client.Subscribe(ctx, e.channel(code))
	// Wait for the subscription to be confirmed so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to room %s: %w", code, err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
