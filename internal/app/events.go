package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/ipc"
	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Bus fans events out to subscribers. Subscribers are called synchronously
// in the emitting goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]func(ipc.Event)
	logger zerolog.Logger
}

var _ plugin.Emitter = (*Bus)(nil)

// NewBus creates an event bus
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uuid.UUID]func(ipc.Event)),
		logger: logger,
	}
}

// Emit publishes an event
func (b *Bus) Emit(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload of %s: %w", name, err)
	}
	ev := ipc.Event{ID: uuid.NewString(), Name: name, Payload: data}

	b.mu.RLock()
	subs := make([]func(ipc.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	b.logger.Debug().Str("event", name).Int("subscribers", len(subs)).Msg("emit")
	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn func(ipc.Event)) func() {
	id := uuid.New()

	b.mu.Lock()
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
