// Package identity keeps the decentralized identities held by the wallet
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyDID     = errors.New("identity DID cannot be empty")
	ErrDuplicateDID = errors.New("identity already exists")
	ErrInvalidDID   = errors.New("identity DID must start with did:")
)

// Identity is a decentralized identifier held by the wallet
type Identity struct {
	DID         string    `json:"did"`
	AlsoKnownAs string    `json:"alsoKnownAs,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

// Manager holds the identity list and notifies subscribers of changes.
// Manager is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	identities  []Identity
	subscribers map[uuid.UUID]chan []Identity
	now         func() time.Time
	logger      zerolog.Logger
}

// NewManager creates an empty identity manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[uuid.UUID]chan []Identity),
		now:         time.Now,
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

// List returns a copy of the identities in insertion order
func (m *Manager) List() []Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

// Add appends id. Empty and duplicate DIDs are rejected.
func (m *Manager) Add(id Identity) (Identity, error) {
	id.DID = strings.TrimSpace(id.DID)
	if id.DID == "" {
		return Identity{}, ErrEmptyDID
	}
	if !strings.HasPrefix(id.DID, "did:") {
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidDID, id.DID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.identities {
		if existing.DID == id.DID {
			return Identity{}, fmt.Errorf("%w: %s", ErrDuplicateDID, id.DID)
		}
	}
	if id.AddedAt.IsZero() {
		id.AddedAt = m.now().UTC()
	}
	m.identities = append(m.identities, id)

	m.logger.Info().Str("did", id.DID).Msg("identity added")
	m.publish()
	return id, nil
}

// Subscribe returns a channel that receives the full list now and after
// every change, and a function that ends the subscription. Slow
// subscribers only see the latest list.
func (m *Manager) Subscribe() (<-chan []Identity, func()) {
	ch := make(chan []Identity, 1)
	id := uuid.New()

	m.mu.Lock()
	m.subscribers[id] = ch
	ch <- m.snapshot()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
}

// publish must be called with mu held
func (m *Manager) publish() {
	for _, ch := range m.subscribers {
		list := m.snapshot()
		select {
		case ch <- list:
		default:
			// drop the stale list and deliver the latest
			select {
			case <-ch:
			default:
			}
			ch <- list
		}
	}
}

func (m *Manager) snapshot() []Identity {
	list := make([]Identity, len(m.identities))
	copy(list, m.identities)
	return list
}
