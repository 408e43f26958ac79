package cryptohw

import (
	"context"
	"fmt"
	"sync"

	"github.com/eidwallet/eidwallet/internal/p256"
)

// Simulator is an in-memory Keystore with P-256 keys, used on development
// machines in place of the secure hardware
type Simulator struct {
	mu          sync.RWMutex
	keys        map[string]p256.KeyPair
	unavailable error
}

// NewSimulator returns an empty simulated keystore
func NewSimulator() *Simulator {
	return &Simulator{keys: make(map[string]p256.KeyPair)}
}

// SetUnavailable makes every call fail with err; nil restores the keystore
func (s *Simulator) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

// Available implements Keystore
func (s *Simulator) Available(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable
}

// Exists implements Keystore
func (s *Simulator) Exists(ctx context.Context, keyID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable != nil {
		return false, s.unavailable
	}
	_, ok := s.keys[keyID]
	return ok, nil
}

// Generate implements Keystore
func (s *Simulator) Generate(ctx context.Context, keyID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable != nil {
		return "", s.unavailable
	}
	if _, ok := s.keys[keyID]; ok {
		return "key-exists", nil
	}
	pair, err := p256.Generate()
	if err != nil {
		return "", err
	}
	s.keys[keyID] = pair
	return "key-generated", nil
}

// PublicKey implements Keystore
func (s *Simulator) PublicKey(ctx context.Context, keyID string) (string, error) {
	pair, err := s.lookup(keyID)
	if err != nil {
		return "", err
	}
	return p256.Multibase(pair.PublicKey)
}

// Sign implements Keystore
func (s *Simulator) Sign(ctx context.Context, keyID string, payload []byte) (string, error) {
	pair, err := s.lookup(keyID)
	if err != nil {
		return "", err
	}
	return p256.Sign(pair.PrivateKey, payload)
}

// Verify implements Keystore
func (s *Simulator) Verify(ctx context.Context, keyID string, payload []byte, signature string) (bool, error) {
	pair, err := s.lookup(keyID)
	if err != nil {
		return false, err
	}
	return p256.Verify(pair.PublicKey, payload, signature)
}

func (s *Simulator) lookup(keyID string) (p256.KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable != nil {
		return p256.KeyPair{}, s.unavailable
	}
	pair, ok := s.keys[keyID]
	if !ok {
		return p256.KeyPair{}, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	return pair, nil
}
