package biometric

import (
	"context"
	"sync"
)

// Simulator is an in-process Provider for running mobile builds on
// development machines. It authenticates according to Accept.
type Simulator struct {
	mu      sync.Mutex
	status  Status
	accept  bool
	prompts []string
}

// NewSimulator returns a simulator with Face ID enrolled that accepts every prompt
func NewSimulator() *Simulator {
	return &Simulator{
		status: Status{IsAvailable: true, BiometryType: BiometryFaceID},
		accept: true,
	}
}

// SetStatus replaces the reported status
func (s *Simulator) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Accept sets whether subsequent prompts succeed
func (s *Simulator) Accept(accept bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accept = accept
}

// Prompts returns the reasons of every prompt shown so far
func (s *Simulator) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Status implements Provider
func (s *Simulator) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Authenticate implements Provider
func (s *Simulator) Authenticate(ctx context.Context, reason string, opts AuthOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, reason)
	if !s.accept {
		return ErrAuthFailed
	}
	return ctx.Err()
}
