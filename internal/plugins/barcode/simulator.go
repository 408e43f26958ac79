package barcode

import (
	"context"
	"sync"
)

// Simulator is an in-process Scanner for development machines. Codes queued
// with Queue are returned by Scan in order; an empty queue blocks until a
// code is queued or the scan is cancelled.
type Simulator struct {
	mu         sync.Mutex
	permission PermissionState
	onRequest  PermissionState
	queue      []Scanned
	ready      chan struct{}
}

// NewSimulator returns a simulator whose camera permission is granted on request
func NewSimulator() *Simulator {
	return &Simulator{
		permission: PermissionPrompt,
		onRequest:  PermissionGranted,
		ready:      make(chan struct{}),
	}
}

// SetPermission sets the current state and the state a request resolves to
func (s *Simulator) SetPermission(current, onRequest PermissionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = current
	s.onRequest = onRequest
}

// Queue adds a code for a subsequent scan
func (s *Simulator) Queue(content string, format Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, Scanned{Content: content, Format: format})
	close(s.ready)
	s.ready = make(chan struct{})
}

// CheckPermissions implements Scanner
func (s *Simulator) CheckPermissions(ctx context.Context) (PermissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

// RequestPermissions implements Scanner
func (s *Simulator) RequestPermissions(ctx context.Context) (PermissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission != PermissionGranted && s.permission != PermissionDenied {
		s.permission = s.onRequest
	}
	return s.permission, nil
}

// Scan implements Scanner
func (s *Simulator) Scan(ctx context.Context, opts ScanOptions) (Scanned, error) {
	for {
		s.mu.Lock()
		for i, code := range s.queue {
			if matches(code.Format, opts.Formats) {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.mu.Unlock()
				return code, nil
			}
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Scanned{}, ErrCancelled
		case <-ready:
		}
	}
}

func matches(format Format, formats []Format) bool {
	if len(formats) == 0 {
		return true
	}
	for _, f := range formats {
		if f == format {
			return true
		}
	}
	return false
}
