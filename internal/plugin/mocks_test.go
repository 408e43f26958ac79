package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// mockPlugin implements Plugin for testing
type mockPlugin struct {
	name     string
	version  string
	methods  map[string]func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
	closeErr error

	mu      sync.Mutex
	closed  bool
	onClose func(name string)
}

func (m *mockPlugin) Name() string    { return m.name }
func (m *mockPlugin) Version() string { return m.version }

func (m *mockPlugin) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	handler, ok := m.methods[method]
	if !ok {
		return nil, MethodNotFound(m.name, method)
	}
	return handler(ctx, params)
}

func (m *mockPlugin) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	if m.onClose != nil {
		m.onClose(m.name)
	}
	return m.closeErr
}

func (m *mockPlugin) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockFactory implements Factory for testing
type mockFactory struct {
	name      string
	version   string
	methods   []MethodMetadata
	createErr error
	plugin    *mockPlugin
	created   int
}

func (f *mockFactory) Name() string              { return f.name }
func (f *mockFactory) Version() string           { return f.version }
func (f *mockFactory) Methods() []MethodMetadata { return f.methods }

func (f *mockFactory) Create(ctx context.Context, config Config) (Plugin, error) {
	f.created++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.plugin == nil {
		f.plugin = &mockPlugin{
			name:    f.name,
			version: f.version,
			methods: map[string]func(ctx context.Context, params json.RawMessage) (json.RawMessage, error){
				"echo": func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
					return params, nil
				},
				"fail": func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
					return nil, errors.New("boom")
				},
			},
		}
	}
	return f.plugin, nil
}

// mockChecker implements PermissionChecker for testing
type mockChecker struct {
	decisions map[string]Decision
	err       error
}

func (m *mockChecker) Check(ctx context.Context, call Call) (Decision, error) {
	if m.err != nil {
		return Decision{}, m.err
	}
	if d, ok := m.decisions[call.Plugin+"."+call.Method]; ok {
		return d, nil
	}
	return Decision{Allowed: true}, nil
}
