package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// ErrorCodeCommandNotFound indicates an invoke request for an unknown command
const ErrorCodeCommandNotFound = "COMMAND_NOT_FOUND"

// ErrDuplicateCommand is returned when a command name is registered twice
var ErrDuplicateCommand = errors.New("command already registered")

// CommandFunc answers one UI command
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

// InvokeHandler answers UI commands by name
type InvokeHandler interface {
	Invoke(ctx context.Context, cmd string, args json.RawMessage) (any, error)
	Commands() []string
}

// Router is a name-to-command InvokeHandler, safe for concurrent use
type Router struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
}

var _ InvokeHandler = (*Router)(nil)

// NewRouter returns an empty router
func NewRouter() *Router {
	return &Router{commands: make(map[string]CommandFunc)}
}

// Handlers returns a router answering the given commands
func Handlers(commands map[string]CommandFunc) *Router {
	r := NewRouter()
	for name, fn := range commands {
		r.commands[name] = fn
	}
	return r
}

// Add registers fn under name
func (r *Router) Add(name string, fn CommandFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("invalid command %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.commands[name] = fn
	return nil
}

// Has reports whether name is registered
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Invoke runs the command registered under cmd
func (r *Router) Invoke(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	fn, ok := r.commands[cmd]
	r.mu.RUnlock()

	if !ok {
		return nil, &plugin.Error{
			Code:    ErrorCodeCommandNotFound,
			Message: fmt.Sprintf("command %s not found", cmd),
		}
	}
	return fn(ctx, args)
}

// Commands returns the registered command names, sorted
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
