// Package ipc carries invoke requests and events between the web UI and
// the application over a websocket.
package ipc

import (
	"context"
	"encoding/json"
	"strings"
)

// Message types sent to clients
const (
	MessageResponse = "response"
	MessageEvent    = "event"
)

const pluginPrefix = "plugin:"

// InvokeRequest calls a command or a plugin method
type InvokeRequest struct {
	ID   string          `json:"id"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// InvokeResponse answers an InvokeRequest with the same ID
type InvokeResponse struct {
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error is the failure of an invoke request
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorCode returns the error code
func (e *Error) ErrorCode() string {
	return e.Code
}

// Event is pushed to every connected client
type Event struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is the envelope of everything the server writes
type Message struct {
	Type     string          `json:"type"`
	Response *InvokeResponse `json:"response,omitempty"`
	Event    *Event          `json:"event,omitempty"`
}

// Invoker answers invoke requests
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) InvokeResponse
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, req InvokeRequest) InvokeResponse

// Invoke calls f(ctx, req)
func (f InvokerFunc) Invoke(ctx context.Context, req InvokeRequest) InvokeResponse {
	return f(ctx, req)
}

// PluginCommand builds the command name of a plugin method call
func PluginCommand(plugin, method string) string {
	return pluginPrefix + plugin + "|" + method
}

// ParsePluginCommand splits a "plugin:<name>|<method>" command
func ParsePluginCommand(cmd string) (plugin, method string, ok bool) {
	rest, found := strings.CutPrefix(cmd, pluginPrefix)
	if !found {
		return "", "", false
	}
	plugin, method, found = strings.Cut(rest, "|")
	if !found || plugin == "" || method == "" {
		return "", "", false
	}
	return plugin, method, true
}
