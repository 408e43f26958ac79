// Package greet implements the greet command exposed to the UI layer.
package greet

import (
	"context"
	"encoding/json"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// CommandName is the name the UI invokes the command by
const CommandName = "greet"

// Args are the arguments of the greet command
type Args struct {
	Name string `json:"name"`
}

// Greet formats the greeting for name. The name is embedded verbatim.
func Greet(name string) string {
	return "Hello, " + name + "! You've been greeted from Rust!"
}

// Command is the invoke handler for greet
func Command(ctx context.Context, args json.RawMessage) (any, error) {
	var a Args
	if err := plugin.DecodeArgs(args, &a); err != nil {
		return nil, err
	}
	return Greet(a.Name), nil
}
