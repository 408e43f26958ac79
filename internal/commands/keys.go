package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eidwallet/eidwallet/internal/keys"
)

// Keys runs one of the key commands (key_generate, key_public, key_sign,
// key_verify) and prints the result as JSON
func (c *Controller) Keys(ctx context.Context, cmd string, args keys.CommandArgs) error {
	a, err := c.launch(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var result keys.Result
	if err := a.Call(ctx, cmd, args, &result); err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(c.output(), string(data))
	return nil
}
