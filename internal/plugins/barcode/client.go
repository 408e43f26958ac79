package barcode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Client drives the barcode-scanner plugin attached to a plugin set. Calls
// go through Set.Execute and are subject to its permissions and telemetry.
type Client struct {
	plugins plugin.Set
}

// NewClient returns a client over plugins
func NewClient(plugins plugin.Set) *Client {
	return &Client{plugins: plugins}
}

// CheckPermissions reports the camera permission state
func (c *Client) CheckPermissions(ctx context.Context) (PermissionState, error) {
	var state PermissionState
	err := c.call(ctx, "check_permissions", nil, &state)
	return state, err
}

// RequestPermissions asks the user for camera access
func (c *Client) RequestPermissions(ctx context.Context) (PermissionState, error) {
	var state PermissionState
	err := c.call(ctx, "request_permissions", nil, &state)
	return state, err
}

// Scan reads one barcode
func (c *Client) Scan(ctx context.Context, opts ScanOptions) (Scanned, error) {
	var scanned Scanned
	err := c.call(ctx, "scan", opts, &scanned)
	return scanned, err
}

func (c *Client) call(ctx context.Context, method string, args, out any) error {
	var params json.RawMessage
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode %s arguments: %w", method, err)
		}
		params = raw
	}

	result, err := c.plugins.Execute(ctx, Name, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
