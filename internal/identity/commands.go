package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Command names
const (
	CommandList = "identities_list"
	CommandAdd  = "identity_add"
	CommandScan = "identity_scan"
)

// Commands returns the identity commands bound to manager and flow
func Commands(manager *Manager, flow *ScanFlow) map[string]func(ctx context.Context, args json.RawMessage) (any, error) {
	return map[string]func(context.Context, json.RawMessage) (any, error){
		CommandList: func(ctx context.Context, args json.RawMessage) (any, error) {
			return manager.List(), nil
		},
		CommandAdd: func(ctx context.Context, args json.RawMessage) (any, error) {
			var id Identity
			if err := plugin.DecodeArgs(args, &id); err != nil {
				return nil, err
			}
			added, err := manager.Add(id)
			if err != nil {
				return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: err.Error()}
			}
			return added, nil
		},
		CommandScan: func(ctx context.Context, args json.RawMessage) (any, error) {
			added, err := flow.Run(ctx)
			if errors.Is(err, ErrScannerUnavailable) {
				return nil, plugin.Unavailable("barcode-scanner", err.Error())
			}
			if err != nil {
				return nil, err
			}
			return added, nil
		},
	}
}
