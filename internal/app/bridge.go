package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/tochemey/goakt/v2/actors"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/eidwallet/eidwallet/internal/ipc"
)

// envelope is the message a bridge receives. Ref names the caller's
// pending call, whose context the request runs under.
type envelope struct {
	Ref     string            `json:"ref"`
	Request ipc.InvokeRequest `json:"request"`
}

// bridge is a goakt actor answering JSON encoded invoke requests. Each
// bridge handles one request at a time.
type bridge struct {
	dispatch func(ctx context.Context, env envelope) ipc.InvokeResponse
	logger   zerolog.Logger
}

func newBridge(dispatch func(context.Context, envelope) ipc.InvokeResponse, logger zerolog.Logger) *bridge {
	return &bridge{
		dispatch: dispatch,
		logger:   logger,
	}
}

func (b *bridge) PreStart(ctx context.Context) error {
	return nil
}

func (b *bridge) Receive(ctx *actors.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *wrapperspb.BytesValue:
		var env envelope
		if err := json.Unmarshal(msg.GetValue(), &env); err != nil {
			ctx.Response(encode(b.logger, ipc.InvokeResponse{
				Error: &ipc.Error{Code: "INVALID_REQUEST", Message: err.Error()},
			}))
			return
		}
		ctx.Response(encode(b.logger, b.dispatch(ctx.Context(), env)))

	default:
		ctx.Unhandled()
	}
}

func (b *bridge) PostStop(ctx context.Context) error {
	return nil
}

func encode(logger zerolog.Logger, resp ipc.InvokeResponse) *wrapperspb.BytesValue {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error().Err(err).Str("id", resp.ID).Msg("failed to encode invoke response")
		data, _ = json.Marshal(ipc.InvokeResponse{
			ID:    resp.ID,
			Error: &ipc.Error{Code: "INTERNAL_ERROR", Message: err.Error()},
		})
	}
	return wrapperspb.Bytes(data)
}
