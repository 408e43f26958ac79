package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tochemey/goakt/v2/actors"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/ipc"
	"github.com/eidwallet/eidwallet/internal/platform"
	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// ErrorCodeAppClosed indicates an invoke request after Close
	ErrorCodeAppClosed = "APP_CLOSED"

	// ErrorCodeTimeout indicates the request did not finish before its deadline
	ErrorCodeTimeout = "TIMEOUT"

	// ErrorCodeCancelled indicates the caller abandoned the request
	ErrorCodeCancelled = "CANCELLED"
)

// call is an invoke request handed to a bridge. done is closed when the
// bridge has finished with it.
type call struct {
	ctx  context.Context
	done chan struct{}
}

// App is a running application instance
type App struct {
	life     context.Context
	stop     context.CancelFunc
	config   *config.Config
	platform platform.Platform
	plugins  plugin.Set
	handler  InvokeHandler
	commands *Router
	events   *Bus
	timeout  time.Duration
	logger   zerolog.Logger

	system actors.ActorSystem
	idle   chan *actors.PID
	calls  sync.Map // ref -> *call

	mu     sync.RWMutex
	closed bool
}

// Platform returns the platform the application runs on
func (a *App) Platform() platform.Platform {
	return a.platform
}

// Plugins returns the attached plugins
func (a *App) Plugins() plugin.Set {
	return a.plugins
}

// Events returns the event bus plugins publish to
func (a *App) Events() *Bus {
	return a.events
}

// Config returns the configuration the application was built with
func (a *App) Config() *config.Config {
	return a.config
}

// Commands lists every command the application answers
func (a *App) Commands() []string {
	names := a.commands.Commands()
	if a.handler != nil {
		names = append(a.handler.Commands(), names...)
	}
	return names
}

// Invoke sends req to an idle bridge actor and waits for its answer. The
// request runs under a context cancelled when Invoke gives up on it, and the
// bridge rejoins the pool only once that request has finished.
func (a *App) Invoke(ctx context.Context, req ipc.InvokeRequest) ipc.InvokeResponse {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return failure(req.ID, &plugin.Error{Code: ErrorCodeAppClosed, Message: "application has been closed"})
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return interrupted(req.ID, err)
	}

	var pid *actors.PID
	select {
	case pid = <-a.idle:
	case <-ctx.Done():
		return interrupted(req.ID, ctx.Err())
	}

	ref := uuid.NewString()
	c := &call{ctx: ctx, done: make(chan struct{})}
	payload, err := json.Marshal(envelope{Ref: ref, Request: req})
	if err != nil {
		a.idle <- pid
		return failure(req.ID, err)
	}
	a.calls.Store(ref, c)

	deadline, _ := ctx.Deadline()
	reply, err := actors.Ask(ctx, pid, wrapperspb.Bytes(payload), time.Until(deadline))
	if err != nil {
		a.logger.Error().Err(err).Str("cmd", req.Cmd).Str("id", req.ID).Msg("bridge actor did not answer")
		if !errors.Is(err, actors.ErrRequestTimeout) {
			a.calls.Delete(ref)
			a.idle <- pid
			return failure(req.ID, err)
		}
		cancel()
		go a.release(pid, ref, c)
		return interrupted(req.ID, context.DeadlineExceeded)
	}
	a.idle <- pid

	bv, ok := reply.(*wrapperspb.BytesValue)
	if !ok {
		return failure(req.ID, fmt.Errorf("unexpected bridge reply %T", reply))
	}
	var resp ipc.InvokeResponse
	if err := json.Unmarshal(bv.GetValue(), &resp); err != nil {
		return failure(req.ID, fmt.Errorf("failed to decode bridge reply: %w", err))
	}
	return resp
}

// release returns pid to the pool after the abandoned call c has finished
func (a *App) release(pid *actors.PID, ref string, c *call) {
	select {
	case <-c.done:
		a.idle <- pid
	case <-a.life.Done():
		a.calls.Delete(ref)
	}
}

// Call invokes cmd with args and decodes the result into out
func (a *App) Call(ctx context.Context, cmd string, args any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	resp := a.Invoke(ctx, ipc.InvokeRequest{Cmd: cmd, Args: raw})
	if !resp.OK {
		if resp.Error == nil {
			return fmt.Errorf("command %s failed", cmd)
		}
		return resp.Error
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

// dispatch runs on a bridge actor
func (a *App) dispatch(ctx context.Context, env envelope) ipc.InvokeResponse {
	req := env.Request
	if v, ok := a.calls.LoadAndDelete(env.Ref); ok {
		c := v.(*call)
		defer close(c.done)
		ctx = c.ctx
	}
	if err := ctx.Err(); err != nil {
		return interrupted(req.ID, err)
	}

	start := time.Now()

	var (
		data json.RawMessage
		err  error
	)
	if name, method, ok := ipc.ParsePluginCommand(req.Cmd); ok {
		data, err = a.plugins.Execute(ctx, name, method, req.Args)
	} else {
		var result any
		result, err = a.command(ctx, req.Cmd, req.Args)
		if err == nil {
			data, err = plugin.Result(result)
		}
	}

	a.logger.Debug().
		Str("cmd", req.Cmd).
		Str("id", req.ID).
		Dur("duration", time.Since(start)).
		Bool("ok", err == nil).
		Msg("invoke")

	if err != nil {
		return failure(req.ID, err)
	}
	return ipc.InvokeResponse{ID: req.ID, OK: true, Data: data}
}

func (a *App) command(ctx context.Context, cmd string, args json.RawMessage) (any, error) {
	if a.commands.Has(cmd) || a.handler == nil {
		return a.commands.Invoke(ctx, cmd, args)
	}
	return a.handler.Invoke(ctx, cmd, args)
}

// Run serves the IPC bridge, unless disabled, until ctx is cancelled and
// then closes the application
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	if a.config.IPC.Disabled {
		<-ctx.Done()
		a.logger.Info().Msg("shutting down")
		return nil
	}

	server := ipc.NewServer(a, a.config.IPC.AllowedOrigins, a.logger)
	unsubscribe := a.events.Subscribe(func(ev ipc.Event) {
		if err := server.Broadcast(ev); err != nil {
			a.logger.Warn().Err(err).Str("event", ev.Name).Msg("failed to broadcast event")
		}
	})
	defer unsubscribe()

	if err := server.ListenAndServe(ctx, a.config.IPC.Address); err != nil {
		return &RunError{Phase: PhaseRun, Cause: err}
	}
	a.logger.Info().Msg("shutting down")
	return nil
}

// Close stops the bridge actors and closes the plugins in reverse attach
// order. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.stop()

	var errs []error
	if a.system != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.system.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop actor system: %w", err))
		}
	}
	if err := a.plugins.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closePlugins() {
	if err := a.plugins.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close plugins")
	}
}

// interrupted answers a request whose context ended before it completed
func interrupted(id string, err error) ipc.InvokeResponse {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(id, &plugin.Error{Code: ErrorCodeTimeout, Message: "request timed out"})
	}
	return failure(id, &plugin.Error{Code: ErrorCodeCancelled, Message: "request cancelled"})
}

func failure(id string, err error) ipc.InvokeResponse {
	pe := plugin.AsError(err)
	return ipc.InvokeResponse{
		ID: id,
		Error: &ipc.Error{
			Code:    pe.Code,
			Message: pe.Message,
			Details: pe.Details,
		},
	}
}
