package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
	// maxInFlight bounds the requests one client may have outstanding
	maxInFlight = 64
)

// ErrorCodeBusy answers requests beyond a client's in-flight limit
const ErrorCodeBusy = "BUSY"

// Server is the websocket bridge the web UI connects to
type Server struct {
	invoker     Invoker
	origins     []string
	maxInFlight int
	upgrader    websocket.Upgrader
	logger      zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	server  *http.Server
	addr    net.Addr
}

// NewServer creates a bridge serving invoker. Browsers must present one of
// origins ("*" allows any); clients without an Origin header are accepted.
func NewServer(invoker Invoker, origins []string, logger zerolog.Logger) *Server {
	s := &Server{
		invoker:     invoker,
		origins:     origins,
		maxInFlight: maxInFlight,
		logger:      logger.With().Str("component", "ipc").Logger(),
		clients:     make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP routes of the bridge
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", s.handleIPC)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// ListenAndServe listens on address and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then closes every client
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr()
	server := s.server
	s.mu.Unlock()

	s.logger.Info().Str("address", ln.Addr().String()).Msg("ipc bridge listening")

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		s.closeClients()
		return err
	case err := <-errChan:
		s.closeClients()
		return err
	}
}

// Addr returns the listening address once Serve has been called
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Broadcast pushes ev to every client. Clients that cannot keep up are dropped.
func (s *Server) Broadcast(ev Event) error {
	data, err := json.Marshal(Message{Type: MessageEvent, Event: &ev})
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.Name, err)
	}

	s.mu.RLock()
	var slow []*client
	for c := range s.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Warn().Str("client", c.remote).Msg("dropping slow ipc client")
		s.remove(c)
	}
	return nil
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"clients": s.ClientCount(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		inflight: make(chan struct{}, s.maxInFlight),
		remote:   r.RemoteAddr,
		ctx:      ctx,
		cancel:   cancel,
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug().Str("client", c.remote).Msg("ipc client connected")

	go c.writePump()
	go s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer s.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client", c.remote).Msg("ipc client closed unexpectedly")
			}
			return
		}

		var req InvokeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(c, InvokeResponse{Error: &Error{Code: "INVALID_REQUEST", Message: err.Error()}})
			continue
		}

		select {
		case c.inflight <- struct{}{}:
		default:
			s.reply(c, InvokeResponse{ID: req.ID, Error: &Error{
				Code:    ErrorCodeBusy,
				Message: fmt.Sprintf("at most %d requests may be in flight", cap(c.inflight)),
			}})
			continue
		}

		// requests run concurrently; responses carry the request ID
		go func() {
			resp := s.invoker.Invoke(c.ctx, req)
			<-c.inflight
			s.reply(c, resp)
		}()
	}
}

func (s *Server) reply(c *client, resp InvokeResponse) {
	data, err := json.Marshal(Message{Type: MessageResponse, Response: &resp})
	if err != nil {
		s.logger.Error().Err(err).Str("id", resp.ID).Msg("failed to encode response")
		return
	}
	if !c.enqueue(data) {
		s.remove(c)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()

	if ok {
		c.close()
		s.logger.Debug().Str("client", c.remote).Msg("ipc client disconnected")
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

type client struct {
	conn   *websocket.Conn
	remote string
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	send     chan []byte
	inflight chan struct{}
	closed   bool
}

// enqueue reports false when the client's buffer is full
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
