package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/coord"
	"github.com/nmarkou/crewd/internal/natsbus"
	"github.com/nmarkou/crewd/internal/team"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// peer is one connected websocket client. Writes go through the mutex so
// responses and pushed events never interleave mid-frame.
type peer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *peer) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *peer) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server terminates the wire contract: it upgrades websocket clients,
// dispatches their requests, and fans bus events out to every connection.
type Server struct {
	cfg      config.GatewayConfig
	manager  *team.Manager
	registry *coord.Registry
	queue    *coord.Queue
	health   *coord.Health
	nats     *natsbus.Client
	version  string

	mu      sync.Mutex
	clients map[string]*peer
}

func NewServer(cfg config.GatewayConfig, mgr *team.Manager, nc *natsbus.Client, version string) *Server {
	return &Server{
		cfg:      cfg,
		manager:  mgr,
		registry: coord.NewRegistry(),
		queue:    coord.NewQueue(cfg.QueueCapacity),
		health:   coord.NewHealth(),
		nats:     nc,
		version:  version,
		clients:  make(map[string]*peer),
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s.nats != nil {
		// Every bus event is forwarded verbatim as an id-less frame.
		_, err := s.nats.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
			s.broadcast(msg.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe events: %w", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Handler exposes the HTTP surface: /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &peer{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		// Free every role this connection held.
		freed := s.registry.UnregisterConnection(c.id)
		if len(freed) > 0 {
			slog.Info("connection closed, roles freed", "conn", c.id, "roles", freed)
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = c.writeJSON(failure("", CodeBadRequest, "malformed request"))
			continue
		}

		go func(req Request) {
			resp := s.dispatch(c, req)
			if err := c.writeJSON(resp); err != nil {
				slog.Error("write response failed", "conn", c.id, "error", err)
			}
		}(req)
	}
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	clients := make([]*peer, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.writeRaw(data); err != nil {
			slog.Warn("event broadcast failed", "conn", c.id, "error", err)
		}
	}
}
