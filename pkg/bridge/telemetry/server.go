// Package telemetry streams link events to websocket clients such as a pit-side dashboard.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rclink/pkg/engine"
	"rclink/pkg/link"
)

const (
	OpHello     = "hello"
	OpEvent     = "event"
	OpSubscribe = "subscribe"

	writeWait = 5 * time.Second
)

type Config struct {
	Addr    string
	Name    string
	SendBuf int
	// Secret enables HS256 bearer token checks when set.
	Secret string
}

func DefaultConfig() Config {
	return Config{
		Addr:    "127.0.0.1:8765",
		Name:    "rclink",
		SendBuf: 256,
	}
}

type HelloMsg struct {
	Op      string         `json:"op"`
	Name    string         `json:"name"`
	Subject string         `json:"subject,omitempty"`
	Status  map[string]any `json:"status"`
}

type EventMsg struct {
	Op    string     `json:"op"`
	Event link.Event `json:"event"`
}

// SubscribeMsg narrows the stream to the listed event kinds. An empty list means all.
type SubscribeMsg struct {
	Op    string           `json:"op"`
	Kinds []link.EventKind `json:"kinds"`
}

type Server struct {
	cfg      Config
	hub      *engine.Hub
	verifier *Verifier
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    map[link.Side]link.Event
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	kinds map[link.EventKind]struct{}
	mu    sync.RWMutex
	once  sync.Once
}

func NewServer(cfg Config, hub *engine.Hub, logger *log.Logger) (*Server, error) {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		logger:  logger,
		clients: make(map[*client]struct{}),
		last:    make(map[link.Side]link.Event),
	}
	if cfg.Secret != "" {
		v, err := NewVerifier(cfg.Secret)
		if err != nil {
			return nil, err
		}
		s.verifier = v
	}
	return s, nil
}

// Handler serves the websocket stream at / and a JSON status snapshot at /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeAll()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve telemetry: %w", err)
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.verifier == nil {
		return "", true
	}
	subject, err := s.verifier.Authorize(r)
	if err != nil {
		s.logger.Printf("telemetry: rejected %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return subject, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	subject, ok := s.authorize(w, r)
	if !ok {
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Events queued before the hello is written wait in c.send until writeLoop starts.
	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	hello := HelloMsg{Op: OpHello, Name: s.cfg.Name, Subject: subject, Status: s.status()}
	if err := conn.WriteJSON(hello); err != nil {
		c.close()
		s.removeClient(c)
		return
	}

	go c.writeLoop()
	c.readLoop()

	c.close()
	s.removeClient(c)
}

// status reports the latest transition seen for each side.
func (s *Server) status() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.last))
	for side, ev := range s.last {
		out[string(side)] = map[string]any{
			"state":  ev.To.String(),
			"since":  ev.Time.UTC().Format(time.RFC3339Nano),
			"reason": ev.Reason,
		}
	}
	return out
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan link.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(ev)
		}
	}
}

func (s *Server) broadcast(ev link.Event) {
	if ev.Kind == link.EventTransition {
		s.mu.Lock()
		s.last[ev.Side] = ev
		s.mu.Unlock()
	}
	payload, err := json.Marshal(EventMsg{Op: OpEvent, Event: ev})
	if err != nil {
		return
	}
	for _, c := range s.snapshotClients() {
		if c.wants(ev.Kind) {
			c.trySend(payload)
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func (s *Server) closeAll() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
	}
}

func (c *client) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg SubscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.Op != OpSubscribe {
			continue
		}
		c.setKinds(msg.Kinds)
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops the message when the client is slow or already closed.
func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) setKinds(kinds []link.EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(kinds) == 0 {
		c.kinds = nil
		return
	}
	c.kinds = make(map[link.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		c.kinds[k] = struct{}{}
	}
}

func (c *client) wants(kind link.EventKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kinds == nil {
		return true
	}
	_, ok := c.kinds[kind]
	return ok
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
