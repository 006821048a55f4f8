package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/metrics"
	"github.com/riftwalk/server/internal/registry"
	"github.com/riftwalk/server/internal/storage"
)

const (
	writeWait      = 10 * time.Second
	sendQueueDepth = 256
)

// Server owns the client-facing WebSocket listener and the set of live
// sessions, and forwards gateway:output traffic to the sockets it owns.
type Server struct {
	cfg      config.GatewayConfig
	bus      bus.Bus
	store    storage.Store
	registry *registry.Registry
	auth     *Authenticator
	metrics  *metrics.Metrics
	logger   *zap.Logger

	httpSrv  *http.Server
	listener net.Listener

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires a gateway Server. Metrics may be nil.
func NewServer(cfg config.GatewayConfig, b bus.Bus, store storage.Store, reg *registry.Registry, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		bus:      b,
		store:    store,
		registry: reg,
		auth:     NewAuthenticator(store.Accounts, cfg.TokenSecret, cfg.TokenTTL),
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Start binds the listener, subscribes the output forwarder, and begins
// accepting sockets.
//
// Postcondition: On nil error the listener is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.bus.Subscribe(ctx, bus.GatewayOutputChannel, s.forwardClientMessage); err != nil {
		return fmt.Errorf("subscribing %s: %w", bus.GatewayOutputChannel, err)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("binding gateway listener: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway listener stopped", zap.Error(err))
		}
	}()
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the listener and disconnects every session.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.disconnect(ctx, "server_shutdown")
		_ = sess.out.Close()
	}
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound listen address, for tests that bind port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Game clients connect from native apps and local pages alike.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sess := s.register(conn)
	go sess.out.(*wsTransport).writePump()
	go s.readPump(sess, conn)
}

func (s *Server) register(conn *websocket.Conn) *Session {
	id := uuid.NewString()
	sess := &Session{
		id:     id,
		srv:    s,
		out:    newWSTransport(conn, s.logger),
		logger: s.logger.With(zap.String("socket", id)),
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectedSockets.Inc()
	}
	return sess
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	_, present := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if present && s.metrics != nil {
		s.metrics.ConnectedSockets.Dec()
	}
}

// readPump drives the session from its socket until disconnect.
func (s *Server) readPump(sess *Session, conn *websocket.Conn) {
	defer func() {
		s.unregister(sess)
		sess.disconnect(s.ctx, "socket_closed")
		_ = sess.out.Close()
	}()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}
	if s.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug("socket read error", zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			sess.sendError("bad_frame", "frames must be JSON {type, data}")
			continue
		}
		sess.handle(s.ctx, msg)
	}
}

// forwardClientMessage routes one gateway:output envelope to the local
// socket it addresses, if this gateway owns it.
func (s *Server) forwardClientMessage(_ string, env *bus.Envelope) {
	if env.Type != bus.TypeClientMessage {
		return
	}
	payload, err := env.Decode()
	if err != nil {
		s.logger.Warn("malformed client message", zap.Error(err))
		return
	}
	p, ok := payload.(*bus.ClientMessagePayload)
	if !ok {
		return
	}
	s.mu.RLock()
	sess, owned := s.sessions[p.SocketID]
	s.mu.RUnlock()
	if !owned {
		// Another gateway's socket; the shared channel fans out to all.
		return
	}
	sess.send(p.Event, json.RawMessage(p.Data))
}

// starterZone picks the zone new characters spawn into: the
// lexicographically first zone record.
func (s *Server) starterZone(ctx context.Context) (*storage.ZoneRecord, error) {
	zones, err := s.store.Zones.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("no zones defined")
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
	return zones[0], nil
}

func (s *Server) zoneSummary(ctx context.Context, zoneID string) worldEntryZone {
	rec, err := s.store.Zones.GetByID(ctx, zoneID)
	if err != nil {
		return worldEntryZone{ID: zoneID}
	}
	return worldEntryZone{ID: rec.ID, Name: rec.Name, Description: rec.Description}
}

// wsTransport adapts a websocket.Conn to the transport interface with a
// buffered outbound queue, so slow clients never block the bus forwarder.
type wsTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newWSTransport(conn *websocket.Conn, logger *zap.Logger) *wsTransport {
	return &wsTransport{
		conn:   conn,
		send:   make(chan []byte, sendQueueDepth),
		closed: make(chan struct{}),
		logger: logger,
	}
}

func (t *wsTransport) Send(msg serverMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case t.send <- raw:
		return nil
	case <-t.closed:
		return net.ErrClosed
	default:
		t.logger.Warn("outbound queue full, dropping frame", zap.String("event", msg.Event))
		return nil
	}
}

func (t *wsTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return t.conn.Close()
}

// writePump serializes socket writes and keeps the connection alive with
// pings.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case raw := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				_ = t.Close()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = t.Close()
				return
			}
		case <-t.closed:
			return
		}
	}
}
