package session

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

const (
	msgEmptyContent    = "消息内容不能为空"
	msgUnsupportedType = "不支持的消息类型"
)

type Config struct {
	WriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	ReadLimit      int64         `envconfig:"WS_READ_LIMIT" default:"65536"`
	AllowedOrigins []string      `envconfig:"WS_ALLOWED_ORIGINS" default:"*"`
}

// Responder is the conversation core seen by the session layer.
type Responder interface {
	ProcessMessage(ctx context.Context, text, sessionID string) *model.AgentResponse
	StreamResponse(ctx context.Context, text, sessionID string) *stream.Reader
}

// Conn is one live client connection. Writes are serialised.
type Conn struct {
	sessionID    string
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// Send writes one frame.
func (c *Conn) Send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteJSON(f)
}

func (c *Conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.ws.Close()
}

// Manager owns the live connections keyed by session id. Each connection
// processes its messages one at a time.
type Manager struct {
	responder Responder
	framer    *Framer
	upgrader  websocket.Upgrader
	cfg       Config

	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewManager(responder Responder, cfg Config) *Manager {
	m := &Manager{
		responder: responder,
		framer:    NewFramer(),
		cfg:       cfg,
		conns:     map[string]*Conn{},
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(m.cfg.AllowedOrigins) == 0 || slices.Contains(m.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.ContainsFunc(m.cfg.AllowedOrigins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

// Active returns the number of live connections.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// The session id comes from the session_id query parameter or is generated.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if m.cfg.ReadLimit > 0 {
		ws.SetReadLimit(m.cfg.ReadLimit)
	}

	conn := &Conn{sessionID: sessionID, ws: ws, writeTimeout: m.cfg.WriteTimeout}
	m.register(conn)
	defer m.release(conn)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	logx.Info().Str("session_id", sessionID).Msg("client connected")
	if err := conn.Send(Frame{Type: FrameConnected, SessionID: sessionID, Timestamp: time.Now()}); err != nil {
		return
	}
	m.readLoop(ctx, conn)
}

func (m *Manager) register(conn *Conn) {
	m.mu.Lock()
	prev := m.conns[conn.sessionID]
	m.conns[conn.sessionID] = conn
	m.mu.Unlock()

	if prev != nil {
		logx.Info().Str("session_id", conn.sessionID).Msg("replacing existing connection")
		prev.close()
	}
}

// release drops the handle only if it still belongs to conn.
func (m *Manager) release(conn *Conn) {
	m.mu.Lock()
	if m.conns[conn.sessionID] == conn {
		delete(m.conns, conn.sessionID)
	}
	m.mu.Unlock()
	conn.close()
	logx.Info().Str("session_id", conn.sessionID).Msg("client disconnected")
}

func (m *Manager) readLoop(ctx context.Context, conn *Conn) {
	for {
		var in Inbound
		if err := conn.ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Warn().Err(err).Str("session_id", conn.sessionID).Msg("websocket read failed")
			}
			return
		}

		if err := m.handle(ctx, conn, in); err != nil {
			logx.Debug().Err(err).Str("session_id", conn.sessionID).Msg("stopping delivery")
			return
		}
	}
}

func (m *Manager) handle(ctx context.Context, conn *Conn, in Inbound) error {
	switch in.Type {
	case FramePing:
		return conn.Send(Frame{Type: FramePong, Timestamp: time.Now()})

	case FrameMessage:
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return conn.Send(Frame{Type: FrameError, Message: msgEmptyContent, Timestamp: time.Now()})
		}
		if in.Stream {
			res, err := m.framer.Run(ctx, m.responder.StreamResponse(ctx, content, conn.sessionID), conn.Send)
			logx.Debug().
				Str("session_id", conn.sessionID).
				Str("stream_id", res.StreamID).
				Int("chunks", res.Chunks).
				Bool("failed", res.Failed).
				Msg("stream delivered")
			return err
		}
		resp := m.responder.ProcessMessage(ctx, content, conn.sessionID)
		return conn.Send(Frame{
			Type:    FrameResponse,
			Content: resp.Content,
			Metadata: map[string]any{
				"intent":  resp.Intent.String(),
				"success": resp.Success,
				"sources": resp.Sources,
			},
			Timestamp: time.Now(),
		})

	default:
		return conn.Send(Frame{Type: FrameError, Message: msgUnsupportedType, Timestamp: time.Now()})
	}
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = map[string]*Conn{}
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
