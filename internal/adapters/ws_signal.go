package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peercall/signaling/internal/app"
	"github.com/peercall/signaling/internal/core"
	"github.com/peercall/signaling/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const writeWait = 5 * time.Second

// SignalWSController owns the WebSocket signaling endpoint: it assigns
// connection ids, runs the read/write pumps and translates wire messages
// into orchestrator calls.
type SignalWSController struct {
	Orch       *app.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
}

// wsSignalConn adapts *websocket.Conn to core.Sender. Events are encoded
// here so the core never sees transport bytes.
//
// The orchestrator delivers outside the registry lock, so another
// connection's goroutine may still hold this Sender after our own pumps
// shut down. The send channel is therefore never closed; Close flips a
// guarded flag and later TrySend calls fail cleanly instead of hitting a
// closed channel.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSSignalConn(conn *websocket.Conn) *wsSignalConn {
	return &wsSignalConn{
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
}

func (c *wsSignalConn) TrySend(ev core.Event) error {
	b, err := core.Encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the pumps. Every socket
// gets a fresh connection id; clients never pick their own.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("ws upgrade failed")
		return
	}

	connID := domain.ConnID(uuid.NewString())
	conn := newWSSignalConn(ws)
	ctl.Orch.Registry.Bind(connID, conn)
	log.Info().Str("module", "adapters.ws").Str("conn", string(connID)).
		Str("remote", c.Request.RemoteAddr).Msg("connected")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, connID, conn)
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ping := time.NewTicker(ctl.pingPeriod())
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, connID domain.ConnID, c *wsSignalConn) {
	reason := "connection closed"
	defer func() {
		ctl.Orch.Disconnect(connID, reason)
		c.Close()
	}()

	// ReadMessage blocks, so shutdown must close the socket underneath it.
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	pongWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				reason = "server shutting down"
			} else {
				reason = err.Error()
			}
			return
		}
		ctl.handleSignal(connID, c, data)
	}
}

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return 54 * time.Second
}

func (ctl *SignalWSController) handleSignal(connID domain.ConnID, c *wsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("bad json")
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoin(connID, data)
	case "leave-room":
		ctl.handleLeave(connID, data)
	case "offer":
		ctl.handleForward(app.KindOffer, connID, data)
	case "answer":
		ctl.handleForward(app.KindAnswer, connID, data)
	case "ice-candidate":
		ctl.handleForward(app.KindCandidate, connID, data)
	case "connection-status":
		ctl.handleConnectionStatus(connID, data)
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) handleJoin(connID domain.ConnID, data []byte) {
	var p struct {
		RoomID   string `json:"roomId"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad join-room payload")
		return
	}
	ctl.Orch.Join(connID, p.RoomID, p.UserName)
}

func (ctl *SignalWSController) handleLeave(connID domain.ConnID, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad leave-room payload")
		return
	}
	ctl.Orch.Leave(connID, p.RoomID)
}

func (ctl *SignalWSController) handleForward(kind app.ForwardKind, connID domain.ConnID, data []byte) {
	var p struct {
		Target    string          `json:"target"`
		Offer     json.RawMessage `json:"offer"`
		Answer    json.RawMessage `json:"answer"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("kind", kind.String()).Msg("bad forward payload")
		return
	}
	var payload json.RawMessage
	switch kind {
	case app.KindOffer:
		payload = p.Offer
	case app.KindAnswer:
		payload = p.Answer
	case app.KindCandidate:
		payload = p.Candidate
	}
	ctl.Orch.Forward(kind, connID, domain.ConnID(p.Target), payload)
}

func (ctl *SignalWSController) handleConnectionStatus(connID domain.ConnID, data []byte) {
	var p struct {
		RoomID       string `json:"roomId"`
		Status       string `json:"status"`
		TargetUserID string `json:"targetUserId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad connection-status payload")
		return
	}
	ctl.Orch.ConnectionStatus(connID, p.RoomID, p.Status, domain.ConnID(p.TargetUserID))
}
