package relay

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/backend"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/clock"
)

// Config 模拟呼叫后端的配置
type Config struct {
	Token     string
	RingAfter time.Duration
	Simulator backend.SimulatorConfig
	Clock     clock.Clock
}

// WebSocketHandler serves the realtime call protocol backed by one simulator per connection.
type WebSocketHandler struct {
	cfg      Config
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(cfg Config) *WebSocketHandler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.RingAfter <= 0 {
		cfg.RingAfter = 2 * time.Second
	}
	return &WebSocketHandler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// connection 单个坐席连接的状态
type connection struct {
	conn    *websocket.Conn
	sim     *backend.Simulator
	clock   clock.Clock
	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	ringTimer clock.Timer
	ringAfter time.Duration
}

func (h *WebSocketHandler) authorized(r *http.Request) bool {
	if h.cfg.Token == "" {
		return true
	}
	if r.URL.Query().Get("token") == h.cfg.Token {
		return true
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") == h.cfg.Token
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &connection{
		conn:      conn,
		sim:       backend.NewSimulator(h.cfg.Clock, h.cfg.Simulator),
		clock:     h.cfg.Clock,
		ringAfter: h.cfg.RingAfter,
	}
	defer c.shutdown()

	for _, kind := range call.EventKinds() {
		c.sim.Events().Subscribe(kind, c.forward)
	}

	log.Printf("[relay] agent connected from %s", r.RemoteAddr)
	c.scheduleRing()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var cmd call.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[relay] read error: %v", err)
			}
			return
		}
		c.dispatch(ctx, cmd)
	}
}

func (c *connection) dispatch(ctx context.Context, cmd call.Command) {
	switch cmd.Action {
	case call.ActionAnswer:
		c.sim.Answer(ctx, cmd.CallID)
	case call.ActionEnd:
		c.sim.End(ctx, cmd.CallID)
	case call.ActionTransfer:
		c.sim.Transfer(ctx, cmd.CallID, cmd.AgentID)
	case call.ActionSchedule:
		c.sim.Schedule(ctx, cmd.CallID, cmd.WhenISO)
	default:
		log.Printf("[relay] unsupported action %q", cmd.Action)
	}
}

// forward 将模拟器事件写回坐席
func (c *connection) forward(evt call.Event) {
	env, err := call.EncodeEvent(evt)
	if err != nil {
		log.Printf("[relay] %v", err)
		return
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	err = c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("[relay] write %s failed: %v", evt.Kind(), err)
		return
	}

	if evt.Kind() == call.KindEnded {
		c.scheduleRing()
	}
}

// scheduleRing 在 ringAfter 之后呼入一个新通话
func (c *connection) scheduleRing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.ringTimer = c.clock.AfterFunc(c.ringAfter, func() {
		c.mu.Lock()
		closed := c.closed
		c.ringTimer = nil
		c.mu.Unlock()
		if closed {
			return
		}
		c.sim.Ring(context.Background(), uuid.NewString())
	})
}

func (c *connection) shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	c.mu.Unlock()
	c.sim.Close()
}
