package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/events"
)

// RealtimeOptions 实时连接配置选项
type RealtimeOptions struct {
	HandshakeTimeout time.Duration // 握手超时时间
	ReadTimeout      time.Duration // 读取超时时间, 0 表示不设置
	WriteTimeout     time.Duration // 写入超时时间
	PingInterval     time.Duration // Ping间隔
}

// DefaultRealtimeOptions 默认实时连接选项
func DefaultRealtimeOptions() *RealtimeOptions {
	return &RealtimeOptions{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// withDefaults 返回补全后的副本：零值字段取默认值，ReadTimeout 为 0 时不设读超时；
// 启用读超时时 Ping 间隔被压到读超时的一半，避免空闲连接读超时
func (o *RealtimeOptions) withDefaults() *RealtimeOptions {
	def := DefaultRealtimeOptions()
	if o == nil {
		return def
	}
	out := *o
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.ReadTimeout < 0 {
		out.ReadTimeout = 0
	}
	if out.PingInterval <= 0 {
		out.PingInterval = def.PingInterval
	}
	if out.ReadTimeout > 0 && out.PingInterval >= out.ReadTimeout {
		out.PingInterval = out.ReadTimeout / 2
	}
	return &out
}

// Realtime bridges the adapter contract onto a persistent WebSocket connection.
type Realtime struct {
	endpoint string
	opts     *RealtimeOptions
	events   *events.Channel

	writeMu sync.Mutex
	conn    *websocket.Conn

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRealtime dials endpoint right away. A failed dial is logged and leaves the
// adapter disconnected; commands issued afterwards are dropped.
func NewRealtime(ctx context.Context, endpoint, token string, opts *RealtimeOptions) *Realtime {
	opts = opts.withDefaults()

	loopCtx, cancel := context.WithCancel(ctx)
	r := &Realtime{
		endpoint: endpoint,
		opts:     opts,
		events:   events.NewChannel(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	conn, err := r.dial(ctx, token)
	if err != nil {
		log.Printf("[realtime] connect to %s failed: %v", endpoint, err)
		close(r.done)
		return r
	}
	log.Printf("[realtime] connected to %s", endpoint)

	r.conn = conn
	go r.readLoop(loopCtx)
	go r.pingLoop(loopCtx)
	return r
}

// Events returns the adapter's own event channel.
func (r *Realtime) Events() *events.Channel {
	return r.events
}

// Connected reports whether the initial dial succeeded.
func (r *Realtime) Connected() bool {
	return r.conn != nil
}

// Answer sends an answer command.
func (r *Realtime) Answer(ctx context.Context, callID string) {
	r.send(ctx, call.Command{Action: call.ActionAnswer, CallID: callID})
}

// End sends an end command.
func (r *Realtime) End(ctx context.Context, callID string) {
	r.send(ctx, call.Command{Action: call.ActionEnd, CallID: callID})
}

// Transfer sends a transfer command; the target travels as agentId.
func (r *Realtime) Transfer(ctx context.Context, callID, targetID string) {
	r.send(ctx, call.Command{Action: call.ActionTransfer, CallID: callID, AgentID: targetID})
}

// Schedule sends a schedule command.
func (r *Realtime) Schedule(ctx context.Context, callID, whenISO string) {
	r.send(ctx, call.Command{Action: call.ActionSchedule, CallID: callID, WhenISO: whenISO})
}

// Close stops the loops and closes the connection.
func (r *Realtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		if r.conn == nil {
			return
		}

		r.writeMu.Lock()
		_ = r.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = r.conn.Close()
		r.writeMu.Unlock()

		<-r.done
	})
	return err
}

func (r *Realtime) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	target, err := url.Parse(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	dialer := &websocket.Dialer{
		HandshakeTimeout: r.opts.HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	if r.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(r.opts.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(r.opts.ReadTimeout))
			return nil
		})
	}
	return conn, nil
}

func (r *Realtime) send(ctx context.Context, cmd call.Command) {
	if r.conn == nil {
		log.Printf("[realtime] not connected, dropping %s for call %s", cmd.Action, cmd.CallID)
		return
	}

	deadline := time.Now().Add(r.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteJSON(cmd); err != nil {
		log.Printf("[realtime] write %s failed: %v", cmd.Action, err)
	}
}

func (r *Realtime) readLoop(ctx context.Context) {
	defer close(r.done)

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[realtime] read error: %v", err)
			}
			return
		}
		if r.opts.ReadTimeout > 0 {
			r.conn.SetReadDeadline(time.Now().Add(r.opts.ReadTimeout))
		}
		r.handleMessage(data)
	}
}

func (r *Realtime) handleMessage(data []byte) {
	var env call.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[realtime] malformed message: %v", err)
		return
	}

	evt, err := call.DecodeEvent(env.Event, env.Payload)
	if err != nil {
		log.Printf("[realtime] dropping message: %v", err)
		return
	}
	r.events.Publish(evt)
}

// pingLoop 定期发送ping消息
func (r *Realtime) pingLoop(ctx context.Context) {
	if r.opts.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(r.opts.WriteTimeout)
			if err := r.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("[realtime] ping failed: %v", err)
				return
			}
		}
	}
}
