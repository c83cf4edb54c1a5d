package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/backend"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/events"
)

// Controller owns the agent's current call and reduces adapter events into it.
// Actions only issue commands; the session changes when the adapter reports back.
type Controller struct {
	adapter backend.Adapter
	subs    []events.Subscription

	// notifyMu 串行化 reduce 与监听者通知，保证监听者按应用顺序收到快照
	notifyMu sync.Mutex

	mu      sync.RWMutex
	session call.Session

	listenersMu sync.Mutex
	listeners   map[uint64]func(call.Session)
	nextID      uint64
}

// NewController subscribes to every event kind of adapter.
func NewController(adapter backend.Adapter) *Controller {
	c := &Controller{
		adapter:   adapter,
		session:   call.NewSession(),
		listeners: make(map[uint64]func(call.Session)),
	}
	for _, kind := range call.EventKinds() {
		c.subs = append(c.subs, adapter.Events().Subscribe(kind, c.apply))
	}
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() call.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Clone()
}

// OnChange registers fn to receive the session after every applied event.
// Snapshots arrive in the order events were applied. fn must not issue
// controller actions synchronously. The returned func removes the registration.
func (c *Controller) OnChange(fn func(call.Session)) func() {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// SelectCall asks a ringing-capable backend to place callID on the console.
func (c *Controller) SelectCall(ctx context.Context, callID string) {
	if callID == "" {
		return
	}
	ringer, ok := c.adapter.(backend.Ringer)
	if !ok {
		log.Printf("[session] backend cannot ring calls, waiting for %s from remote", callID)
		return
	}
	ringer.Ring(ctx, callID)
}

// Answer requests the current call be picked up.
func (c *Controller) Answer(ctx context.Context) {
	if callID := c.currentCallID(); callID != "" {
		c.adapter.Answer(ctx, callID)
	}
}

// End requests the current call be terminated.
func (c *Controller) End(ctx context.Context) {
	if callID := c.currentCallID(); callID != "" {
		c.adapter.End(ctx, callID)
	}
}

// Transfer requests a hand-off of the current call to targetID.
func (c *Controller) Transfer(ctx context.Context, targetID string) {
	callID := c.currentCallID()
	if callID == "" {
		return
	}
	if targetID == "" {
		log.Printf("[session] transfer of %s without a target ignored", callID)
		return
	}
	c.adapter.Transfer(ctx, callID, targetID)
}

// Schedule requests a follow-up for the current call at when.
func (c *Controller) Schedule(ctx context.Context, when time.Time) {
	c.ScheduleISO(ctx, when.UTC().Format(time.RFC3339))
}

// ScheduleISO is Schedule for an already formatted ISO-8601 timestamp.
func (c *Controller) ScheduleISO(ctx context.Context, whenISO string) {
	callID := c.currentCallID()
	if callID == "" {
		log.Printf("[session] warning: schedule requested with no call selected")
		return
	}
	c.adapter.Schedule(ctx, callID, whenISO)
}

// Close detaches the controller from the adapter's events.
func (c *Controller) Close() {
	ch := c.adapter.Events()
	for _, sub := range c.subs {
		ch.Unsubscribe(sub)
	}
	c.subs = nil
}

func (c *Controller) currentCallID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.CallID
}

func (c *Controller) apply(evt call.Event) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := reduce(&c.session, evt)
	var snapshot call.Session
	if changed {
		snapshot = c.session.Clone()
	}
	c.mu.Unlock()

	if changed {
		c.notify(snapshot)
	}
}

func (c *Controller) notify(s call.Session) {
	c.listenersMu.Lock()
	fns := make([]func(call.Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// reduce applies evt to s and reports whether anything changed.
func reduce(s *call.Session, evt call.Event) bool {
	if e, ok := evt.(call.RingingEvent); ok {
		*s = call.NewSession()
		s.CallID = e.CallID
		s.Status = call.StatusRinging
		return true
	}

	if s.CallID == "" {
		return false
	}
	if id := evt.Call(); id != "" && id != s.CallID {
		log.Printf("[session] ignoring %s for call %s, current call is %s", evt.Kind(), id, s.CallID)
		return false
	}

	switch e := evt.(type) {
	case call.AnsweredEvent:
		if s.Status != call.StatusRinging && s.Status != call.StatusTransferring {
			return false
		}
		s.Status = call.StatusActive
	case call.TransferringEvent:
		if s.Status != call.StatusActive {
			return false
		}
		s.Status = call.StatusTransferring
	case call.EndedEvent:
		switch s.Status {
		case call.StatusRinging, call.StatusActive, call.StatusTransferring:
			s.Status = call.StatusEnded
		default:
			return false
		}
	case call.TimerEvent:
		// 通话结束后迟到的计时事件不再生效
		if s.Status == call.StatusEnded || e.ElapsedSeconds < s.ElapsedSeconds {
			return false
		}
		s.ElapsedSeconds = e.ElapsedSeconds
	case call.TranscriptEvent:
		s.Transcript = append(s.Transcript, e.Turn)
	case call.ScheduledEvent:
		s.FollowUpAt = e.WhenISO
	default:
		return false
	}
	return true
}
