package events

import (
	"log"
	"sync"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
)

// Handler receives published events.
type Handler func(call.Event)

// Subscription identifies one registration returned by Subscribe.
type Subscription struct {
	kind call.EventKind
	id   uint64
}

// Kind returns the event kind the subscription listens to.
func (s Subscription) Kind() call.EventKind {
	return s.kind
}

type entry struct {
	id      uint64
	handler Handler
}

// Channel fans events out to per-kind handlers, in registration order, on the publishing goroutine.
type Channel struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[call.EventKind][]entry
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{handlers: make(map[call.EventKind][]entry)}
}

// Subscribe registers handler for kind.
func (c *Channel) Subscribe(kind call.EventKind, handler Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.handlers[kind] = append(c.handlers[kind], entry{id: c.nextID, handler: handler})
	return Subscription{kind: kind, id: c.nextID}
}

// On subscribes a handler typed to one concrete event struct.
func On[T call.Event](c *Channel, handler func(T)) Subscription {
	var zero T
	return c.Subscribe(zero.Kind(), func(evt call.Event) {
		if typed, ok := evt.(T); ok {
			handler(typed)
		}
	})
}

// Unsubscribe removes the registration. Unknown or already removed subscriptions are ignored.
func (c *Channel) Unsubscribe(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.handlers[sub.kind]
	for i, e := range list {
		if e.id != sub.id {
			continue
		}
		// 复制而非原地修改，正在进行的 Publish 持有旧切片
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(c.handlers, sub.kind)
		} else {
			c.handlers[sub.kind] = next
		}
		return
	}
}

// Publish synchronously delivers evt to the handlers registered for its kind.
func (c *Channel) Publish(evt call.Event) {
	if evt == nil {
		return
	}

	c.mu.RLock()
	list := c.handlers[evt.Kind()]
	c.mu.RUnlock()

	for _, e := range list {
		deliver(evt, e.handler)
	}
}

// Len reports the number of handlers registered for kind.
func (c *Channel) Len(kind call.EventKind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers[kind])
}

func deliver(evt call.Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] handler for %s panicked: %v", evt.Kind(), r)
		}
	}()
	handler(evt)
}
